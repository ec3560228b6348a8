package services

import (
	"context"
	"testing"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailabilityReflectsReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitVehicle, 1)

	q := AvailabilityQuery{UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("2024-06-01"), End: mustDate("2024-06-04")}
	before, err := f.availability.CheckAvailability(ctx, q)
	require.NoError(t, err)
	require.True(t, before.IsAvailable)
	require.Equal(t, 1, before.RemainingCapacity)
	require.Empty(t, before.Conflicts)

	f.reserve(t, unit, "2024-06-02", "2024-06-03", 80)

	after, err := f.availability.CheckAvailability(ctx, q)
	require.NoError(t, err)
	require.False(t, after.IsAvailable)
	require.Equal(t, 0, after.RemainingCapacity)
	require.Equal(t, []Conflict{{Date: "2024-06-02", Reason: models.BlockReasonBooked}}, after.Conflicts)

	// checkout day is free again
	next, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("2024-06-03"), End: mustDate("2024-06-05"),
	})
	require.NoError(t, err)
	require.True(t, next.IsAvailable)
}

func TestCheckAvailabilityCountsBookingAndBookedPeriodOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 2)

	booking := f.reserve(t, unit, "2024-07-10", "2024-07-12", 300)
	require.EqualValues(t, 1, f.count(t, &models.BlockedPeriod{}, "booking_id = ?", booking.ID))

	res, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("2024-07-10"), End: mustDate("2024-07-12"),
	})
	require.NoError(t, err)
	require.True(t, res.IsAvailable)
	require.Equal(t, 1, res.RemainingCapacity)
	require.Equal(t, 2, res.Capacity)
}

func TestCheckAvailabilityManualBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 3)

	_, err := f.providers.BlockDates(ctx, BlockRequest{
		ProviderID: f.provider.ID,
		UnitID:     unit.ID,
		Start:      mustDate("2024-08-05"),
		End:        mustDate("2024-08-06"),
		Note:       "maintenance",
	})
	require.NoError(t, err)

	res, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("2024-08-03"), End: mustDate("2024-08-07"),
	})
	require.NoError(t, err)
	require.False(t, res.IsAvailable)
	require.Equal(t, []Conflict{{Date: "2024-08-05", Reason: models.BlockReasonBlocked}}, res.Conflicts)
	require.Equal(t, 3, res.RemainingCapacity)
}

func TestCheckAvailabilityTourOccupiesItsDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tour := f.unit(t, models.UnitTour, 1)

	f.reserve(t, tour, "2024-09-14", "", 120)

	same, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: tour.ID, UnitType: models.UnitTour, Start: mustDate("2024-09-14"), End: mustDate("2024-09-14"),
	})
	require.NoError(t, err)
	require.False(t, same.IsAvailable)
	require.Equal(t, "2024-09-14", same.Conflicts[0].Date)

	other, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: tour.ID, UnitType: models.UnitTour, Start: mustDate("2024-09-15"), End: mustDate("2024-09-15"),
	})
	require.NoError(t, err)
	require.True(t, other.IsAvailable)
}

func TestCheckAvailabilityErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitVehicle, 1)

	_, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: uuid.New(), UnitType: models.UnitVehicle, Start: mustDate("2024-06-01"), End: mustDate("2024-06-02"),
	})
	require.True(t, IsNotFound(err))

	_, err = f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: models.UnitProperty, Start: mustDate("2024-06-01"), End: mustDate("2024-06-02"),
	})
	require.True(t, IsNotFound(err), "type mismatch is reported as an unknown unit")

	_, err = f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: models.UnitVehicle, Start: mustDate("2024-06-02"), End: mustDate("2024-06-01"),
	})
	require.True(t, IsValidation(err))
}

func TestCheckAvailabilityRangeIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitVehicle, 1)
	start := mustDate("2024-01-01")

	result, err := f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: unit.UnitType, Start: start, End: start.AddDate(0, 0, maxQuoteDays),
	})
	require.NoError(t, err)
	require.True(t, result.IsAvailable)

	_, err = f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("0002-01-01"), End: mustDate("9999-12-31"),
	})
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "end_date", verr.Field)
}

func TestCheckAvailabilityCacheIsInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cached := NewAvailabilityService(f.db, time.Minute)
	f.reservations.availability = cached
	unit := f.unit(t, models.UnitVehicle, 1)

	q := AvailabilityQuery{UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("2024-06-01"), End: mustDate("2024-06-03")}
	first, err := cached.CheckAvailability(ctx, q)
	require.NoError(t, err)
	require.True(t, first.IsAvailable)

	f.reserve(t, unit, "2024-06-01", "2024-06-03", 100)

	second, err := cached.CheckAvailability(ctx, q)
	require.NoError(t, err)
	require.False(t, second.IsAvailable)
}
