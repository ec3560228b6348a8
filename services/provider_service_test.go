package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBlockDatesHidesUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 2)

	block, err := f.providers.BlockDates(ctx, BlockRequest{
		ProviderID: f.provider.ID,
		UnitID:     unit.ID,
		Start:      mustDate("2024-07-01"),
		End:        mustDate("2024-07-03"),
		Note:       "maintenance",
	})
	require.NoError(t, err)
	require.Equal(t, models.BlockReasonBlocked, block.Reason)
	require.Equal(t, "maintenance", *block.Note)

	_, err = f.reservations.CreateReservation(ctx, f.request(unit, "2024-07-02", "2024-07-04", 200))
	var conflict ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, []Conflict{{Date: "2024-07-02", Reason: models.BlockReasonBlocked}}, conflict.Conflicts)

	require.NoError(t, f.providers.UnblockDates(ctx, f.provider.ID, block.ID))
	f.reserve(t, unit, "2024-07-02", "2024-07-04", 200)
}

func TestBlockDatesRefusesBookedRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitVehicle, 1)
	booking := f.reserve(t, unit, "2024-07-05", "2024-07-07", 300)

	_, err := f.providers.BlockDates(ctx, BlockRequest{
		ProviderID: f.provider.ID,
		UnitID:     unit.ID,
		Start:      mustDate("2024-07-06"),
		End:        mustDate("2024-07-09"),
	})
	var conflict ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "2024-07-05", conflict.Conflicts[0].Date)

	// the booking's own period cannot be unblocked directly
	var booked models.BlockedPeriod
	require.NoError(t, f.db.First(&booked, "booking_id = ?", booking.ID).Error)
	require.True(t, IsValidation(f.providers.UnblockDates(ctx, f.provider.ID, booked.ID)))
}

func TestBlockDatesChecksOwnershipAndRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 1)

	_, err := f.providers.BlockDates(ctx, BlockRequest{ProviderID: uuid.New(), UnitID: unit.ID, Start: mustDate("2024-07-01"), End: mustDate("2024-07-02")})
	require.True(t, IsNotFound(err))

	_, err = f.providers.BlockDates(ctx, BlockRequest{ProviderID: f.provider.ID, UnitID: unit.ID, Start: mustDate("2024-07-02"), End: mustDate("2024-07-02")})
	require.True(t, IsValidation(err))

	tour := f.unit(t, models.UnitTour, 1)
	_, err = f.providers.BlockDates(ctx, BlockRequest{ProviderID: f.provider.ID, UnitID: tour.ID, Start: mustDate("2024-07-02"), End: mustDate("2024-07-02")})
	require.NoError(t, err)
}

func TestCalendarListsBookingsAndBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 3)
	booking := f.reserve(t, unit, "2024-08-10", "2024-08-12", 200)
	_, err := f.providers.BlockDates(ctx, BlockRequest{ProviderID: f.provider.ID, UnitID: unit.ID, Start: mustDate("2024-08-01"), End: mustDate("2024-08-03")})
	require.NoError(t, err)

	entries, err := f.providers.Calendar(ctx, unit.ID, mustDate("2024-08-01"), mustDate("2024-09-01"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "block", entries[0].Kind)
	require.Equal(t, "booking", entries[1].Kind)
	require.Equal(t, booking.ID, *entries[1].BookingID)
}

func TestPayoutLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Model(&models.Provider{}).Where("user_id = ?", f.provider.ID).Update("revenue_balance", 500).Error)

	_, err := f.providers.RequestPayout(ctx, f.provider.ID, 800, "usd")
	require.True(t, IsValidation(err))
	_, err = f.providers.RequestPayout(ctx, f.provider.ID, 0, "usd")
	require.True(t, IsValidation(err))

	payout, err := f.providers.RequestPayout(ctx, f.provider.ID, 200, "usd")
	require.NoError(t, err)
	require.Equal(t, "USD", payout.Currency)
	require.Equal(t, models.PayoutPending, payout.Status)

	summary, err := f.providers.RevenueSummary(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, 300.0, summary.RevenueBalance)

	rejected, err := f.providers.ProcessPayout(ctx, payout.ID, models.PayoutRejected, "bank details missing")
	require.NoError(t, err)
	require.Equal(t, models.PayoutRejected, rejected.Status)
	require.NotNil(t, rejected.ProcessedAt)

	summary, err = f.providers.RevenueSummary(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, 500.0, summary.RevenueBalance)
	require.EqualValues(t, 1, f.count(t, &models.Notification{}, "recipient_id = ? AND type = ?", f.provider.ID, models.NotifPayoutRejected))

	_, err = f.providers.ProcessPayout(ctx, payout.ID, models.PayoutComplete, "")
	require.True(t, IsValidation(err))

	second, err := f.providers.RequestPayout(ctx, f.provider.ID, 500, "USD")
	require.NoError(t, err)
	_, err = f.providers.ProcessPayout(ctx, second.ID, models.PayoutComplete, "")
	require.NoError(t, err)

	pending, err := f.providers.ListPayouts(ctx, &f.provider.ID, models.PayoutPending)
	require.NoError(t, err)
	require.Empty(t, pending)
	all, err := f.providers.ListPayouts(ctx, &f.provider.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCreateUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vehicle, err := f.providers.CreateUnit(ctx, f.provider.ID, UnitInput{UnitType: models.UnitVehicle, Title: " Land Cruiser ", Capacity: 7, BasePrice: 120})
	require.NoError(t, err)
	require.Equal(t, 1, vehicle.Capacity)
	require.Equal(t, "Land Cruiser", vehicle.Title)
	require.Equal(t, "USD", vehicle.Currency)

	_, err = f.providers.CreateUnit(ctx, f.provider.ID, UnitInput{UnitType: "boat", Title: "Dhow", BasePrice: 50})
	require.True(t, IsValidation(err))
	_, err = f.providers.CreateUnit(ctx, f.customer.ID, UnitInput{UnitType: models.UnitProperty, Title: "Flat", BasePrice: 50})
	require.True(t, IsNotFound(err))

	units, err := f.providers.ListUnits(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, units, 1)

	off, err := f.providers.SetUnitActive(ctx, f.provider.ID, vehicle.ID, false)
	require.NoError(t, err)
	require.False(t, off.IsActive)
}

func TestInactiveUnitRefusesReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 2)

	_, err := f.providers.SetUnitActive(ctx, f.provider.ID, unit.ID, false)
	require.NoError(t, err)
	_, err = f.reservations.CreateReservation(ctx, f.request(unit, "2024-09-01", "2024-09-02", 100))
	require.True(t, IsValidation(err))
	_, err = f.availability.CheckAvailability(ctx, AvailabilityQuery{
		UnitID: unit.ID, UnitType: unit.UnitType, Start: mustDate("2024-09-01"), End: mustDate("2024-09-02"),
	})
	require.Equal(t, errUnitInactive, err, "quotes and reservations report an inactive unit the same way")

	_, err = f.providers.SetUnitActive(ctx, f.provider.ID, unit.ID, true)
	require.NoError(t, err)
	f.reserve(t, unit, "2024-09-01", "2024-09-02", 100)
}
