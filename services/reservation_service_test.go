package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestCreateReservationHoldsUnit(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, models.UnitProperty, 2)

	booking := f.reserve(t, unit, "2024-06-01", "2024-06-05", 480)

	require.Equal(t, models.BookingPendingPayment, booking.Status)
	require.Equal(t, models.PaymentPending, booking.PaymentStatus)
	require.Equal(t, f.provider.ID, booking.ProviderID)
	require.Regexp(t, `^BK-\d{14}-[A-Z2-9]{6}$`, booking.BookingNumber)
	require.Len(t, booking.ConfirmationCode, 8)
	require.JSONEq(t, `{"lines":[{"label":"stay","amount":480}],"total":480,"currency":"USD"}`, booking.PriceBreakdown)

	require.EqualValues(t, 1, f.count(t, &models.Payment{}, "booking_id = ? AND status = ?", booking.ID, models.PaymentPending))
	require.EqualValues(t, 1, f.count(t, &models.BlockedPeriod{}, "booking_id = ? AND reason = ?", booking.ID, models.BlockReasonBooked))
	require.EqualValues(t, 1, f.count(t, &models.Commission{}, "booking_id = ?", booking.ID))
	require.EqualValues(t, 1, f.count(t, &models.Notification{}, "recipient_id = ? AND type = ?", f.customer.ID, models.NotifReservationCreated))
	require.EqualValues(t, 1, f.count(t, &models.Notification{}, "recipient_id = ? AND type = ?", f.provider.ID, models.NotifNewReservation))
	require.Contains(t, f.events.Keys(), EventBookingCreated)
}

func TestCreateReservationValidation(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, models.UnitProperty, 1)
	ctx := context.Background()

	cases := map[string]func(r *ReservationRequest){
		"missing customer": func(r *ReservationRequest) { r.CustomerID = uuid.Nil },
		"unknown type":     func(r *ReservationRequest) { r.UnitType = "boat" },
		"end before start": func(r *ReservationRequest) { r.End = r.Start.Add(-24 * time.Hour) },
		"zero nights":      func(r *ReservationRequest) { r.End = r.Start },
		"stay too long":    func(r *ReservationRequest) { r.End = r.Start.Add(91 * 24 * time.Hour) },
		"zero total":       func(r *ReservationRequest) { r.PriceBreakdown.Total = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request(unit, "2024-06-01", "2024-06-03", 200)
			mutate(&req)
			_, err := f.reservations.CreateReservation(ctx, req)
			require.True(t, IsValidation(err), "got %v", err)
		})
	}
	require.EqualValues(t, 0, f.count(t, &models.Booking{}, "unit_id = ?", unit.ID))
}

func TestCreateReservationUnknownUnit(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, models.UnitVehicle, 1)
	req := f.request(unit, "2024-06-01", "2024-06-02", 50)
	req.UnitID = uuid.New()

	_, err := f.reservations.CreateReservation(context.Background(), req)
	require.True(t, IsNotFound(err))
}

func TestCreateReservationNoOvercommitUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, models.UnitProperty, 3)

	const attempts = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
		others    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.CreateReservation(context.Background(), f.request(unit, "2024-12-20", "2024-12-27", 700))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case IsConflict(err):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, others)
	require.Equal(t, 3, created)
	require.Equal(t, attempts-3, conflicts)
	require.EqualValues(t, 3, f.count(t, &models.Booking{}, "unit_id = ? AND status IN ?", unit.ID, models.ActiveBookingStatuses))
}

func TestCreateReservationOverlappingRace(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, models.UnitProperty, 1)

	requests := []ReservationRequest{
		f.request(unit, "2024-06-01", "2024-06-05", 400),
		f.request(unit, "2024-06-03", "2024-06-06", 300),
	}
	errs := make([]error, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req ReservationRequest) {
			defer wg.Done()
			_, errs[i] = f.reservations.CreateReservation(context.Background(), req)
		}(i, req)
	}
	wg.Wait()

	var conflict ConflictError
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.True(t, errors.As(err, &conflict), "unexpected error %v", err)
	}
	require.Equal(t, 1, winners)
	require.Equal(t, []Conflict{
		{Date: "2024-06-03", Reason: models.BlockReasonBooked},
		{Date: "2024-06-04", Reason: models.BlockReasonBooked},
	}, conflict.Conflicts)
}

func TestCreateReservationTimeoutFailsClosed(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, models.UnitVehicle, 1)
	f.reservations.cfg.TxTimeout = time.Nanosecond

	_, err := f.reservations.CreateReservation(context.Background(), f.request(unit, "2024-06-01", "2024-06-02", 90))

	var infra InfrastructureError
	require.True(t, errors.As(err, &infra), "got %v", err)
	require.False(t, IsConflict(err))
	require.EqualValues(t, 0, f.count(t, &models.Booking{}, "unit_id = ?", unit.ID))
}

func mockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestCreateReservationStorageFailureIsInfrastructure(t *testing.T) {
	db, mock := mockPostgres(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	availability := NewAvailabilityService(db, 0)
	svc := NewReservationService(db, availability, nil, ReservationConfig{})
	_, err := svc.CreateReservation(context.Background(), ReservationRequest{
		CustomerID:     uuid.New(),
		UnitID:         uuid.New(),
		UnitType:       models.UnitProperty,
		Start:          mustDate("2024-06-01"),
		End:            mustDate("2024-06-03"),
		PriceBreakdown: PriceBreakdown{Total: 150, Currency: "USD"},
	})

	var infra InfrastructureError
	require.True(t, errors.As(err, &infra), "got %v", err)
	require.Equal(t, "reservation transaction", infra.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

var (
	lockUnitQuery = `SELECT \* FROM "inventory_units" WHERE id = \$1 .*FOR UPDATE`
	loadUnitQuery = `SELECT \* FROM "inventory_units" WHERE id = \$1`
	bookingsQuery = `SELECT "id","start_date","end_date" FROM "bookings"`
	periodsQuery  = `SELECT \* FROM "blocked_periods"`
)

func serializationFailure() error {
	return &pgconn.PgError{Severity: "ERROR", Code: "40001", Message: "could not serialize access due to read/write dependencies among transactions"}
}

func TestCreateReservationRetriesSerializationFailureIntoConflict(t *testing.T) {
	db, mock := mockPostgres(t)
	unitID, winnerID := uuid.New(), uuid.New()
	unitRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "provider_id", "unit_type", "title", "capacity", "base_price", "currency", "is_active"}).
			AddRow(unitID.String(), uuid.NewString(), "vehicle", "Safari van", 1, 90.0, "USD", true)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitQuery).WillReturnError(serializationFailure())
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitQuery).WillReturnRows(unitRow())
	mock.ExpectQuery(loadUnitQuery).WillReturnRows(unitRow())
	mock.ExpectQuery(bookingsQuery).WillReturnRows(sqlmock.NewRows([]string{"id", "start_date", "end_date"}).
		AddRow(winnerID.String(), mustDate("2024-06-01"), mustDate("2024-06-05")))
	mock.ExpectQuery(periodsQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	svc := NewReservationService(db, NewAvailabilityService(db, 0), nil, ReservationConfig{
		TxOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
	})
	_, err := svc.CreateReservation(context.Background(), ReservationRequest{
		CustomerID:     uuid.New(),
		UnitID:         unitID,
		UnitType:       models.UnitVehicle,
		Start:          mustDate("2024-06-03"),
		End:            mustDate("2024-06-05"),
		PriceBreakdown: PriceBreakdown{Total: 180, Currency: "USD"},
	})

	var conflict ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	require.Equal(t, []Conflict{
		{Date: "2024-06-03", Reason: models.BlockReasonBooked},
		{Date: "2024-06-04", Reason: models.BlockReasonBooked},
	}, conflict.Conflicts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationSerializationFailuresExhaustIntoConflict(t *testing.T) {
	db, mock := mockPostgres(t)
	for i := 0; i < maxClaimAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(lockUnitQuery).WillReturnError(serializationFailure())
		mock.ExpectRollback()
	}

	svc := NewReservationService(db, NewAvailabilityService(db, 0), nil, ReservationConfig{})
	_, err := svc.CreateReservation(context.Background(), ReservationRequest{
		CustomerID:     uuid.New(),
		UnitID:         uuid.New(),
		UnitType:       models.UnitVehicle,
		Start:          mustDate("2024-06-03"),
		End:            mustDate("2024-06-05"),
		PriceBreakdown: PriceBreakdown{Total: 180, Currency: "USD"},
	})

	require.True(t, IsConflict(err), "got %v", err)
	require.False(t, IsInfrastructure(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotePricesFromBasePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	property := f.unit(t, models.UnitProperty, 2)
	tour := f.unit(t, models.UnitTour, 1)

	price, err := f.reservations.Quote(ctx, property.ID, property.UnitType, mustDate("2024-06-01"), mustDate("2024-06-04"))
	require.NoError(t, err)
	require.InDelta(t, 300, price.Total, 0.001)
	require.Equal(t, "USD", price.Currency)
	require.Len(t, price.Lines, 1)
	require.Contains(t, price.Lines[0].Label, "3 nights")

	price, err = f.reservations.Quote(ctx, tour.ID, tour.UnitType, mustDate("2024-09-15"), time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 100, price.Total, 0.001)

	_, err = f.reservations.Quote(ctx, property.ID, property.UnitType, mustDate("2024-06-04"), mustDate("2024-06-01"))
	require.True(t, IsValidation(err))
	_, err = f.reservations.Quote(ctx, property.ID, models.UnitVehicle, mustDate("2024-06-01"), mustDate("2024-06-02"))
	require.True(t, IsNotFound(err))
}
