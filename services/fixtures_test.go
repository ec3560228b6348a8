package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/staybook/database"
	"github.com/anjiri1684/staybook/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection serialises transactions the way row locks do on postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func mustDate(s string) time.Time {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (p *recordingPublisher) Publish(recipientID uuid.UUID, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type recordingEvents struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (e *recordingEvents) Publish(ctx context.Context, routingKey string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, routingKey)
	return e.err
}

func (e *recordingEvents) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keys...)
}

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	return nil, errors.New("notification store unavailable")
}

func (failingNotifier) NotifyAdmins(ctx context.Context, in NotifyInput) error {
	return errors.New("notification store unavailable")
}

type fixture struct {
	db           *gorm.DB
	pusher       *recordingPublisher
	events       *recordingEvents
	notifier     *NotificationService
	availability *AvailabilityService
	settlement   *SettlementService
	reservations *ReservationService
	payments     *PaymentService
	providers    *ProviderService

	customer models.User
	provider models.User
	admin    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)

	f := &fixture{
		db:     db,
		pusher: &recordingPublisher{},
		events: &recordingEvents{},
	}
	f.notifier = NewNotificationService(db, f.pusher, nil)
	f.availability = NewAvailabilityService(db, 0)
	f.settlement = NewSettlementService(db, f.notifier, f.events, 0.10)
	f.reservations = NewReservationService(db, f.availability, f.settlement, ReservationConfig{
		TxTimeout:   5 * time.Second,
		MaxStayDays: 90,
	})
	f.payments = NewPaymentService(db, f.settlement, f.availability, f.notifier)
	f.providers = NewProviderService(db, f.availability, f.notifier)

	f.customer = f.user(t, "Jane Customer", models.RoleCustomer)
	f.provider = f.user(t, "Kilima Stays", models.RoleProvider)
	f.admin = f.user(t, "Ops Admin", models.RoleAdmin)
	require.NoError(t, db.Create(&models.Provider{
		UserID:      f.provider.ID,
		DisplayName: "Kilima Stays",
		Status:      "active",
	}).Error)
	return f
}

func (f *fixture) user(t *testing.T, name, role string) models.User {
	t.Helper()
	u := models.User{
		FullName: name,
		Email:    uuid.NewString() + "@example.com",
		Password: "x",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) unit(t *testing.T, unitType models.UnitType, capacity int) models.InventoryUnit {
	t.Helper()
	u := models.InventoryUnit{
		ProviderID: f.provider.ID,
		UnitType:   unitType,
		Title:      fmt.Sprintf("%s unit", unitType),
		Capacity:   capacity,
		BasePrice:  100,
		Currency:   "USD",
		IsActive:   true,
	}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) request(unit models.InventoryUnit, start, end string, total float64) ReservationRequest {
	req := ReservationRequest{
		CustomerID: f.customer.ID,
		UnitID:     unit.ID,
		UnitType:   unit.UnitType,
		Start:      mustDate(start),
		PriceBreakdown: PriceBreakdown{
			Lines:    []PriceLine{{Label: "stay", Amount: total}},
			Total:    total,
			Currency: "USD",
		},
	}
	if end != "" {
		req.End = mustDate(end)
	}
	return req
}

func (f *fixture) reserve(t *testing.T, unit models.InventoryUnit, start, end string, total float64) *models.Booking {
	t.Helper()
	booking, err := f.reservations.CreateReservation(context.Background(), f.request(unit, start, end, total))
	require.NoError(t, err)
	return booking
}

func (f *fixture) booking(t *testing.T, id uuid.UUID) models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return b
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
