package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anjiri1684/staybook/database"
	"github.com/anjiri1684/staybook/middleware"
	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	customer models.User
	provider models.User
	unit     models.InventoryUnit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	notifier := services.NewNotificationService(db, nil, nil)
	availability := services.NewAvailabilityService(db, 0)
	settlement := services.NewSettlementService(db, notifier, nil, 0.10)
	Setup(Deps{
		Availability:  availability,
		Reservations:  services.NewReservationService(db, availability, settlement, services.ReservationConfig{MaxStayDays: 90}),
		Settlement:    settlement,
		Payments:      services.NewPaymentService(db, settlement, availability, notifier),
		Notifications: notifier,
		Providers:     services.NewProviderService(db, availability, notifier),
		Bookings:      services.NewBookingQueries(db),
	})

	env := &testEnv{db: db}
	env.customer = models.User{FullName: "Wanjiru", Email: uuid.NewString() + "@example.com", Password: "x", Role: models.RoleCustomer}
	env.provider = models.User{FullName: "Savanna Lodge", Email: uuid.NewString() + "@example.com", Password: "x", Role: models.RoleProvider}
	require.NoError(t, db.Create(&env.customer).Error)
	require.NoError(t, db.Create(&env.provider).Error)
	require.NoError(t, db.Create(&models.Provider{UserID: env.provider.ID, DisplayName: "Savanna Lodge", Status: "active"}).Error)
	env.unit = models.InventoryUnit{ProviderID: env.provider.ID, UnitType: models.UnitVehicle, Title: "Safari van", Capacity: 1, BasePrice: 90, Currency: "USD", IsActive: true}
	require.NoError(t, db.Create(&env.unit).Error)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/units/:unitId/availability", CheckAvailability)
	bookings := api.Group("/bookings", middleware.Protected())
	bookings.Post("", CreateBooking)
	bookings.Post("/:bookingId/cancel", CancelBooking)
	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())
	admin.Get("/bookings", AdminGetAllBookings)
	env.app = app
	return env
}

func token(t *testing.T, user models.User) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID.String(),
		"role":    user.Role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) bookingBody(start, end string) fiber.Map {
	return fiber.Map{
		"unit_id":    e.unit.ID.String(),
		"unit_type":  "vehicle",
		"start_date": start,
		"end_date":   end,
		"total":      180,
	}
}

func TestCreateBookingConflictReturns409(t *testing.T) {
	env := newTestEnv(t)
	bearer := token(t, env.customer)

	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", bearer, env.bookingBody("2031-03-01", "2031-03-03"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Contains(t, body, "booking")

	resp, body = env.do(t, http.MethodPost, "/api/v1/bookings", bearer, env.bookingBody("2031-03-02", "2031-03-04"))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, services.ConflictCode, body["code"])
	require.Equal(t, conflictMessage, body["error"])
	conflicts, ok := body["conflicts"].([]any)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	require.Equal(t, "2031-03-02", conflicts[0].(map[string]any)["date"])
}

func TestCreateBookingValidation(t *testing.T) {
	env := newTestEnv(t)
	bearer := token(t, env.customer)

	bad := env.bookingBody("2031-03-01", "2031-03-03")
	bad["unit_type"] = "boat"
	resp, _ := env.do(t, http.MethodPost, "/api/v1/bookings", bearer, bad)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", bearer, env.bookingBody("2031-03-03", "2031-03-01"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "end_date", body["field"])

	unknown := env.bookingBody("2031-03-01", "2031-03-03")
	unknown["unit_id"] = uuid.NewString()
	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", bearer, unknown)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCreateBookingIsPricedByServer(t *testing.T) {
	env := newTestEnv(t)
	bearer := token(t, env.customer)

	cheap := env.bookingBody("2031-04-01", "2031-04-03")
	cheap["total"] = 0.01
	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", bearer, cheap)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "total", body["field"])

	unpriced := env.bookingBody("2031-04-01", "2031-04-03")
	delete(unpriced, "total")
	resp, body = env.do(t, http.MethodPost, "/api/v1/bookings", bearer, unpriced)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	booking := body["booking"].(map[string]any)
	require.EqualValues(t, 180, booking["total"])
	require.Equal(t, "USD", booking["currency"])

	var stored models.Booking
	require.NoError(t, env.db.First(&stored, "id = ?", booking["id"]).Error)
	require.InDelta(t, 180, stored.Total, 0.001)
	require.Contains(t, stored.PriceBreakdown, `"total":180`)
}

func TestBookingRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/bookings", "", env.bookingBody("2031-03-01", "2031-03-03"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", "not-a-token", env.bookingBody("2031-03-01", "2031-03-03"))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/admin/bookings", token(t, env.customer), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestCancelThenAvailabilityReopens(t *testing.T) {
	env := newTestEnv(t)
	bearer := token(t, env.customer)

	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", bearer, env.bookingBody("2031-05-10", "2031-05-12"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	booking := body["booking"].(map[string]any)
	bookingID := booking["id"].(string)

	path := fmt.Sprintf("/api/v1/units/%s/availability?unit_type=vehicle&start_date=2031-05-10&end_date=2031-05-12", env.unit.ID)
	resp, body = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["is_available"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", token(t, env.provider), fiber.Map{"reason": "vehicle in service"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["is_available"])
}
