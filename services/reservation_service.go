package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/staybook/metrics"
	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PriceLine struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

type PriceBreakdown struct {
	Lines    []PriceLine `json:"lines,omitempty"`
	Total    float64     `json:"total"`
	Currency string      `json:"currency"`
}

type ReservationRequest struct {
	CustomerID     uuid.UUID
	UnitID         uuid.UUID
	UnitType       models.UnitType
	Start          time.Time
	End            time.Time
	PriceBreakdown PriceBreakdown
}

type ReservationConfig struct {
	TxTimeout   time.Duration
	MaxStayDays int
	// TxOptions is passed to BeginTx; nil uses the driver default.
	TxOptions *sql.TxOptions
}

// ReservationService performs the check-then-claim of a unit. The re-check
// inside the transaction is the only trust boundary for capacity.
type ReservationService struct {
	db           *gorm.DB
	availability *AvailabilityService
	settlement   *SettlementService
	cfg          ReservationConfig
	now          func() time.Time
}

func NewReservationService(db *gorm.DB, availability *AvailabilityService, settlement *SettlementService, cfg ReservationConfig) *ReservationService {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	return &ReservationService{
		db:           db,
		availability: availability,
		settlement:   settlement,
		cfg:          cfg,
		now:          time.Now,
	}
}

func (s *ReservationService) validate(req *ReservationRequest) error {
	if req.CustomerID == uuid.Nil {
		return ValidationError{Field: "customer_id", Msg: "is required"}
	}
	if err := s.validateRange(req); err != nil {
		return err
	}
	if req.PriceBreakdown.Total <= 0 {
		return ValidationError{Field: "price_breakdown.total", Msg: "must be greater than zero"}
	}
	return nil
}

func (s *ReservationService) validateRange(req *ReservationRequest) error {
	if req.UnitID == uuid.Nil {
		return ValidationError{Field: "unit_id", Msg: "is required"}
	}
	if !req.UnitType.Valid() {
		return ValidationError{Field: "unit_type", Msg: "must be property, vehicle or tour"}
	}
	if req.Start.IsZero() {
		return ValidationError{Field: "start_date", Msg: "is required"}
	}
	req.Start = req.Start.UTC()
	req.End = req.End.UTC()

	if req.UnitType == models.UnitTour {
		// tours occupy a single date
		req.End = req.Start
	} else {
		if req.End.IsZero() {
			return ValidationError{Field: "end_date", Msg: "is required"}
		}
		if !req.End.After(req.Start) {
			return ValidationError{Field: "end_date", Msg: "must be after start_date"}
		}
		if s.cfg.MaxStayDays > 0 && req.End.Sub(req.Start) > time.Duration(s.cfg.MaxStayDays)*day {
			return ValidationError{Field: "end_date", Msg: "stay exceeds the maximum length"}
		}
	}
	return nil
}

// Quote prices a stay from the unit's base price: per night for properties,
// per day for vehicles and once for a tour date.
func (s *ReservationService) Quote(ctx context.Context, unitID uuid.UUID, unitType models.UnitType, start, end time.Time) (PriceBreakdown, error) {
	req := ReservationRequest{UnitID: unitID, UnitType: unitType, Start: start, End: end}
	if err := s.validateRange(&req); err != nil {
		return PriceBreakdown{}, err
	}

	var unit models.InventoryUnit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", unitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PriceBreakdown{}, NotFoundError{Resource: "unit", Err: err}
		}
		return PriceBreakdown{}, InfrastructureError{Op: "load unit", Err: err}
	}
	if unit.UnitType != unitType {
		return PriceBreakdown{}, NotFoundError{Resource: "unit"}
	}
	if !unit.IsActive {
		return PriceBreakdown{}, errUnitInactive
	}

	units, label := 1, "tour date"
	if unitType != models.UnitTour {
		units = int(truncateDay(req.End).Sub(truncateDay(req.Start)) / day)
		if units < 1 {
			units = 1
		}
		label = "night"
		if unitType == models.UnitVehicle {
			label = "day"
		}
	}
	if units > 1 {
		label += "s"
	}

	total := roundCents(unit.BasePrice * float64(units))
	return PriceBreakdown{
		Lines: []PriceLine{{
			Label:  fmt.Sprintf("%s: %d %s x %.2f", unit.Title, units, label, unit.BasePrice),
			Amount: total,
		}},
		Total:    total,
		Currency: unit.Currency,
	}, nil
}

func (s *ReservationService) txOptions() []*sql.TxOptions {
	if s.cfg.TxOptions == nil {
		return nil
	}
	return []*sql.TxOptions{s.cfg.TxOptions}
}

// CreateReservation claims the unit for the range and returns the new
// booking in PENDING_PAYMENT. A lost race returns ConflictError; storage
// failures and timeouts return InfrastructureError and claim nothing.
func (s *ReservationService) CreateReservation(ctx context.Context, req ReservationRequest) (*models.Booking, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	started := time.Now()
	var booking models.Booking

	claim := func(tx *gorm.DB) error {
		booking = models.Booking{}

		var unit models.InventoryUnit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&unit, "id = ?", req.UnitID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError{Resource: "unit", Err: err}
			}
			return err
		}
		if !unit.IsActive {
			return errUnitInactive
		}

		result, err := s.availability.CheckAvailabilityTx(tx, AvailabilityQuery{
			UnitID:           req.UnitID,
			UnitType:         req.UnitType,
			Start:            req.Start,
			End:              req.End,
			RequiredCapacity: 1,
		})
		if err != nil {
			return err
		}
		if !result.IsAvailable {
			return ConflictError{Conflicts: result.Conflicts}
		}

		now := s.now()
		number, err := utils.GenerateUniqueBookingNumber(tx, now)
		if err != nil {
			return err
		}
		code, err := utils.GenerateUniqueConfirmationCode(tx)
		if err != nil {
			return err
		}

		currency := req.PriceBreakdown.Currency
		if currency == "" {
			currency = unit.Currency
			req.PriceBreakdown.Currency = currency
		}
		breakdown, err := json.Marshal(req.PriceBreakdown)
		if err != nil {
			return err
		}

		booking = models.Booking{
			BookingNumber:    number,
			ConfirmationCode: code,
			CustomerID:       req.CustomerID,
			ProviderID:       unit.ProviderID,
			UnitID:           unit.ID,
			UnitType:         unit.UnitType,
			StartDate:        req.Start,
			EndDate:          req.End,
			Total:            roundCents(req.PriceBreakdown.Total),
			Currency:         currency,
			PriceBreakdown:   string(breakdown),
			Status:           models.BookingPendingPayment,
			PaymentStatus:    models.PaymentPending,
		}
		if err := tx.Omit("Unit").Create(&booking).Error; err != nil {
			return err
		}

		payment := models.Payment{
			BookingID: booking.ID,
			Amount:    booking.Total,
			Currency:  booking.Currency,
			Status:    models.PaymentPending,
		}
		return tx.Create(&payment).Error
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(txCtx).Transaction(claim, s.txOptions()...)
		if !isSerializationFailure(err) || attempt >= maxClaimAttempts {
			break
		}
		// a fresh transaction re-reads whatever the winner committed
		log.Printf("Reservation on unit %s hit a serialization failure, retrying (%d/%d)", req.UnitID, attempt, maxClaimAttempts)
	}

	metrics.ReservationDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		return nil, s.classify(req, err)
	}

	metrics.Reservations.WithLabelValues("created").Inc()
	s.availability.Invalidate(booking.UnitID)
	log.Printf("✅ Reservation %s created for unit %s (%s to %s)", booking.BookingNumber, booking.UnitID, booking.StartDate.Format(dayLayout), booking.EndDate.Format(dayLayout))

	if s.settlement != nil {
		if serr := s.settlement.Settle(ctx, booking.ID, PrePayment); serr != nil {
			log.Printf("Warning: pre-payment settlement for %s incomplete: %v", booking.BookingNumber, serr)
		}
	}
	return &booking, nil
}

const maxClaimAttempts = 3

// isSerializationFailure reports whether Postgres aborted the transaction
// because of a concurrent claim (serialization_failure or deadlock_detected).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func (s *ReservationService) classify(req ReservationRequest, err error) error {
	var conflict ConflictError
	switch {
	case errors.As(err, &conflict):
		metrics.Reservations.WithLabelValues("conflict").Inc()
		log.Printf("Reservation conflict on unit %s for %d day(s)", req.UnitID, len(conflict.Conflicts))
		return conflict
	case IsValidation(err), IsNotFound(err):
		metrics.Reservations.WithLabelValues("error").Inc()
		return err
	}

	if isSerializationFailure(err) {
		metrics.Reservations.WithLabelValues("conflict").Inc()
		log.Printf("Reservation on unit %s lost every retry to concurrent claims", req.UnitID)
		return ConflictError{}
	}

	metrics.Reservations.WithLabelValues("error").Inc()
	if IsInfrastructure(err) {
		log.Printf("🔥 Reservation failed for unit %s: %v", req.UnitID, err)
		return err
	}
	op := "reservation transaction"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		op = "reservation timeout"
	}
	log.Printf("🔥 Reservation failed for unit %s: %v", req.UnitID, err)
	return InfrastructureError{Op: op, Err: err}
}
