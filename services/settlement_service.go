package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/staybook/metrics"
	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettlementPhase string

const (
	PrePayment  SettlementPhase = "pre_payment"
	PostPayment SettlementPhase = "post_payment"
)

const (
	StepPaymentRecord = "payment_record"
	StepDateBlocking  = "date_blocking"
	StepCommission    = "commission"
	StepRevenueCredit = "revenue_credit"
	StepNotification  = "notification"
)

var settlementStepOrder = []string{StepPaymentRecord, StepDateBlocking, StepCommission, StepRevenueCredit, StepNotification}

// Notifier is the part of the notification dispatcher settlement needs.
type Notifier interface {
	Notify(ctx context.Context, in NotifyInput) (*models.Notification, error)
	NotifyAdmins(ctx context.Context, in NotifyInput) error
}

// EventPublisher emits booking lifecycle events for external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

type BookingEvent struct {
	BookingID     uuid.UUID            `json:"booking_id"`
	BookingNumber string               `json:"booking_number"`
	UnitID        uuid.UUID            `json:"unit_id"`
	UnitType      models.UnitType      `json:"unit_type"`
	StartDate     time.Time            `json:"start_date"`
	EndDate       time.Time            `json:"end_date"`
	Status        models.BookingStatus `json:"status"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// SettlementService runs the side effects of a reservation or a payment.
// Every step checks for existing rows first so a rerun converges to the
// same state.
type SettlementService struct {
	db          *gorm.DB
	notifier    Notifier
	events      EventPublisher
	defaultRate float64
	now         func() time.Time
}

func NewSettlementService(db *gorm.DB, notifier Notifier, events EventPublisher, defaultRate float64) *SettlementService {
	return &SettlementService{
		db:          db,
		notifier:    notifier,
		events:      events,
		defaultRate: defaultRate,
		now:         time.Now,
	}
}

// Settle runs every step for the phase, continuing past failures, and
// reports the failed ones as a SettlementSideEffectError.
func (s *SettlementService) Settle(ctx context.Context, bookingID uuid.UUID, phase SettlementPhase) error {
	return s.settle(ctx, bookingID, phase, true)
}

// RetrySettlement re-runs the data steps for the booking's current phase.
// Notifications were already attempted by the original run and are skipped.
func (s *SettlementService) RetrySettlement(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	phase := PrePayment
	if booking.Status == models.BookingConfirmed {
		phase = PostPayment
	}
	return s.settle(ctx, bookingID, phase, false)
}

func (s *SettlementService) settle(ctx context.Context, bookingID uuid.UUID, phase SettlementPhase, notify bool) error {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status == models.BookingCancelled {
		log.Printf("Skipping %s settlement for cancelled booking %s", phase, booking.BookingNumber)
		return nil
	}

	failures := make(map[string]error)
	record := func(step string, err error) {
		if err == nil {
			return
		}
		failures[step] = err
		metrics.SettlementStepFailures.WithLabelValues(step).Inc()
		log.Printf("🔥 Settlement step %s failed for booking %s: %v", step, booking.BookingNumber, err)
	}

	if phase == PrePayment {
		record(StepPaymentRecord, s.EnsurePendingPayment(ctx, booking))
	}
	record(StepDateBlocking, s.EnsureBlockedPeriod(ctx, booking))

	_, err = s.EnsureCommission(ctx, booking.ID)
	record(StepCommission, err)

	credited := false
	if phase == PostPayment && booking.Status == models.BookingConfirmed {
		credited, err = s.CreditProviderRevenue(ctx, booking.ID)
		record(StepRevenueCredit, err)
	}

	if notify {
		record(StepNotification, s.fanOut(ctx, booking, phase))
		s.publish(ctx, phaseEvent(phase), booking)
	}

	if len(failures) > 0 {
		return SettlementSideEffectError{BookingID: booking.ID.String(), Steps: failures}
	}
	if credited {
		log.Printf("✅ Booking %s settled and provider credited", booking.BookingNumber)
	}
	return nil
}

func phaseEvent(phase SettlementPhase) string {
	if phase == PostPayment {
		return EventBookingConfirmed
	}
	return EventBookingCreated
}

func (s *SettlementService) loadBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "booking", Err: err}
		}
		return nil, InfrastructureError{Op: "load booking", Err: err}
	}
	return &booking, nil
}

// EnsurePendingPayment keeps exactly one PENDING payment for an unpaid
// booking, updating the existing row in place.
func (s *SettlementService) EnsurePendingPayment(ctx context.Context, booking *models.Booking) error {
	if booking.PaymentStatus == models.PaymentCompleted {
		return nil
	}
	db := s.db.WithContext(ctx)

	var payment models.Payment
	err := db.Where("booking_id = ? AND status = ?", booking.ID, models.PaymentPending).
		Order("created_at ASC").
		First(&payment).Error
	switch {
	case err == nil:
		return db.Model(&payment).Updates(map[string]interface{}{
			"amount":   booking.Total,
			"currency": booking.Currency,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		payment = models.Payment{
			BookingID: booking.ID,
			Amount:    booking.Total,
			Currency:  booking.Currency,
			Method:    booking.PaymentMethod,
			Status:    models.PaymentPending,
		}
		return db.Create(&payment).Error
	default:
		return err
	}
}

// EnsureBlockedPeriod keeps exactly one "booked" period matching the
// booking's range while the booking is active. The booking row is locked
// and re-read so a cancellation that committed after the caller loaded it
// is not undone.
func (s *SettlementService) EnsureBlockedPeriod(ctx context.Context, booking *models.Booking) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockBooking(tx, booking.ID)
		if err != nil {
			return err
		}
		if !current.Status.IsActive() {
			return nil
		}

		var period models.BlockedPeriod
		err = tx.Where("booking_id = ?", current.ID).First(&period).Error
		if err == nil {
			if period.StartDate.Equal(current.StartDate) && period.EndDate.Equal(current.EndDate) {
				return nil
			}
			return tx.Model(&period).Updates(map[string]interface{}{
				"start_date": current.StartDate,
				"end_date":   current.EndDate,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		bookingID := current.ID
		return tx.Create(&models.BlockedPeriod{
			UnitID:    current.UnitID,
			UnitType:  current.UnitType,
			BookingID: &bookingID,
			StartDate: current.StartDate,
			EndDate:   current.EndDate,
			Reason:    models.BlockReasonBooked,
		}).Error
	})
}

// EnsureCommission returns the booking's commission, creating it at the
// provider's rate when missing. It is the only place commissions are made.
func (s *SettlementService) EnsureCommission(ctx context.Context, bookingID uuid.UUID) (*models.Commission, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var existing models.Commission
	err = db.Where("booking_id = ? AND booking_type = ?", booking.ID, booking.UnitType).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rate, err := s.commissionRate(ctx, booking.ProviderID)
	if err != nil {
		return nil, err
	}
	amount, percentage := CalculateCommission(booking.Total, rate)

	commission := models.Commission{
		BookingID:   booking.ID,
		BookingType: booking.UnitType,
		ProviderID:  booking.ProviderID,
		Amount:      amount,
		Percentage:  percentage,
		Currency:    booking.Currency,
		Status:      models.CommissionPending,
	}
	if err := db.Create(&commission).Error; err != nil {
		if ferr := db.Where("booking_id = ? AND booking_type = ?", booking.ID, booking.UnitType).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &commission, nil
}

func (s *SettlementService) commissionRate(ctx context.Context, providerID uuid.UUID) (float64, error) {
	var provider models.Provider
	err := s.db.WithContext(ctx).Select("user_id", "commission_rate").First(&provider, "user_id = ?", providerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.defaultRate, nil
		}
		return 0, err
	}
	if provider.CommissionRate != nil {
		return *provider.CommissionRate, nil
	}
	return s.defaultRate, nil
}

// CreditProviderRevenue adds the booking's net amount to the provider's
// balance once. The booking's revenue_credited_at column is the claim: only
// the run that sets it performs the increment. It reports whether this call
// did the credit.
func (s *SettlementService) CreditProviderRevenue(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	commission, err := s.EnsureCommission(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("commission required before credit: %w", err)
	}

	credited := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.Select("id", "provider_id", "total").First(&booking, "id = ?", bookingID).Error; err != nil {
			return err
		}

		claim := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ? AND revenue_credited_at IS NULL", bookingID, models.BookingConfirmed).
			Update("revenue_credited_at", s.now())
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return nil
		}

		net := roundCents(booking.Total - commission.Amount)
		res := tx.Model(&models.Provider{}).Where("user_id = ?", booking.ProviderID).Updates(map[string]interface{}{
			"revenue_balance": gorm.Expr("revenue_balance + ?", net),
			"total_earnings":  gorm.Expr("total_earnings + ?", net),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("provider %s not found", booking.ProviderID)
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

func (s *SettlementService) fanOut(ctx context.Context, booking *models.Booking, phase SettlementPhase) error {
	if s.notifier == nil {
		return nil
	}
	actionURL := "/bookings/" + booking.ID.String()
	payload := map[string]interface{}{
		"booking_id":     booking.ID,
		"booking_number": booking.BookingNumber,
		"unit_id":        booking.UnitID,
		"start_date":     booking.StartDate,
		"end_date":       booking.EndDate,
	}

	var inputs []NotifyInput
	if phase == PrePayment {
		inputs = []NotifyInput{
			{
				RecipientID: booking.CustomerID,
				Role:        models.RoleCustomer,
				Type:        models.NotifReservationCreated,
				Title:       "Reservation received",
				Message:     fmt.Sprintf("Booking %s is held for you. Complete payment to confirm it.", booking.BookingNumber),
				ActionURL:   actionURL,
				Payload:     payload,
				Priority:    models.PriorityNormal,
			},
			{
				RecipientID: booking.ProviderID,
				Role:        models.RoleProvider,
				Type:        models.NotifNewReservation,
				Title:       "New reservation",
				Message:     fmt.Sprintf("Booking %s was placed for %s.", booking.BookingNumber, booking.StartDate.Format(dayLayout)),
				ActionURL:   actionURL,
				Payload:     payload,
				Priority:    models.PriorityNormal,
			},
		}
	} else {
		inputs = []NotifyInput{
			{
				RecipientID: booking.CustomerID,
				Role:        models.RoleCustomer,
				Type:        models.NotifBookingConfirmed,
				Title:       "Booking confirmed",
				Message:     fmt.Sprintf("Your booking %s is confirmed. Confirmation code: %s.", booking.BookingNumber, booking.ConfirmationCode),
				ActionURL:   actionURL,
				Payload:     payload,
				Priority:    models.PriorityHigh,
				SendEmail:   true,
			},
			{
				RecipientID: booking.ProviderID,
				Role:        models.RoleProvider,
				Type:        models.NotifPaymentReceived,
				Title:       "Payment received",
				Message:     fmt.Sprintf("Payment for booking %s was received.", booking.BookingNumber),
				ActionURL:   actionURL,
				Payload:     payload,
				Priority:    models.PriorityHigh,
				SendEmail:   true,
			},
		}
	}

	var errs []error
	for _, in := range inputs {
		if _, err := s.notifier.Notify(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SettlementService) publish(ctx context.Context, routingKey string, booking *models.Booking) {
	if s.events == nil {
		return
	}
	event := BookingEvent{
		BookingID:     booking.ID,
		BookingNumber: booking.BookingNumber,
		UnitID:        booking.UnitID,
		UnitType:      booking.UnitType,
		StartDate:     booking.StartDate,
		EndDate:       booking.EndDate,
		Status:        booking.Status,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		log.Printf("Warning: failed to publish %s for booking %s: %v", routingKey, booking.BookingNumber, err)
	}
}
