package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderService covers the provider side: manual date blocks, the unit
// calendar and revenue payouts.
type ProviderService struct {
	db           *gorm.DB
	availability *AvailabilityService
	notifier     Notifier
}

func NewProviderService(db *gorm.DB, availability *AvailabilityService, notifier Notifier) *ProviderService {
	return &ProviderService{db: db, availability: availability, notifier: notifier}
}

func (s *ProviderService) ownedUnit(ctx context.Context, providerID, unitID uuid.UUID) (*models.InventoryUnit, error) {
	var unit models.InventoryUnit
	if err := s.db.WithContext(ctx).First(&unit, "id = ? AND provider_id = ?", unitID, providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "unit", Err: err}
		}
		return nil, InfrastructureError{Op: "load unit", Err: err}
	}
	return &unit, nil
}

type BlockRequest struct {
	ProviderID uuid.UUID
	UnitID     uuid.UUID
	Start      time.Time
	End        time.Time
	Note       string
}

// BlockDates marks a range unavailable. Dates already held by active
// bookings cannot be blocked; the booking must be cancelled first.
func (s *ProviderService) BlockDates(ctx context.Context, req BlockRequest) (*models.BlockedPeriod, error) {
	unit, err := s.ownedUnit(ctx, req.ProviderID, req.UnitID)
	if err != nil {
		return nil, err
	}
	start, end := req.Start.UTC(), req.End.UTC()
	if start.IsZero() || end.IsZero() || end.Before(start) || (end.Equal(start) && unit.UnitType != models.UnitTour) {
		return nil, ValidationError{Field: "end_date", Msg: "must be after start_date"}
	}

	var period models.BlockedPeriod
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&models.InventoryUnit{}, "id = ?", unit.ID).Error; err != nil {
			return err
		}

		from, to := queryWindow(AvailabilityQuery{Start: start, End: end})
		var held []models.Booking
		err := tx.Select("id", "start_date", "end_date").
			Where("unit_id = ? AND status IN ?", unit.ID, models.ActiveBookingStatuses).
			Scopes(overlapScope(from, to)).
			Order("start_date ASC").
			Find(&held).Error
		if err != nil {
			return err
		}
		if len(held) > 0 {
			conflicts := make([]Conflict, 0, len(held))
			for _, b := range held {
				conflicts = append(conflicts, Conflict{Date: b.StartDate.UTC().Format(dayLayout), Reason: models.BlockReasonBooked})
			}
			return ConflictError{Conflicts: conflicts}
		}

		providerID := req.ProviderID
		period = models.BlockedPeriod{
			UnitID:    unit.ID,
			UnitType:  unit.UnitType,
			StartDate: start,
			EndDate:   end,
			Reason:    models.BlockReasonBlocked,
			CreatedBy: &providerID,
		}
		if note := strings.TrimSpace(req.Note); note != "" {
			period.Note = &note
		}
		return tx.Create(&period).Error
	})
	if err != nil {
		return nil, wrapTxError("block dates", err)
	}

	s.availability.Invalidate(unit.ID)
	return &period, nil
}

// UnblockDates removes a manual block. Booked periods are only released by
// cancelling their booking.
func (s *ProviderService) UnblockDates(ctx context.Context, providerID, blockID uuid.UUID) error {
	var period models.BlockedPeriod
	if err := s.db.WithContext(ctx).First(&period, "id = ?", blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundError{Resource: "blocked period", Err: err}
		}
		return InfrastructureError{Op: "load blocked period", Err: err}
	}
	if _, err := s.ownedUnit(ctx, providerID, period.UnitID); err != nil {
		return err
	}
	if period.Reason != models.BlockReasonBlocked {
		return ValidationError{Field: "reason", Msg: "booked periods are released by cancelling the booking"}
	}
	if err := s.db.WithContext(ctx).Delete(&period).Error; err != nil {
		return InfrastructureError{Op: "delete blocked period", Err: err}
	}
	s.availability.Invalidate(period.UnitID)
	return nil
}

type CalendarEntry struct {
	ID        uuid.UUID  `json:"id"`
	Kind      string     `json:"kind"`
	Reason    string     `json:"reason,omitempty"`
	Status    string     `json:"status,omitempty"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
}

// Calendar lists what occupies a unit between from and to: manual blocks
// and active bookings. It is read-only, for calendar and ICS consumers.
func (s *ProviderService) Calendar(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]CalendarEntry, error) {
	db := s.db.WithContext(ctx)
	from, to = from.UTC(), to.UTC()

	var bookings []models.Booking
	err := db.Select("id", "status", "start_date", "end_date").
		Where("unit_id = ? AND status IN ?", unitID, models.ActiveBookingStatuses).
		Scopes(overlapScope(from, to)).
		Find(&bookings).Error
	if err != nil {
		return nil, InfrastructureError{Op: "load calendar bookings", Err: err}
	}

	var blocks []models.BlockedPeriod
	err = db.Where("unit_id = ? AND reason = ?", unitID, models.BlockReasonBlocked).
		Scopes(overlapScope(from, to)).
		Find(&blocks).Error
	if err != nil {
		return nil, InfrastructureError{Op: "load calendar blocks", Err: err}
	}

	entries := make([]CalendarEntry, 0, len(bookings)+len(blocks))
	for _, b := range bookings {
		id := b.ID
		entries = append(entries, CalendarEntry{ID: b.ID, Kind: "booking", Status: string(b.Status), BookingID: &id, StartDate: b.StartDate, EndDate: b.EndDate})
	}
	for _, bp := range blocks {
		entries = append(entries, CalendarEntry{ID: bp.ID, Kind: "block", Reason: bp.Reason, StartDate: bp.StartDate, EndDate: bp.EndDate})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].StartDate.Before(entries[j].StartDate) })
	return entries, nil
}

type RevenueSummary struct {
	RevenueBalance     float64 `json:"revenue_balance"`
	TotalEarnings      float64 `json:"total_earnings"`
	PendingCommissions float64 `json:"pending_commissions"`
	ConfirmedBookings  int64   `json:"confirmed_bookings"`
}

func (s *ProviderService) RevenueSummary(ctx context.Context, providerID uuid.UUID) (*RevenueSummary, error) {
	db := s.db.WithContext(ctx)

	var provider models.Provider
	if err := db.First(&provider, "user_id = ?", providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "provider", Err: err}
		}
		return nil, InfrastructureError{Op: "load provider", Err: err}
	}

	summary := &RevenueSummary{
		RevenueBalance: provider.RevenueBalance,
		TotalEarnings:  provider.TotalEarnings,
	}
	err := db.Model(&models.Commission{}).
		Where("provider_id = ? AND status = ?", providerID, models.CommissionPending).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&summary.PendingCommissions).Error
	if err != nil {
		return nil, InfrastructureError{Op: "sum commissions", Err: err}
	}
	err = db.Model(&models.Booking{}).
		Where("provider_id = ? AND status = ?", providerID, models.BookingConfirmed).
		Count(&summary.ConfirmedBookings).Error
	if err != nil {
		return nil, InfrastructureError{Op: "count bookings", Err: err}
	}
	return summary, nil
}

// RequestPayout reserves amount from the provider's balance. The balance is
// restored if an admin rejects the request.
func (s *ProviderService) RequestPayout(ctx context.Context, providerID uuid.UUID, amount float64, currency string) (*models.PayoutRequest, error) {
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Msg: "must be greater than zero"}
	}
	amount = roundCents(amount)

	var payout models.PayoutRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var provider models.Provider
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&provider, "user_id = ?", providerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError{Resource: "provider", Err: err}
			}
			return err
		}
		if provider.RevenueBalance < amount {
			return ValidationError{Field: "amount", Msg: "insufficient balance for this payout request"}
		}

		res := tx.Model(&models.Provider{}).
			Where("user_id = ? AND revenue_balance >= ?", providerID, amount).
			Update("revenue_balance", gorm.Expr("revenue_balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ValidationError{Field: "amount", Msg: "insufficient balance for this payout request"}
		}

		payout = models.PayoutRequest{
			ProviderID:  providerID,
			Amount:      amount,
			Currency:    strings.ToUpper(currency),
			Status:      models.PayoutPending,
			RequestedAt: time.Now(),
		}
		return tx.Create(&payout).Error
	})
	if err != nil {
		return nil, wrapTxError("request payout", err)
	}
	return &payout, nil
}

func (s *ProviderService) ListPayouts(ctx context.Context, providerID *uuid.UUID, status string) ([]models.PayoutRequest, error) {
	query := s.db.WithContext(ctx).Order("requested_at DESC")
	if providerID != nil {
		query = query.Where("provider_id = ?", *providerID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []models.PayoutRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, InfrastructureError{Op: "list payouts", Err: err}
	}
	return requests, nil
}

// ProcessPayout records an admin decision. Rejected amounts go back to the
// provider's balance.
func (s *ProviderService) ProcessPayout(ctx context.Context, payoutID uuid.UUID, decision, adminNotes string) (*models.PayoutRequest, error) {
	if decision != models.PayoutComplete && decision != models.PayoutRejected {
		return nil, ValidationError{Field: "decision", Msg: "must be complete or reject"}
	}

	var payout models.PayoutRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, "id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError{Resource: "payout request", Err: err}
			}
			return err
		}
		if payout.Status != models.PayoutPending {
			return ValidationError{Field: "status", Msg: "payout request was already processed"}
		}

		now := time.Now()
		payout.Status = decision
		payout.ProcessedAt = &now
		if adminNotes != "" {
			payout.AdminNotes = &adminNotes
		}
		if err := tx.Save(&payout).Error; err != nil {
			return err
		}

		if decision == models.PayoutRejected {
			return tx.Model(&models.Provider{}).Where("user_id = ?", payout.ProviderID).
				Update("revenue_balance", gorm.Expr("revenue_balance + ?", payout.Amount)).Error
		}
		return nil
	})
	if err != nil {
		return nil, wrapTxError("process payout", err)
	}

	if s.notifier != nil {
		notifType := models.NotifPayoutProcessed
		message := fmt.Sprintf("Your payout request for %.2f %s has been processed.", payout.Amount, payout.Currency)
		if decision == models.PayoutRejected {
			notifType = models.NotifPayoutRejected
			message = fmt.Sprintf("Your payout request for %.2f %s was rejected. The funds have been returned to your balance.", payout.Amount, payout.Currency)
		}
		if _, nerr := s.notifier.Notify(ctx, NotifyInput{
			RecipientID: payout.ProviderID,
			Role:        models.RoleProvider,
			Type:        notifType,
			Title:       "Payout update",
			Message:     message,
			Priority:    models.PriorityNormal,
			SendEmail:   true,
		}); nerr != nil {
			log.Printf("Warning: payout notice not stored: %v", nerr)
		}
	}
	return &payout, nil
}

type UnitInput struct {
	UnitType  models.UnitType
	Title     string
	Capacity  int
	BasePrice float64
	Currency  string
}

func (s *ProviderService) CreateUnit(ctx context.Context, providerID uuid.UUID, in UnitInput) (*models.InventoryUnit, error) {
	if !in.UnitType.Valid() {
		return nil, ValidationError{Field: "unit_type", Msg: "must be property, vehicle or tour"}
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, ValidationError{Field: "title", Msg: "is required"}
	}
	if in.BasePrice <= 0 {
		return nil, ValidationError{Field: "base_price", Msg: "must be greater than zero"}
	}

	var provider models.Provider
	if err := s.db.WithContext(ctx).First(&provider, "user_id = ?", providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "provider", Err: err}
		}
		return nil, InfrastructureError{Op: "load provider", Err: err}
	}

	unit := models.InventoryUnit{
		ProviderID: providerID,
		UnitType:   in.UnitType,
		Title:      strings.TrimSpace(in.Title),
		Capacity:   in.Capacity,
		BasePrice:  roundCents(in.BasePrice),
		Currency:   strings.ToUpper(in.Currency),
		IsActive:   true,
	}
	unit.Capacity = unit.EffectiveCapacity()
	if unit.Currency == "" {
		unit.Currency = "USD"
	}
	if err := s.db.WithContext(ctx).Create(&unit).Error; err != nil {
		return nil, InfrastructureError{Op: "create unit", Err: err}
	}
	return &unit, nil
}

func (s *ProviderService) ListUnits(ctx context.Context, providerID uuid.UUID) ([]models.InventoryUnit, error) {
	var units []models.InventoryUnit
	if err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).Order("created_at DESC").Find(&units).Error; err != nil {
		return nil, InfrastructureError{Op: "list units", Err: err}
	}
	return units, nil
}

// SetUnitActive toggles whether a unit accepts new reservations. Existing
// bookings are left untouched.
func (s *ProviderService) SetUnitActive(ctx context.Context, providerID, unitID uuid.UUID, active bool) (*models.InventoryUnit, error) {
	unit, err := s.ownedUnit(ctx, providerID, unitID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(unit).Update("is_active", active).Error; err != nil {
		return nil, InfrastructureError{Op: "update unit", Err: err}
	}
	unit.IsActive = active
	s.availability.Invalidate(unit.ID)
	return unit, nil
}
