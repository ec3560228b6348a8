package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/anjiri1684/staybook/metrics"
	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleSystem is the actor of scheduled jobs.
const RoleSystem = "system"

type CancelRequest struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
	Reason    string
	// OnlyIf, when set, refuses the cancellation unless the locked booking
	// is still in that status.
	OnlyIf models.BookingStatus
}

// PaymentService moves bookings through payment and cancellation. External
// gateway and upload calls always run before or after a transaction, never
// inside one.
type PaymentService struct {
	db           *gorm.DB
	settlement   *SettlementService
	availability *AvailabilityService
	notifier     Notifier
	gateways     map[string]payments.Gateway
	uploader     FileUploader
	vouchers     *VoucherService
	now          func() time.Time
}

func NewPaymentService(db *gorm.DB, settlement *SettlementService, availability *AvailabilityService, notifier Notifier) *PaymentService {
	return &PaymentService{
		db:           db,
		settlement:   settlement,
		availability: availability,
		notifier:     notifier,
		gateways:     make(map[string]payments.Gateway),
		now:          time.Now,
	}
}

// RegisterGateway makes an online method available for InitiatePayment.
func (s *PaymentService) RegisterGateway(method string, gw payments.Gateway) {
	s.gateways[method] = gw
}

func (s *PaymentService) SetUploader(u FileUploader) { s.uploader = u }

func (s *PaymentService) SetVoucherService(v *VoucherService) { s.vouchers = v }

func lockBooking(tx *gorm.DB, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "booking", Err: err}
		}
		return nil, err
	}
	return &booking, nil
}

func pendingPayment(tx *gorm.DB, booking *models.Booking) (*models.Payment, error) {
	var payment models.Payment
	err := tx.Where("booking_id = ? AND status = ?", booking.ID, models.PaymentPending).
		Order("created_at ASC").
		First(&payment).Error
	if err == nil {
		return &payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	payment = models.Payment{
		BookingID: booking.ID,
		Amount:    booking.Total,
		Currency:  booking.Currency,
		Status:    models.PaymentPending,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *PaymentService) reload(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "booking", Err: err}
		}
		return nil, InfrastructureError{Op: "load booking", Err: err}
	}
	return &booking, nil
}

func wrapTxError(op string, err error) error {
	if IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsInfrastructure(err) {
		return err
	}
	return InfrastructureError{Op: op, Err: err}
}

// ConfirmPayment records that funds moved for the booking. Offline methods
// only record the choice and wait for ApproveOfflinePayment. Confirming an
// already confirmed booking returns it unchanged.
func (s *PaymentService) ConfirmPayment(ctx context.Context, bookingID uuid.UUID, method, externalRef string) (*models.Booking, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return nil, ValidationError{Field: "method", Msg: "is required"}
	}
	if models.IsOfflineMethod(method) {
		return s.awaitApproval(ctx, bookingID, method)
	}
	return s.confirm(ctx, bookingID, method, strings.TrimSpace(externalRef))
}

func (s *PaymentService) confirm(ctx context.Context, bookingID uuid.UUID, method, externalRef string) (*models.Booking, error) {
	replayed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := lockBooking(tx, bookingID)
		if err != nil {
			return err
		}
		switch booking.Status {
		case models.BookingConfirmed:
			replayed = true
			return nil
		case models.BookingCancelled:
			return ValidationError{Field: "status", Msg: "booking is cancelled"}
		}
		if !models.CanTransition(booking.Status, models.BookingConfirmed) {
			return ValidationError{Field: "status", Msg: fmt.Sprintf("cannot confirm a %s booking", booking.Status)}
		}

		payment, err := pendingPayment(tx, booking)
		if err != nil {
			return err
		}

		now := s.now()
		paymentUpdates := map[string]interface{}{
			"status":  models.PaymentCompleted,
			"method":  method,
			"paid_at": now,
		}
		if externalRef != "" {
			paymentUpdates["transaction_id"] = externalRef
		}
		if err := tx.Model(payment).Updates(paymentUpdates).Error; err != nil {
			return err
		}

		err = tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
			"status":         models.BookingConfirmed,
			"payment_status": models.PaymentCompleted,
			"payment_method": method,
			"confirmed_at":   now,
		}).Error
		if err != nil {
			return err
		}

		return tx.Model(&models.InventoryUnit{}).Where("id = ?", booking.UnitID).
			Update("booking_count", gorm.Expr("booking_count + ?", 1)).Error
	})
	if err != nil {
		metrics.PaymentConfirmations.WithLabelValues("error").Inc()
		return nil, wrapTxError("confirm payment", err)
	}

	if replayed {
		metrics.PaymentConfirmations.WithLabelValues("replayed").Inc()
		log.Printf("Payment confirmation replayed for booking %s", bookingID)
		return s.reload(ctx, bookingID)
	}

	metrics.PaymentConfirmations.WithLabelValues("confirmed").Inc()
	if s.settlement != nil {
		if serr := s.settlement.Settle(ctx, bookingID, PostPayment); serr != nil {
			log.Printf("Warning: post-payment settlement for booking %s incomplete: %v", bookingID, serr)
		}
	}
	if s.vouchers != nil {
		s.vouchers.GenerateAsync(bookingID)
	}
	return s.reload(ctx, bookingID)
}

// awaitApproval records an offline method and leaves the booking PENDING
// until an admin approves it.
func (s *PaymentService) awaitApproval(ctx context.Context, bookingID uuid.UUID, method string) (*models.Booking, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := lockBooking(tx, bookingID)
		if err != nil {
			return err
		}
		switch booking.Status {
		case models.BookingConfirmed:
			return nil
		case models.BookingCancelled:
			return ValidationError{Field: "status", Msg: "booking is cancelled"}
		}
		if booking.Status == models.BookingPending && booking.PaymentMethod != nil && *booking.PaymentMethod == method {
			return nil
		}

		payment, err := pendingPayment(tx, booking)
		if err != nil {
			return err
		}
		if err := tx.Model(payment).Update("method", method).Error; err != nil {
			return err
		}
		changed = true
		return tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
			"status":         models.BookingPending,
			"payment_method": method,
		}).Error
	})
	if err != nil {
		metrics.PaymentConfirmations.WithLabelValues("error").Inc()
		return nil, wrapTxError("record offline payment", err)
	}

	booking, err := s.reload(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.PaymentConfirmations.WithLabelValues("pending_approval").Inc()
		s.requestApproval(ctx, booking, method)
	}
	return booking, nil
}

func (s *PaymentService) requestApproval(ctx context.Context, booking *models.Booking, method string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyAdmins(ctx, NotifyInput{
		Type:      models.NotifApprovalRequired,
		Title:     "Payment approval required",
		Message:   fmt.Sprintf("Booking %s will be paid by %s and needs manual approval.", booking.BookingNumber, strings.ReplaceAll(method, "_", " ")),
		ActionURL: "/admin/bookings/" + booking.ID.String(),
		Payload: map[string]interface{}{
			"booking_id":     booking.ID,
			"booking_number": booking.BookingNumber,
			"method":         method,
			"amount":         booking.Total,
			"currency":       booking.Currency,
		},
		Priority: models.PriorityHigh,
	})
	if err != nil {
		log.Printf("🔥 Failed to notify admins about booking %s: %v", booking.BookingNumber, err)
	}
}

// ApproveOfflinePayment is the admin action that confirms an offline
// booking. An empty reference is replaced by one derived from the booking.
func (s *PaymentService) ApproveOfflinePayment(ctx context.Context, bookingID, adminID uuid.UUID, reference string) (*models.Booking, error) {
	booking, err := s.reload(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingConfirmed {
		return booking, nil
	}
	if booking.Status != models.BookingPending || booking.PaymentMethod == nil || !models.IsOfflineMethod(*booking.PaymentMethod) {
		return nil, ValidationError{Field: "status", Msg: "booking is not awaiting offline payment approval"}
	}

	reference = strings.TrimSpace(reference)
	if reference == "" {
		reference = "MANUAL-" + booking.BookingNumber
	}
	log.Printf("Admin %s approved %s payment for booking %s", adminID, *booking.PaymentMethod, booking.BookingNumber)
	return s.confirm(ctx, bookingID, *booking.PaymentMethod, reference)
}

// InitiatePayment starts an online payment with the gateway registered for
// method, then records the gateway reference on the pending payment.
func (s *PaymentService) InitiatePayment(ctx context.Context, bookingID uuid.UUID, method string, metadata map[string]string) (*payments.InitiateResult, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	booking, err := s.reload(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPendingPayment && booking.Status != models.BookingPending {
		return nil, ValidationError{Field: "status", Msg: fmt.Sprintf("cannot pay for a %s booking", booking.Status)}
	}

	if models.IsOfflineMethod(method) {
		if _, err := s.awaitApproval(ctx, bookingID, method); err != nil {
			return nil, err
		}
		return &payments.InitiateResult{Status: "awaiting_approval", Reference: booking.BookingNumber}, nil
	}

	gw, ok := s.gateways[method]
	if !ok {
		return nil, ValidationError{Field: "method", Msg: fmt.Sprintf("unsupported payment method %q", method)}
	}

	meta := map[string]string{}
	for k, v := range metadata {
		meta[k] = v
	}
	meta["booking_id"] = booking.ID.String()
	meta["booking_number"] = booking.BookingNumber

	result, err := gw.Initiate(ctx, booking.Total, booking.Currency, meta)
	if err != nil {
		log.Printf("🔥 %s initiate failed for booking %s: %v", gw.Name(), booking.BookingNumber, err)
		return nil, InfrastructureError{Op: "initiate payment", Err: err}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockBooking(tx, bookingID)
		if err != nil {
			return err
		}
		if !models.CanTransition(locked.Status, models.BookingPending) {
			return ValidationError{Field: "status", Msg: fmt.Sprintf("booking became %s", locked.Status)}
		}
		payment, err := pendingPayment(tx, locked)
		if err != nil {
			return err
		}
		if err := tx.Model(payment).Updates(map[string]interface{}{
			"method":      method,
			"gateway":     gw.Name(),
			"gateway_ref": result.Reference,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Booking{}).Where("id = ?", locked.ID).Updates(map[string]interface{}{
			"status":         models.BookingPending,
			"payment_status": models.PaymentPending,
			"payment_method": method,
		}).Error
	})
	if err != nil {
		return nil, wrapTxError("record payment initiation", err)
	}
	return result, nil
}

// FindByGatewayRef resolves a gateway reference to its payment.
func (s *PaymentService) FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("gateway_ref = ?", gatewayRef).Order("created_at DESC").First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "payment", Err: err}
		}
		return nil, InfrastructureError{Op: "load payment", Err: err}
	}
	return &payment, nil
}

// ConfirmByGatewayRef confirms the booking behind a gateway callback. The
// gateway took the money, so a later switch to an offline method does not
// route the callback into manual approval.
func (s *PaymentService) ConfirmByGatewayRef(ctx context.Context, gatewayRef, externalRef string) (*models.Booking, error) {
	payment, err := s.FindByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, err
	}
	method := ""
	if payment.Method != nil {
		method = *payment.Method
	}
	if payment.Gateway != nil && (method == "" || models.IsOfflineMethod(method)) {
		method = *payment.Gateway
	}
	return s.ConfirmPayment(ctx, payment.BookingID, method, externalRef)
}

// MarkPaymentFailed records a failed gateway callback. The booking keeps its
// claim so the customer can retry before the reservation expires.
func (s *PaymentService) MarkPaymentFailed(ctx context.Context, gatewayRef, reason string) error {
	payment, err := s.FindByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentPending {
		return nil
	}

	var booking models.Booking
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
			Updates(map[string]interface{}{"status": models.PaymentFailed, "failure_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&booking, "id = ?", payment.BookingID).Error; err != nil {
			return err
		}
		if booking.Status.IsTerminal() {
			return nil
		}
		return tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("payment_status", models.PaymentFailed).Error
	})
	if err != nil {
		return wrapTxError("mark payment failed", err)
	}

	if s.notifier != nil && !booking.Status.IsTerminal() {
		if _, nerr := s.notifier.Notify(ctx, NotifyInput{
			RecipientID: booking.CustomerID,
			Role:        models.RoleCustomer,
			Type:        models.NotifPaymentFailed,
			Title:       "Payment failed",
			Message:     fmt.Sprintf("Payment for booking %s did not go through. You can try again.", booking.BookingNumber),
			ActionURL:   "/bookings/" + booking.ID.String(),
			Priority:    models.PriorityHigh,
		}); nerr != nil {
			log.Printf("Warning: could not notify customer of failed payment: %v", nerr)
		}
	}
	return nil
}

// AttachTransferProof uploads the customer's bank transfer receipt and asks
// admins to review it.
func (s *PaymentService) AttachTransferProof(ctx context.Context, bookingID, customerID uuid.UUID, file io.Reader) (*models.Payment, error) {
	if s.uploader == nil {
		return nil, InfrastructureError{Op: "upload transfer proof", Err: errors.New("uploads are not configured")}
	}
	booking, err := s.reload(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != customerID {
		return nil, NotFoundError{Resource: "booking"}
	}
	if booking.Status != models.BookingPending || booking.PaymentMethod == nil || *booking.PaymentMethod != models.MethodBankTransfer {
		return nil, ValidationError{Field: "status", Msg: "booking is not awaiting a bank transfer"}
	}

	proofURL, err := s.uploader.Upload(ctx, file, "staybook_transfer_proofs", booking.BookingNumber+"_"+uuid.NewString(), "auto")
	if err != nil {
		return nil, InfrastructureError{Op: "upload transfer proof", Err: err}
	}

	var payment *models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := pendingPayment(tx, booking)
		if err != nil {
			return err
		}
		payment = p
		return tx.Model(p).Update("proof_url", proofURL).Error
	})
	if err != nil {
		return nil, wrapTxError("store transfer proof", err)
	}
	payment.ProofURL = &proofURL

	s.requestApproval(ctx, booking, models.MethodBankTransfer)
	return payment, nil
}

// CancelBooking releases the booking's capacity. Cancelling twice is a
// no-op. Commissions of confirmed bookings are marked disputed for refund
// handling.
func (s *PaymentService) CancelBooking(ctx context.Context, req CancelRequest) (*models.Booking, error) {
	var cancelled *models.Booking
	alreadyCancelled := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := lockBooking(tx, req.BookingID)
		if err != nil {
			return err
		}
		if !canActOn(booking, req.ActorID, req.ActorRole) {
			return NotFoundError{Resource: "booking"}
		}
		if booking.Status == models.BookingCancelled {
			alreadyCancelled = true
			cancelled = booking
			return nil
		}
		if req.OnlyIf != "" && booking.Status != req.OnlyIf {
			return ValidationError{Field: "status", Msg: fmt.Sprintf("booking is %s, not %s", booking.Status, req.OnlyIf)}
		}
		if !models.CanTransition(booking.Status, models.BookingCancelled) {
			return ValidationError{Field: "status", Msg: fmt.Sprintf("cannot cancel a %s booking", booking.Status)}
		}
		wasConfirmed := booking.Status == models.BookingConfirmed

		now := s.now()
		updates := map[string]interface{}{
			"status":       models.BookingCancelled,
			"cancelled_at": now,
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			updates["cancellation_reason"] = reason
		}
		if err := tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Where("booking_id = ?", booking.ID).Delete(&models.BlockedPeriod{}).Error; err != nil {
			return err
		}

		err = tx.Model(&models.Payment{}).
			Where("booking_id = ? AND status = ?", booking.ID, models.PaymentPending).
			Updates(map[string]interface{}{"status": models.PaymentFailed, "failure_reason": "booking cancelled"}).Error
		if err != nil {
			return err
		}

		if wasConfirmed {
			err = tx.Model(&models.Commission{}).
				Where("booking_id = ? AND status = ?", booking.ID, models.CommissionPending).
				Update("status", models.CommissionDisputed).Error
			if err != nil {
				return err
			}
		}

		booking.Status = models.BookingCancelled
		booking.CancelledAt = &now
		cancelled = booking
		return nil
	})
	if err != nil {
		return nil, wrapTxError("cancel booking", err)
	}
	if alreadyCancelled {
		return cancelled, nil
	}

	if s.availability != nil {
		s.availability.Invalidate(cancelled.UnitID)
	}
	log.Printf("Booking %s cancelled by %s %s", cancelled.BookingNumber, req.ActorRole, req.ActorID)
	s.announceCancellation(ctx, cancelled)
	return s.reload(ctx, cancelled.ID)
}

func canActOn(booking *models.Booking, actorID uuid.UUID, role string) bool {
	switch role {
	case models.RoleAdmin, RoleSystem:
		return true
	case models.RoleProvider:
		return booking.ProviderID == actorID
	}
	return booking.CustomerID == actorID
}

func (s *PaymentService) announceCancellation(ctx context.Context, booking *models.Booking) {
	if s.settlement != nil {
		s.settlement.publish(ctx, EventBookingCancelled, booking)
	}
	if s.notifier == nil {
		return
	}
	message := fmt.Sprintf("Booking %s (%s) was cancelled.", booking.BookingNumber, booking.StartDate.Format(dayLayout))
	for _, in := range []NotifyInput{
		{RecipientID: booking.CustomerID, Role: models.RoleCustomer},
		{RecipientID: booking.ProviderID, Role: models.RoleProvider},
	} {
		in.Type = models.NotifBookingCancelled
		in.Title = "Booking cancelled"
		in.Message = message
		in.ActionURL = "/bookings/" + booking.ID.String()
		in.Priority = models.PriorityNormal
		if _, err := s.notifier.Notify(ctx, in); err != nil {
			log.Printf("Warning: cancellation notice for %s not stored: %v", booking.BookingNumber, err)
		}
	}
}
