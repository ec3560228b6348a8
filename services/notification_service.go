package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/anjiri1684/staybook/metrics"
	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Publisher pushes a real-time event to one recipient. Delivery is at most
// once; the stored notification is the source of truth.
type Publisher interface {
	Publish(recipientID uuid.UUID, event any) error
}

// Mailer sends one transactional email.
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlContent string) error
}

type NotifyInput struct {
	RecipientID uuid.UUID
	Role        string
	Type        models.NotificationType
	Title       string
	Message     string
	ActionURL   string
	Payload     any
	Priority    string
	SendEmail   bool
}

type PushEvent struct {
	Event        string               `json:"event"`
	Notification *models.Notification `json:"notification"`
}

// NotificationService persists notifications on its own connection and then
// pushes them best-effort. It never takes part in a caller's transaction.
type NotificationService struct {
	db        *gorm.DB
	publisher Publisher
	mailer    Mailer
}

func NewNotificationService(db *gorm.DB, publisher Publisher, mailer Mailer) *NotificationService {
	return &NotificationService{db: db, publisher: publisher, mailer: mailer}
}

func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	if in.RecipientID == uuid.Nil {
		return nil, ValidationError{Field: "recipient_id", Msg: "is required"}
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	n := models.Notification{
		RecipientID:   in.RecipientID,
		RecipientRole: in.Role,
		Type:          in.Type,
		Title:         in.Title,
		Message:       in.Message,
		Priority:      priority,
	}
	if in.ActionURL != "" {
		actionURL := in.ActionURL
		n.ActionURL = &actionURL
	}
	if in.Payload != nil {
		raw, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode notification payload: %w", err)
		}
		payload := string(raw)
		n.Payload = &payload
	}

	// a cancelled request must not lose the record
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&n).Error; err != nil {
		log.Printf("🔥 Failed to store %s notification for %s: %v", in.Type, in.RecipientID, err)
		return nil, err
	}

	s.push(&n)
	if in.SendEmail {
		s.email(in)
	}
	return &n, nil
}

func (s *NotificationService) push(n *models.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(n.RecipientID, PushEvent{Event: "notification", Notification: n}); err != nil {
		metrics.NotificationPushFailures.Inc()
		log.Printf("Warning: real-time push to %s failed: %v", n.RecipientID, err)
	}
}

func (s *NotificationService) email(in NotifyInput) {
	if s.mailer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var user models.User
		if err := s.db.WithContext(ctx).Select("id", "full_name", "email").First(&user, "id = ?", in.RecipientID).Error; err != nil {
			log.Printf("Warning: no email recipient for notification %s: %v", in.Type, err)
			return
		}
		if err := s.mailer.Send(ctx, user.Email, user.FullName, in.Title, emailBody(in.Title, in.Message)); err != nil {
			log.Printf("🔥 Failed to email %s: %v", user.Email, err)
		}
	}()
}

// emailBody renders a notification as HTML. Titles and messages carry
// user-supplied text such as unit titles, so both are escaped.
func emailBody(title, message string) string {
	return fmt.Sprintf("<h1>%s</h1><p>%s</p>", template.HTMLEscapeString(title), template.HTMLEscapeString(message))
}

// NotifyAdmins sends the same notification to every active admin.
func (s *NotificationService) NotifyAdmins(ctx context.Context, in NotifyInput) error {
	var adminIDs []uuid.UUID
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Pluck("id", &adminIDs).Error
	if err != nil {
		return err
	}
	if len(adminIDs) == 0 {
		log.Printf("Warning: no admin to receive %s notification", in.Type)
		return nil
	}

	var errs []error
	for _, id := range adminIDs {
		in.RecipientID = id
		in.Role = models.RoleAdmin
		if _, err := s.Notify(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) ListForRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var list []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, InfrastructureError{Op: "list notifications", Err: err}
	}
	return list, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	if res.Error != nil {
		return InfrastructureError{Op: "mark notification read", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return NotFoundError{Resource: "notification"}
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	if res.Error != nil {
		return 0, InfrastructureError{Op: "mark notifications read", Err: res.Error}
	}
	return res.RowsAffected, nil
}
