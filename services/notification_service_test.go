package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNotifyStoresAndPushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifier.Notify(ctx, NotifyInput{
		RecipientID: f.customer.ID,
		Role:        models.RoleCustomer,
		Type:        models.NotifBookingConfirmed,
		Title:       "Booking confirmed",
		Message:     "See you soon",
		ActionURL:   "/bookings/1",
		Payload:     map[string]any{"booking_number": "BK-1"},
	})
	require.NoError(t, err)
	require.Equal(t, models.PriorityNormal, n.Priority)
	require.NotNil(t, n.Payload)
	require.JSONEq(t, `{"booking_number":"BK-1"}`, *n.Payload)

	require.Len(t, f.pusher.events, 1)
	event, ok := f.pusher.events[0].(PushEvent)
	require.True(t, ok)
	require.Equal(t, "notification", event.Event)
	require.Equal(t, n.ID, event.Notification.ID)
}

func TestNotifyKeepsRecordWhenPushFails(t *testing.T) {
	f := newFixture(t)
	f.pusher.err = errors.New("socket closed")

	n, err := f.notifier.Notify(context.Background(), NotifyInput{
		RecipientID: f.customer.ID,
		Role:        models.RoleCustomer,
		Type:        models.NotifPaymentFailed,
		Title:       "Payment failed",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.count(t, &models.Notification{}, "id = ?", n.ID))
}

func TestNotifyRequiresRecipient(t *testing.T) {
	f := newFixture(t)
	_, err := f.notifier.Notify(context.Background(), NotifyInput{Type: models.NotifPaymentFailed})
	require.True(t, IsValidation(err))
}

func TestNotifyAdminsReachesEveryActiveAdmin(t *testing.T) {
	f := newFixture(t)
	second := f.user(t, "Night Admin", models.RoleAdmin)
	retired := f.user(t, "Retired Admin", models.RoleAdmin)
	require.NoError(t, f.db.Model(&retired).Update("is_active", false).Error)

	err := f.notifier.NotifyAdmins(context.Background(), NotifyInput{
		Type:  models.NotifApprovalRequired,
		Title: "Payment approval required",
	})
	require.NoError(t, err)

	require.EqualValues(t, 1, f.count(t, &models.Notification{}, "recipient_id = ?", f.admin.ID))
	require.EqualValues(t, 1, f.count(t, &models.Notification{}, "recipient_id = ?", second.ID))
	require.EqualValues(t, 0, f.count(t, &models.Notification{}, "recipient_id = ?", retired.ID))
	require.EqualValues(t, 2, f.count(t, &models.Notification{}, "recipient_role = ?", models.RoleAdmin))
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n, err := f.notifier.Notify(ctx, NotifyInput{
			RecipientID: f.customer.ID,
			Role:        models.RoleCustomer,
			Type:        models.NotifCheckInReminder,
			Title:       "Check-in tomorrow",
		})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	require.True(t, IsNotFound(f.notifier.MarkRead(ctx, f.provider.ID, ids[0])))
	require.NoError(t, f.notifier.MarkRead(ctx, f.customer.ID, ids[0]))

	unread, err := f.notifier.ListForRecipient(ctx, f.customer.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	updated, err := f.notifier.MarkAllRead(ctx, f.customer.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated)

	all, err := f.notifier.ListForRecipient(ctx, f.customer.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, n := range all {
		require.True(t, n.IsRead)
		require.NotNil(t, n.ReadAt)
	}
}

type sentEmail struct {
	to, subject, html string
}

type chanMailer chan sentEmail

func (m chanMailer) Send(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	m <- sentEmail{to: toEmail, subject: subject, html: htmlContent}
	return nil
}

func TestNotifyEmailEscapesUserText(t *testing.T) {
	f := newFixture(t)
	mailer := make(chanMailer, 1)
	notifier := NewNotificationService(f.db, nil, mailer)

	_, err := notifier.Notify(context.Background(), NotifyInput{
		RecipientID: f.customer.ID,
		Role:        models.RoleCustomer,
		Type:        models.NotifCheckInReminder,
		Title:       "Check-in tomorrow",
		Message:     `Your stay at <script>alert("x")</script> Villa & Co starts tomorrow`,
		SendEmail:   true,
	})
	require.NoError(t, err)

	select {
	case sent := <-mailer:
		require.Equal(t, f.customer.Email, sent.to)
		require.NotContains(t, sent.html, "<script>")
		require.Contains(t, sent.html, "&lt;script&gt;")
		require.Contains(t, sent.html, "Villa &amp; Co")
	case <-time.After(5 * time.Second):
		t.Fatal("email was not sent")
	}
}
