package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/staybook/models"
	"github.com/stretchr/testify/require"
)

func TestVoucherGeneratedOnceForConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitProperty, 1)
	booking := f.reserve(t, unit, "2024-06-01", "2024-06-03", 300)

	uploader := &stubUploader{}
	var rendered []string
	vouchers := NewVoucherService(f.db, uploader, "../templates/voucher.html")
	vouchers.render = func(ctx context.Context, html string) ([]byte, error) {
		rendered = append(rendered, html)
		return []byte("%PDF-1.4"), nil
	}

	_, err := vouchers.Generate(ctx, booking.ID)
	require.True(t, IsValidation(err))

	_, err = f.payments.ConfirmPayment(ctx, booking.ID, models.MethodCard, "ch_v1")
	require.NoError(t, err)

	url, err := vouchers.Generate(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, "https://res.example.com/"+booking.BookingNumber, url)
	require.Equal(t, "staybook_vouchers", uploader.folder)
	require.Equal(t, "%PDF-1.4", uploader.body)
	require.Len(t, rendered, 1)
	require.Contains(t, rendered[0], booking.ConfirmationCode)
	require.Contains(t, rendered[0], "Jane Customer")

	again, err := vouchers.Generate(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, url, again)
	require.Len(t, rendered, 1)
	require.Equal(t, url, *f.booking(t, booking.ID).VoucherURL)
}

func TestVoucherNeedsCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit := f.unit(t, models.UnitVehicle, 1)
	booking := f.reserve(t, unit, "2024-07-01", "2024-07-02", 100)
	_, err := f.payments.ConfirmPayment(ctx, booking.ID, models.MethodCard, "ch_v2")
	require.NoError(t, err)
	require.NoError(t, f.db.Delete(&models.User{}, "id = ?", f.customer.ID).Error)

	uploader := &stubUploader{}
	vouchers := NewVoucherService(f.db, uploader, "../templates/voucher.html")
	vouchers.render = func(ctx context.Context, html string) ([]byte, error) {
		t.Fatal("voucher rendered without a customer")
		return nil, nil
	}

	_, err = vouchers.Generate(ctx, booking.ID)
	require.Error(t, err)
	require.Empty(t, uploader.folder)
	require.Nil(t, f.booking(t, booking.ID).VoucherURL)
}
