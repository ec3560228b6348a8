package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PDFRenderer prints an HTML document to PDF.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

// VoucherService produces the confirmation voucher of a confirmed booking.
// It runs outside the settlement boundary; failures only leave VoucherURL
// empty.
type VoucherService struct {
	db           *gorm.DB
	uploader     FileUploader
	render       PDFRenderer
	templatePath string
}

func NewVoucherService(db *gorm.DB, uploader FileUploader, templatePath string) *VoucherService {
	return &VoucherService{
		db:           db,
		uploader:     uploader,
		render:       ChromePDF,
		templatePath: templatePath,
	}
}

type voucherData struct {
	UnitTitle        string
	ConfirmationCode string
	BookingNumber    string
	CustomerName     string
	StartDate        string
	EndDate          string
	Total            string
}

// Generate renders and uploads the voucher once, returning its URL.
func (s *VoucherService) Generate(ctx context.Context, bookingID uuid.UUID) (string, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).Preload("Unit").First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", NotFoundError{Resource: "booking", Err: err}
		}
		return "", err
	}
	if booking.Status != models.BookingConfirmed {
		return "", ValidationError{Field: "status", Msg: "voucher is only issued for confirmed bookings"}
	}
	if booking.VoucherURL != nil {
		return *booking.VoucherURL, nil
	}

	var customer models.User
	if err := s.db.WithContext(ctx).Select("id", "full_name").First(&customer, "id = ?", booking.CustomerID).Error; err != nil {
		log.Printf("Warning: no customer %s for voucher of booking %s: %v", booking.CustomerID, booking.BookingNumber, err)
		return "", fmt.Errorf("load voucher customer: %w", err)
	}

	html, err := s.renderHTML(voucherData{
		UnitTitle:        booking.Unit.Title,
		ConfirmationCode: booking.ConfirmationCode,
		BookingNumber:    booking.BookingNumber,
		CustomerName:     customer.FullName,
		StartDate:        booking.StartDate.Format("January 2, 2006"),
		EndDate:          booking.EndDate.Format("January 2, 2006"),
		Total:            fmt.Sprintf("%.2f %s", booking.Total, booking.Currency),
	})
	if err != nil {
		return "", fmt.Errorf("render voucher: %w", err)
	}

	pdf, err := s.render(ctx, html)
	if err != nil {
		return "", fmt.Errorf("print voucher: %w", err)
	}

	voucherURL, err := s.uploader.Upload(ctx, bytes.NewReader(pdf), "staybook_vouchers", booking.BookingNumber, "raw")
	if err != nil {
		return "", fmt.Errorf("upload voucher: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", booking.ID).Update("voucher_url", voucherURL).Error; err != nil {
		return "", err
	}
	log.Printf("✅ Voucher for booking %s uploaded", booking.BookingNumber)
	return voucherURL, nil
}

// GenerateAsync is the fire-and-forget form used after confirmation.
func (s *VoucherService) GenerateAsync(bookingID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Generate(ctx, bookingID); err != nil {
			log.Printf("🔥 Failed to generate voucher for booking %s: %v", bookingID, err)
		}
	}()
}

func (s *VoucherService) renderHTML(data voucherData) (string, error) {
	tmpl, err := template.ParseFiles(s.templatePath)
	if err != nil {
		return "", err
	}
	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

// ChromePDF prints html with a headless Chrome.
func ChromePDF(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}
