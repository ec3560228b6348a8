package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	config "github.com/anjiri1684/staybook/configs"
)

const kcbBaseURL = "https://api.buni.kcbgroup.com/mm/api/request/1.0.0"

type StkPushRequest struct {
	PhoneNumber            string `json:"phoneNumber"`
	Amount                 string `json:"amount"`
	InvoiceNumber          string `json:"invoiceNumber"`
	SharedShortCode        bool   `json:"sharedShortCode"`
	OrgShortCode           string `json:"orgShortCode"`
	OrgPassKey             string `json:"orgPassKey"`
	CallbackURL            string `json:"callbackUrl"`
	TransactionDescription string `json:"transactionDescription"`
}

type StkPushResponse struct {
	Header struct {
		StatusCode        string `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
	} `json:"header"`
	Response struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		CustomerMessage     string `json:"CustomerMessage"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	} `json:"response"`
}

var nonNumericRegex = regexp.MustCompile(`[^0-9]`)

func SanitizeMpesaNumber(phone string) (string, error) {
	sanitized := nonNumericRegex.ReplaceAllString(phone, "")

	if (strings.HasPrefix(sanitized, "07") || strings.HasPrefix(sanitized, "01")) && len(sanitized) == 10 {
		return "254" + sanitized[1:], nil
	}
	if (strings.HasPrefix(sanitized, "7") || strings.HasPrefix(sanitized, "1")) && len(sanitized) == 9 {
		return "254" + sanitized, nil
	}
	if strings.HasPrefix(sanitized, "254") && len(sanitized) == 12 {
		return sanitized, nil
	}

	return "", errors.New("invalid M-Pesa phone number format")
}

// RateConverter turns an amount in currency into Kenyan shillings.
type RateConverter interface {
	ToKES(ctx context.Context, amount float64, currency string) (float64, error)
}

// MpesaGateway sends KCB Buni STK push requests. Metadata must carry the
// payer's "phone" and the "booking_number" used as invoice reference.
type MpesaGateway struct {
	BaseURL     string
	CallbackURL string
	Account     string
	RouteCode   string
	Description string
	tokens      *kcbTokenSource
	rates       RateConverter
	client      *http.Client
}

func NewMpesaGateway(rates RateConverter) *MpesaGateway {
	client := &http.Client{Timeout: 10 * time.Second}
	return &MpesaGateway{
		BaseURL:     kcbBaseURL,
		CallbackURL: config.Config("WEBHOOK_BASE_URL") + "/api/v1/payments/mpesa/webhook",
		Account:     config.Config("KCB_ACCOUNT_NUMBER"),
		RouteCode:   config.Config("KCB_ROUTE_CODE"),
		Description: config.Config("KCB_TRANSACTION_DESC"),
		tokens: &kcbTokenSource{
			url:       kcbTokenURL,
			apiKey:    config.Config("KCB_API_KEY"),
			apiSecret: config.Config("KCB_API_SECRET"),
			client:    client,
		},
		rates:  rates,
		client: client,
	}
}

func (g *MpesaGateway) Name() string { return "mpesa" }

func (g *MpesaGateway) Initiate(ctx context.Context, amount float64, currency string, metadata map[string]string) (*InitiateResult, error) {
	if g.rates != nil && !strings.EqualFold(currency, "KES") {
		converted, err := g.rates.ToKES(ctx, amount, currency)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s to KES: %w", currency, err)
		}
		amount = converted
	}

	resp, err := g.stkPush(ctx, amount, metadata["phone"], metadata["booking_number"])
	if err != nil {
		return nil, err
	}
	return &InitiateResult{Status: StatusPending, Reference: resp.Response.CheckoutRequestID}, nil
}

func (g *MpesaGateway) stkPush(ctx context.Context, amount float64, phoneNumber, reference string) (*StkPushResponse, error) {
	if g.Account == "" {
		return nil, fmt.Errorf("KCB_ACCOUNT_NUMBER is not set")
	}
	sanitizedPhone, err := SanitizeMpesaNumber(phoneNumber)
	if err != nil {
		return nil, err
	}

	accessToken, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get KCB access token: %w", err)
	}

	payload := StkPushRequest{
		PhoneNumber:            sanitizedPhone,
		Amount:                 strconv.FormatFloat(amount, 'f', 0, 64),
		InvoiceNumber:          fmt.Sprintf("%s-%s", g.Account, reference),
		SharedShortCode:        true,
		CallbackURL:            g.CallbackURL,
		TransactionDescription: g.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STK payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/stkpush", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create STK request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("routeCode", g.RouteCode)
	req.Header.Set("operation", "STKPush")
	req.Header.Set("messageId", fmt.Sprintf("%s_%d", reference, time.Now().UnixNano()))
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send STK request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read STK response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("KCB API Error: %s", string(respBody))
		return nil, fmt.Errorf("KCB Buni API returned non-200 status: %d", resp.StatusCode)
	}

	var stkResponse StkPushResponse
	if err := json.Unmarshal(respBody, &stkResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal STK response: %w", err)
	}

	if stkResponse.Response.ResponseCode != "0" {
		log.Printf("KCB STK Push initiation failed: %s", stkResponse.Response.ResponseDescription)
		return nil, fmt.Errorf("KCB STK Push failed: %s", stkResponse.Response.ResponseDescription)
	}

	log.Println("✅ STK Push initiated successfully for booking:", reference)
	return &stkResponse, nil
}
