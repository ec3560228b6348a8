package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	config "github.com/anjiri1684/staybook/configs"
)

type PayPalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units,omitempty"`
}

// CaptureID is the id of the first capture, which is the settled transaction.
func (o *PayPalOrder) CaptureID() string {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return o.ID
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type PayPalGateway struct {
	APIBase      string
	ClientID     string
	ClientSecret string
	client       *http.Client
}

func NewPayPalGateway() *PayPalGateway {
	return &PayPalGateway{
		APIBase:      config.Config("PAYPAL_API_BASE_URL"),
		ClientID:     config.Config("PAYPAL_CLIENT_ID"),
		ClientSecret: config.Config("PAYPAL_CLIENT_SECRET"),
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *PayPalGateway) Name() string { return "paypal" }

func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	reqBody := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/oauth2/token", g.APIBase), reqBody)
	if err != nil {
		return "", err
	}

	req.SetBasicAuth(g.ClientID, g.ClientSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get access token, status: %s", resp.Status)
	}

	var tokenResp accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	return tokenResp.AccessToken, nil
}

// Initiate creates a CAPTURE order. The order id is the reference the
// client approves and later sends back for capture.
func (g *PayPalGateway) Initiate(ctx context.Context, amount float64, currency string, metadata map[string]string) (*InitiateResult, error) {
	order, err := g.CreateOrder(ctx, amount, currency, metadata["booking_number"])
	if err != nil {
		return nil, err
	}
	return &InitiateResult{Status: StatusCreated, Reference: order.ID, ClientSecret: order.ID}, nil
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, amount float64, currency, invoiceID string) (*PayPalOrder, error) {
	accessToken, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	unit := map[string]interface{}{
		"amount": map[string]string{
			"currency_code": currency,
			"value":         fmt.Sprintf("%.2f", amount),
		},
	}
	if invoiceID != "" {
		unit["invoice_id"] = invoiceID
	}
	payload := map[string]interface{}{
		"intent":         "CAPTURE",
		"purchase_units": []map[string]interface{}{unit},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v2/checkout/orders", g.APIBase), bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to create order: %s", string(respBody))
	}

	var order PayPalOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (*PayPalOrder, error) {
	accessToken, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v2/checkout/orders/%s/capture", g.APIBase, orderID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to capture order: %s", string(respBody))
	}

	var order PayPalOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}
