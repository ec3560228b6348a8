package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

type ExchangeRateResponse struct {
	Result          string             `json:"result"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// ExchangeRates caches USD-based conversion rates for six hours.
type ExchangeRates struct {
	APIKey  string
	BaseURL string
	client  *http.Client

	mu        sync.RWMutex
	rates     map[string]float64
	fetchedAt time.Time
}

func NewExchangeRates(apiKey string) *ExchangeRates {
	return &ExchangeRates{
		APIKey:  apiKey,
		BaseURL: "https://v6.exchangerate-api.com/v6",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *ExchangeRates) Rates(ctx context.Context) (map[string]float64, error) {
	r.mu.RLock()
	if time.Since(r.fetchedAt) < 6*time.Hour && r.rates != nil {
		rates := r.rates
		r.mu.RUnlock()
		return rates, nil
	}
	r.mu.RUnlock()

	if r.APIKey == "" {
		return nil, fmt.Errorf("exchange rate API key not configured")
	}

	log.Println("Fetching fresh exchange rates from API...")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/latest/USD", r.BaseURL, r.APIKey), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data ExchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if data.Result != "success" {
		return nil, fmt.Errorf("currency API returned an error")
	}

	r.mu.Lock()
	r.rates = data.ConversionRates
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	log.Println("Successfully updated currency exchange rate cache.")

	return data.ConversionRates, nil
}

// ToKES converts amount from currency into Kenyan shillings.
func (r *ExchangeRates) ToKES(ctx context.Context, amount float64, currency string) (float64, error) {
	rates, err := r.Rates(ctx)
	if err != nil {
		return 0, err
	}

	kesRate, ok := rates["KES"]
	if !ok {
		return 0, fmt.Errorf("KES exchange rate not found in API response")
	}
	currency = strings.ToUpper(currency)
	if currency == "" || currency == "USD" {
		return amount * kesRate, nil
	}
	fromRate, ok := rates[currency]
	if !ok || fromRate == 0 {
		return 0, fmt.Errorf("%s exchange rate not found in API response", currency)
	}
	return amount / fromRate * kesRate, nil
}
