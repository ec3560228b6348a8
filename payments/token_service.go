package payments

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

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

const kcbTokenURL = "https://api.buni.kcbgroup.com/token?grant_type=client_credentials"

// kcbTokenSource caches the KCB OAuth token until five minutes before expiry.
type kcbTokenSource struct {
	url       string
	apiKey    string
	apiSecret string
	client    *http.Client

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func (s *kcbTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != "" && time.Now().Before(s.expiry) {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry) {
		return s.token, nil
	}

	log.Println("Fetching new KCB access token...")
	reqBody := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, reqBody)
	if err != nil {
		return "", err
	}

	req.SetBasicAuth(s.apiKey, s.apiSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("KCB token API returned non-200 status: %s", resp.Status)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}

	s.token = tokenResp.AccessToken
	s.expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-300) * time.Second)
	log.Println("Successfully fetched and cached KCB access token.")

	return s.token, nil
}
