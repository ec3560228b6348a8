package payments

import "context"

const (
	StatusCreated  = "created"
	StatusPending  = "pending"
	StatusApproved = "approved"
)

type InitiateResult struct {
	Status       string `json:"status"`
	Reference    string `json:"reference"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Gateway starts a payment with an external collaborator. Confirmation
// arrives later through a callback or capture call.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, amount float64, currency string, metadata map[string]string) (*InitiateResult, error)
}
