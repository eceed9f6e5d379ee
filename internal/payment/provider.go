package payment

import (
	"context"
	"net/http"
)

// IntentRequest carries what a provider needs to open a payment intent.
type IntentRequest struct {
	OrderID   string
	Amount    int64
	Currency  string
	ExpiresIn int
}

// IntentResponse is the minimal provider answer for a created intent.
type IntentResponse struct {
	Provider    string
	Reference   string
	RedirectURL string
	ExpiresAt   int64
}

// WebhookVerifyResult holds the normalised webhook data after signature
// verification.
type WebhookVerifyResult struct {
	Valid           bool
	OrderID         string
	Amount          int64
	Status          string
	ProviderPayload []byte
	Err             error
}

// Provider abstracts an upstream payment processor.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
