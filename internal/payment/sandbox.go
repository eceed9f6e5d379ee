package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sandbox is a self-contained provider for development and tests. Intents
// are synthesised locally and webhooks are verified against an HMAC-SHA256
// signature computed over order id, status, and amount.
type Sandbox struct {
	Secret  string
	BaseURL string
}

// CreateIntent issues a deterministic reference without a network call.
func (s Sandbox) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return IntentResponse{}, errors.New("order id is required")
	}
	reference := "SBX-" + req.OrderID
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = "https://sandbox.invalid"
	}
	expiresAt := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	return IntentResponse{
		Provider:    "sandbox",
		Reference:   reference,
		RedirectURL: fmt.Sprintf("%s/pay/%s", base, reference),
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}

type sandboxWebhookPayload struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Signature string `json:"signature"`
}

// VerifyWebhook checks the payload signature and normalises the result.
func (s Sandbox) VerifyWebhook(_ *http.Request, body []byte) (WebhookVerifyResult, error) {
	var payload sandboxWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if payload.OrderID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing order id")}, nil
	}
	expected := s.Sign(payload.OrderID, payload.Status, payload.Amount)
	provided := strings.TrimSpace(payload.Signature)
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}
	return WebhookVerifyResult{
		Valid:           true,
		OrderID:         payload.OrderID,
		Amount:          payload.Amount,
		Status:          normaliseStatus(payload.Status),
		ProviderPayload: body,
	}, nil
}

// Sign computes the webhook signature for the given fields. Exposed so the
// seeder and tests can produce valid callbacks.
func (s Sandbox) Sign(orderID, status string, amount int64) string {
	key := strings.TrimSpace(s.Secret)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(orderID))
	mac.Write([]byte(status))
	mac.Write([]byte(strconv.FormatInt(amount, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SUCCESS", "SETTLED":
		return StatusPaid
	case "FAILED", "CANCELED", "CANCELLED", "DENY":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusPending
	}
}
