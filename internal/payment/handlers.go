package payment

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oakline/storefront/internal/common"
)

// Handler exposes the payment intent endpoints.
type Handler struct {
	Svc *Service
}

type intentRequest struct {
	OrderID string `json:"orderId"`
}

// Intent handles POST /api/v1/payments/intent.
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	view, err := h.Svc.CreateIntent(r.Context(), userID, req.OrderID)
	if err != nil {
		common.WriteAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, view)
}

// Status handles GET /api/v1/payments/{orderId}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	view, err := h.Svc.Status(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}
