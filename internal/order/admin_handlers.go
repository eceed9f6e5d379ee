package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakline/storefront/internal/audit"
	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/store"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus assigns any valid status to the order. No transition graph is
// enforced; side effects run through the service.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	oID, err := store.ToUUID(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	target := Status(req.Status)
	if !target.IsValid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	actor := audit.Actor{Kind: audit.ActorKindUser}
	if adminID, ok := common.UserID(r.Context()); ok {
		if id, err := store.ToUUID(adminID); err == nil {
			actor.UserID = id
		}
	}
	ord, err := h.Svc.SetStatus(r.Context(), actor, oID, target)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update order status", nil)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"id":     store.UUIDString(ord.ID),
		"status": ord.Status,
	})
}
