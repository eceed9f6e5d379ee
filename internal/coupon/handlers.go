package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/store"
)

// AdminQuerier captures the store methods needed by coupon administration.
type AdminQuerier interface {
	CreateCoupon(ctx context.Context, p store.CouponParams) (store.Coupon, error)
	UpdateCoupon(ctx context.Context, p store.CouponParams) (store.Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int32) ([]store.Coupon, error)
	CountCoupons(ctx context.Context) (int64, error)
}

// Handler exposes the shopper validation endpoint and admin management.
type Handler struct {
	Svc      *Service
	Admin    AdminQuerier
	Validate *validator.Validate
}

type validateRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type couponView struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	DiscountType  string  `json:"discountType"`
	DiscountValue float64 `json:"discountValue"`
}

type adminPayload struct {
	Code          string     `json:"code" validate:"required,min=3,max=32"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=PERCENTAGE FIXED"`
	DiscountValue float64    `json:"discountValue" validate:"required,gt=0"`
	MinOrderValue *int64     `json:"minOrderValue" validate:"omitempty,gt=0"`
	MaxDiscount   *int64     `json:"maxDiscount" validate:"omitempty,gt=0"`
	StartDate     time.Time  `json:"startDate" validate:"required"`
	EndDate       time.Time  `json:"endDate" validate:"required,gtfield=StartDate"`
	UsageLimit    *int32     `json:"usageLimit" validate:"omitempty,gt=0"`
	IsActive      *bool      `json:"isActive"`
}

// ValidateCode evaluates a coupon against a subtotal without consuming usage.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.Subtotal < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "subtotal must not be negative", nil)
		return
	}
	applied, err := h.Svc.Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		code := ErrorCode(err)
		if code == "INTERNAL" {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to validate coupon", nil)
			return
		}
		var details map[string]any
		var minErr MinimumSpendError
		if errors.As(err, &minErr) {
			details = map[string]any{"minOrderValue": int64(minErr.Minimum)}
		}
		common.JSONError(w, http.StatusBadRequest, code, err.Error(), details)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"coupon":   viewFromApplied(applied),
		"discount": int64(applied.Discount),
	})
}

// Create inserts a new coupon rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeAdminPayload(w, r)
	if !ok {
		return
	}
	params, err := buildParams(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	created, err := h.Admin.CreateCoupon(r.Context(), params)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "coupon code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create coupon", nil)
		return
	}
	common.JSONData(w, http.StatusCreated, adminView(created))
}

// Update mutates an existing coupon identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	payload, ok := h.decodeAdminPayload(w, r)
	if !ok {
		return
	}
	payload.Code = code
	params, err := buildParams(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	updated, err := h.Admin.UpdateCoupon(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "coupon not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update coupon", nil)
		return
	}
	common.JSONData(w, http.StatusOK, adminView(updated))
}

// List returns coupons for the admin back office, paginated.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Admin == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon queries not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	total, err := h.Admin.CountCoupons(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list coupons", nil)
		return
	}
	rows, err := h.Admin.ListCoupons(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list coupons", nil)
		return
	}
	views := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		views = append(views, adminView(row))
	}
	meta := common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)}
	common.JSON(w, http.StatusOK, map[string]any{"data": views, "meta": meta})
}

func (h *Handler) decodeAdminPayload(w http.ResponseWriter, r *http.Request) (adminPayload, bool) {
	if h.Admin == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon queries not configured", nil)
		return adminPayload{}, false
	}
	var payload adminPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return adminPayload{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return adminPayload{}, false
		}
	}
	return payload, true
}

func buildParams(payload adminPayload) (store.CouponParams, error) {
	params := store.CouponParams{
		Code:    NormalizeCode(payload.Code),
		StartAt: payload.StartDate,
		EndAt:   payload.EndDate,
		Active:  true,
	}
	if payload.IsActive != nil {
		params.Active = *payload.IsActive
	}
	switch payload.DiscountType {
	case "PERCENTAGE":
		if payload.DiscountValue > 100 {
			return store.CouponParams{}, errors.New("percentage discount must not exceed 100")
		}
		params.Kind = string(KindPercent)
		// round, not truncate: 10.1% must store 1010 bps
		bps := int32(math.Round(payload.DiscountValue * 100))
		params.PercentBps = pgtype.Int4{Int32: bps, Valid: true}
	case "FIXED":
		params.Kind = string(KindFixed)
		params.Value = int64(payload.DiscountValue)
	default:
		return store.CouponParams{}, errors.New("invalid discount type")
	}
	params.MinSpend = store.NullableInt8(payload.MinOrderValue)
	params.MaxDiscount = store.NullableInt8(payload.MaxDiscount)
	params.UsageLimit = store.NullableInt4(payload.UsageLimit)
	return params, nil
}

func viewFromApplied(applied Applied) couponView {
	return couponView{
		ID:            store.UUIDString(applied.Coupon.ID),
		Code:          applied.Coupon.Code,
		DiscountType:  discountTypeLabel(applied.Rule.Kind),
		DiscountValue: discountValue(applied.Rule),
	}
}

func adminView(c store.Coupon) map[string]any {
	rule := RuleFromRow(c)
	view := map[string]any{
		"id":            store.UUIDString(c.ID),
		"code":          c.Code,
		"discountType":  discountTypeLabel(rule.Kind),
		"discountValue": discountValue(rule),
		"startDate":     c.StartAt,
		"endDate":       c.EndAt,
		"usedCount":     c.UsedCount,
		"isActive":      c.Active,
	}
	if v := store.Int8Ptr(c.MinSpend); v != nil {
		view["minOrderValue"] = *v
	}
	if v := store.Int8Ptr(c.MaxDiscount); v != nil {
		view["maxDiscount"] = *v
	}
	if v := store.Int4Ptr(c.UsageLimit); v != nil {
		view["usageLimit"] = *v
	}
	return view
}

func discountTypeLabel(kind Kind) string {
	if kind == KindPercent {
		return "PERCENTAGE"
	}
	return "FIXED"
}

func discountValue(rule Rule) float64 {
	if rule.Kind == KindPercent {
		return float64(rule.PercentBps) / 100
	}
	return float64(rule.Value)
}
