package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/store"
)

type queryProvider interface {
	GetProductBySlug(ctx context.Context, slug string) (store.Product, error)
	ListProducts(ctx context.Context, limit, offset int32) ([]store.Product, error)
	CountProducts(ctx context.Context) (int64, error)
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries      queryProvider
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures pagination for product listing.
type ListParams struct {
	Page  int
	Limit int
}

// ProductView is the public product payload. EffectivePrice is the price
// checkout will charge for one unit.
type ProductView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	Price           int64  `json:"price"`
	DiscountedPrice *int64 `json:"discountedPrice,omitempty"`
	EffectivePrice  int64  `json:"effectivePrice"`
	InStock         bool   `json:"inStock"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into pagination parameters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

// ListProducts returns a product page with totals, served from cache when the
// request matches the default first page.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key, cacheable := s.listCacheKey(params)
	if cacheable {
		var cached ProductListResult
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}
	total, err := s.queries.CountProducts(ctx)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("count products: %w", err)
	}
	offset := int32((params.Page - 1) * params.Limit)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.queries.ListProducts(ctx, int32(params.Limit), offset)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]ProductView, 0, len(rows))
	for _, row := range rows {
		items = append(items, viewFromRow(row))
	}
	result := ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}
	if cacheable {
		_ = s.cache.SetJSON(ctx, key, result)
	}
	return result, nil
}

// GetProduct returns the public payload for a single product.
func (s *Service) GetProduct(ctx context.Context, slug string) (ProductView, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductView{}, badRequest("slug", "slug is required", nil)
	}
	key := detailCacheKey(slug)
	var cached ProductView
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	row, err := s.queries.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductView{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return ProductView{}, fmt.Errorf("get product by slug: %w", err)
	}
	view := viewFromRow(row)
	_ = s.cache.SetJSON(ctx, key, view)
	return view, nil
}

func viewFromRow(p store.Product) ProductView {
	view := ProductView{
		ID:             store.UUIDString(p.ID),
		Title:          p.Title,
		Slug:           p.Slug,
		Price:          p.Price,
		EffectivePrice: EffectivePrice(p),
		InStock:        p.Stock > 0,
	}
	if p.DiscountedPrice.Valid {
		dp := p.DiscountedPrice.Int64
		view.DiscountedPrice = &dp
	}
	return view
}

// EffectivePrice is the discounted price when set, otherwise the base price.
func EffectivePrice(p store.Product) int64 {
	if p.DiscountedPrice.Valid {
		return p.DiscountedPrice.Int64
	}
	return p.Price
}

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if params.Page != 1 || params.Limit != s.defaultLimit {
		return "", false
	}
	return "catalog:products:list:first", true
}

func detailCacheKey(slug string) string {
	return "catalog:products:detail:" + slug
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
