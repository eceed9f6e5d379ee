package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/store"
)

type stubQueries struct {
	products []store.Product
}

func (s *stubQueries) GetProductBySlug(ctx context.Context, slug string) (store.Product, error) {
	for _, p := range s.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return store.Product{}, pgx.ErrNoRows
}

func (s *stubQueries) ListProducts(ctx context.Context, limit, offset int32) ([]store.Product, error) {
	return s.products, nil
}

func (s *stubQueries) CountProducts(ctx context.Context) (int64, error) {
	return int64(len(s.products)), nil
}

func product(slug string, price int64, discounted *int64) store.Product {
	p := store.Product{
		ID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Slug:  slug,
		Title: slug,
		Price: price,
		Stock: 5,
	}
	if discounted != nil {
		p.DiscountedPrice = pgtype.Int8{Int64: *discounted, Valid: true}
	}
	return p
}

func TestGetProductEffectivePrice(t *testing.T) {
	discounted := int64(1500)
	svc, err := NewService(ServiceConfig{Queries: &stubQueries{products: []store.Product{
		product("widget", 2500, &discounted),
	}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := svc.GetProduct(context.Background(), "widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.EffectivePrice != 1500 {
		t.Fatalf("expected effective price 1500, got %d", view.EffectivePrice)
	}
}

func TestGetProductNotFound(t *testing.T) {
	svc, _ := NewService(ServiceConfig{Queries: &stubQueries{}})
	_, err := svc.GetProduct(context.Background(), "missing")
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected 404 AppError, got %v", err)
	}
}

func TestParseListParamsClampsLimit(t *testing.T) {
	svc, _ := NewService(ServiceConfig{Queries: &stubQueries{}, DefaultLimit: 20, MaxLimit: 50})
	params, err := svc.ParseListParams(url.Values{"limit": {"500"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != 50 {
		t.Fatalf("expected limit clamped to 50, got %d", params.Limit)
	}
}

func TestParseListParamsRejectsBadPage(t *testing.T) {
	svc, _ := NewService(ServiceConfig{Queries: &stubQueries{}})
	if _, err := svc.ParseListParams(url.Values{"page": {"zero"}}); err == nil {
		t.Fatal("expected error for non-numeric page")
	}
}

func TestListProductsUsesTotals(t *testing.T) {
	svc, _ := NewService(ServiceConfig{Queries: &stubQueries{products: []store.Product{
		product("a", 100, nil),
		product("b", 200, nil),
	}}})
	result, err := svc.ListProducts(context.Background(), ListParams{Page: 2, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected total 2, got %d", result.Total)
	}
}
