package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakline/storefront/internal/app"
	"github.com/oakline/storefront/internal/config"
)

func main() {
	cfg := config.MustLoad()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runMigrations(cfg.DatabaseURL)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedUsers(ctx, pool)
	seedProducts(ctx, pool)
	seedCoupons(ctx, pool)

	log.Println("Seeding completed successfully!")
}

func runMigrations(databaseURL string) {
	// golang-migrate selects its driver by URL scheme; pgx5 is the pgx/v5 one.
	migrateURL := strings.Replace(databaseURL, "postgres://", "pgx5://", 1)
	m, err := migrate.New("file://migrations", migrateURL)
	if err != nil {
		log.Fatalf("Failed to init migrations: %v", err)
	}
	defer m.Close()
	if err := app.RunMigrations(m); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) {
	users := []struct {
		Name  string
		Email string
		Role  string
	}{
		{"Store Admin", "admin@oakline.dev", "admin"},
		{"Ada Marsh", "ada@example.com", "customer"},
		{"Ben Okafor", "ben@example.com", "customer"},
		{"Carla Reyes", "carla@example.com", "customer"},
		{"Dmitri Sokolov", "dmitri@example.com", "customer"},
	}

	fmt.Println("Seeding Users...")
	hash, err := app.HashPassword("password123")
	if err != nil {
		log.Fatalf("Failed to hash seed password: %v", err)
	}
	for _, u := range users {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (name, email, password_hash, roles)
			VALUES ($1, lower($2), $3, ARRAY[$4])
			ON CONFLICT (email) DO NOTHING`,
			u.Name, u.Email, hash, u.Role)
		if err != nil {
			log.Printf("Failed to seed user %s: %v", u.Email, err)
		}
	}
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) {
	products := []struct {
		Title      string
		Slug       string
		Price      int64
		Discounted *int64
		Stock      int32
	}{
		{"Walnut Desk Organizer", "walnut-desk-organizer", 4500, ptr(3900), 120},
		{"Brass Reading Lamp", "brass-reading-lamp", 12900, nil, 35},
		{"Linen Throw Blanket", "linen-throw-blanket", 8900, ptr(7500), 80},
		{"Ceramic Pour-Over Set", "ceramic-pour-over-set", 6400, nil, 50},
		{"Oak Bookends (Pair)", "oak-bookends-pair", 3900, nil, 200},
		{"Wool Felt Mouse Pad", "wool-felt-mouse-pad", 1900, ptr(1500), 300},
		{"Steel French Press", "steel-french-press", 7400, nil, 45},
		{"Canvas Weekender Bag", "canvas-weekender-bag", 15900, ptr(12900), 25},
		{"Cork Desk Mat", "cork-desk-mat", 3400, nil, 150},
		{"Glass Carafe Set", "glass-carafe-set", 5600, nil, 60},
		{"Leather Cable Wraps", "leather-cable-wraps", 1200, nil, 500},
		{"Maple Serving Board", "maple-serving-board", 5200, ptr(4400), 75},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (title, slug, price, discounted_price, stock)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (slug) DO UPDATE
			SET title = EXCLUDED.title, price = EXCLUDED.price,
			    discounted_price = EXCLUDED.discounted_price, stock = EXCLUDED.stock`,
			p.Title, p.Slug, p.Price, p.Discounted, p.Stock)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Slug, err)
		}
	}
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) {
	now := time.Now()
	coupons := []struct {
		Code       string
		Kind       string
		Value      int64
		PercentBps *int32
		MinSpend   *int64
		MaxDisc    *int64
		UsageLimit *int32
	}{
		{"WELCOME10", "percent", 0, ptr32(1000), ptr(5000), ptr(2000), nil},
		{"FREESHIP", "fixed", 900, nil, ptr(10000), nil, ptr32(1000)},
		{"VIP25", "percent", 0, ptr32(2500), ptr(20000), ptr(10000), ptr32(100)},
	}

	fmt.Println("Seeding Coupons...")
	for _, c := range coupons {
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (code, kind, value, percent_bps, min_spend, max_discount,
			                     start_at, end_at, usage_limit, active)
			VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8, $9, true)
			ON CONFLICT (code) DO NOTHING`,
			c.Code, c.Kind, c.Value, c.PercentBps, c.MinSpend, c.MaxDisc,
			now.AddDate(0, -1, 0), now.AddDate(1, 0, 0), c.UsageLimit)
		if err != nil {
			log.Printf("Failed to seed coupon %s: %v", c.Code, err)
		}
	}
}

func ptr(v int64) *int64   { return &v }
func ptr32(v int32) *int32 { return &v }
