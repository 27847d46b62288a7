// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"passpay/internal/infra"
	dbm "passpay/internal/models/db_models"
)

// PostgresEnv names a postgres URL to run the package tests against instead
// of sqlite. Each test gets its own schema, dropped on cleanup.
const PostgresEnv = "PASSPAY_TEST_POSTGRES_URL"

// OpenDB returns a migrated database private to t. By default it is an
// in-memory sqlite database on a single connection: concurrent tests then run
// their transactions one after another and SELECT ... FOR UPDATE is a no-op,
// so they check the outcome under interleaving, not the row locks. Set
// PostgresEnv to exercise the locks for real.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	if dsn := os.Getenv(PostgresEnv); dsn != "" {
		return openPostgres(t, dsn)
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := infra.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func openPostgres(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	admin, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	adminDB, err := admin.DB()
	if err != nil {
		t.Fatalf("postgres handle: %v", err)
	}
	schema := "passpay_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("%s must be a postgres:// URL: %v", PostgresEnv, err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	db, err := gorm.Open(postgres.Open(u.String()), cfg)
	if err != nil {
		t.Fatalf("open postgres schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("postgres handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(10)
	t.Cleanup(func() {
		_ = sqlDB.Close()
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = adminDB.Close()
	})

	if err := infra.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type Fixture struct {
	Product      *dbm.Product
	Client       *dbm.Client
	Subscription *dbm.Subscription
}

// SeedSubscription creates a product, a client and a pending subscription.
func SeedSubscription(t *testing.T, db *gorm.DB, productCode string, amount int64) Fixture {
	t.Helper()
	product := &dbm.Product{
		Code:         productCode,
		Name:         productCode + " pass",
		Category:     "health",
		MinPrice:     decimal.NewFromInt(100),
		ValidityDays: 365,
		IsActive:     true,
	}
	if err := db.Where(dbm.Product{Code: productCode}).FirstOrCreate(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	client := &dbm.Client{
		Phone:                "+2420" + uuid.NewString()[:8],
		FirstName:            "Test",
		LastName:             "Client",
		TotalSubscribedValue: decimal.Zero,
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	sub := &dbm.Subscription{
		Number:    "SUB-" + uuid.NewString()[:8],
		ClientID:  client.ID,
		ProductID: product.ID,
		Amount:    decimal.NewFromInt(amount),
		Status:    dbm.SubStatusPending,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	sub.Product = *product
	return Fixture{Product: product, Client: client, Subscription: sub}
}
