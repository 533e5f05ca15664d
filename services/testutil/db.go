package testutil

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a throwaway sqlite database keyed to the test name and
// migrates the given ledger models into it. The pool is pinned to a single
// connection: a shared-cache memory database is dropped once its last
// connection closes, and one connection also serializes the payout batch's
// parallel transactions under sqlite's single-writer model.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test schema: %v", err)
		}
	}

	pool, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	pool.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = pool.Close()
	})

	return db
}
