package gormstore

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testPostgresDB skips, rather than fails, when TEST_POSTGRES_DSN is
// unset, so the full suite still runs without a live database.
func testPostgresDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run gormstore postgres integration tests")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// testSQLiteDB gives every test a fast in-memory database so the bulk of
// gormstore's behavior is verified without TEST_POSTGRES_DSN. The
// cache=shared DSN means the package's tests share one database; each test
// works on its own freshly generated ids.
func testSQLiteDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}
