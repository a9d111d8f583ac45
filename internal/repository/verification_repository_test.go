package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestVerificationLogTableName(t *testing.T) {
	if got := (VerificationLog{}).TableName(); got != "verification_logs" {
		t.Fatalf("unexpected table name: %s", got)
	}
}

// TestVerificationRepositoryIntegration runs against the database in
// FACEVERIFY_TEST_DATABASE_DSN and is skipped when it is unset.
func TestVerificationRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("FACEVERIFY_TEST_DATABASE_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("FACEVERIFY_TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	repo := NewVerificationRepository(db)
	ctx := context.Background()
	if err := repo.AutoMigrate(ctx); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	requestID := uuid.NewString()
	entry := &VerificationLog{
		RequestID: requestID,
		Operation: "verify",
		Outcome:   "match",
		Match:     true,
		Distance:  0.31,
		Threshold: 0.6,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveLog(ctx, entry); err != nil {
		t.Fatalf("save log: %v", err)
	}

	got, err := repo.FindByRequestID(ctx, requestID)
	if err != nil {
		t.Fatalf("find log: %v", err)
	}
	if !got.Match || got.Outcome != "match" {
		t.Fatalf("unexpected log: %+v", got)
	}

	if _, err := repo.FindByRequestID(ctx, uuid.NewString()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
