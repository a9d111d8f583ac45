package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/metrics"
)

const referenceRowID = 1

// ReferenceRow is the single persisted reference.
type ReferenceRow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement:false"`
	Descriptor string    `gorm:"column:descriptor;type:text;not null"`
	Dimension  int       `gorm:"column:dimension;not null"`
	EnrolledAt time.Time `gorm:"column:enrolled_at"`
	Crop       []byte    `gorm:"column:crop"`
}

// TableName overrides the default table name.
func (ReferenceRow) TableName() string {
	return "reference_descriptors"
}

// PostgresStore keeps the reference in a one-row table. Save is an upsert on
// the fixed primary key, so readers see either the old or the new row.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new store on db.
func NewPostgresStore(db *gorm.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("postgres_store")}
}

// AutoMigrate ensures the schema is available.
func (s *PostgresStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ReferenceRow{})
}

// Save upserts the descriptor row, then tries to attach the crop with a
// separate update whose failure is only logged.
func (s *PostgresStore) Save(ctx context.Context, ref *Reference) error {
	if err := checkReference(ref); err != nil {
		return err
	}
	data, err := json.Marshal([]float32(ref.Descriptor))
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}

	row := ReferenceRow{
		ID:         referenceRowID,
		Descriptor: string(data),
		Dimension:  len(ref.Descriptor),
		EnrolledAt: ref.EnrolledAt.UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"descriptor", "dimension", "enrolled_at", "crop"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert reference row: %w", err)
	}

	if ref.Crop != nil {
		s.saveCrop(ctx, ref)
	}
	return nil
}

func (s *PostgresStore) saveCrop(ctx context.Context, ref *Reference) {
	png, err := imageprocessor.EncodePNG(ref.Crop)
	if err == nil {
		err = s.db.WithContext(ctx).Model(&ReferenceRow{}).
			Where("id = ? AND enrolled_at = ?", referenceRowID, ref.EnrolledAt.UTC()).
			Update("crop", png).Error
	}
	if err != nil {
		metrics.BestEffortFailuresTotal.WithLabelValues("crop").Inc()
		s.logger.Warn("failed to save reference crop", zap.Error(err))
	}
}

// Load reads the reference row.
func (s *PostgresStore) Load(ctx context.Context) (*Reference, error) {
	var row ReferenceRow
	err := s.db.WithContext(ctx).Omit("crop").First(&row, referenceRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reference row: %w", err)
	}

	var values []float32
	if err := json.Unmarshal([]byte(row.Descriptor), &values); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if len(values) != row.Dimension {
		return nil, fmt.Errorf("stored descriptor has %d values, row says %d", len(values), row.Dimension)
	}
	return &Reference{Descriptor: values, EnrolledAt: row.EnrolledAt}, nil
}
