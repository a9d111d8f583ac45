package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// VerificationLog is the audit record of one enroll or verify request.
type VerificationLog struct {
	ID              uint      `gorm:"primaryKey"`
	RequestID       string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID          string    `gorm:"column:user_id;size:64"`
	Operation       string    `gorm:"column:operation;size:16;index"`
	Outcome         string    `gorm:"column:outcome;size:64"`
	Match           bool      `gorm:"column:matched"`
	Distance        float64   `gorm:"column:distance"`
	Threshold       float64   `gorm:"column:threshold"`
	DescriptorLen   int       `gorm:"column:descriptor_length"`
	ReferenceLen    int       `gorm:"column:reference_length"`
	ProcessingMilli int64     `gorm:"column:processing_ms"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationLog) TableName() string {
	return "verification_logs"
}

// VerificationRepository provides persistence APIs for verification logs.
type VerificationRepository struct {
	db *gorm.DB
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationLog{})
}

// SaveLog persists a verification log entry.
func (r *VerificationRepository) SaveLog(ctx context.Context, log *VerificationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByRequestID retrieves the log written for a request.
func (r *VerificationRepository) FindByRequestID(ctx context.Context, requestID string) (*VerificationLog, error) {
	var log VerificationLog
	if err := r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// MetricsAggregation summarizes the verify logs.
type MetricsAggregation struct {
	TotalCount                 int64
	MatchCount                 int64
	AverageDistance            float64
	AverageProcessingLatencyMs float64
}

// AggregateMetrics computes totals over all completed verify requests.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount      int64
		MatchCount      int64
		AverageDistance *float64
		AverageLatency  *float64
	}
	err := r.db.WithContext(ctx).Model(&VerificationLog{}).
		Select(`COUNT(*) AS total_count,
			COALESCE(SUM(CASE WHEN matched THEN 1 ELSE 0 END), 0) AS match_count,
			AVG(distance) AS average_distance,
			AVG(processing_ms) AS average_latency`).
		Where("operation = ? AND outcome IN ?", "verify", []string{"match", "no_match"}).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{TotalCount: row.TotalCount, MatchCount: row.MatchCount}
	if row.AverageDistance != nil {
		agg.AverageDistance = *row.AverageDistance
	}
	if row.AverageLatency != nil {
		agg.AverageProcessingLatencyMs = *row.AverageLatency
	}
	return agg, nil
}
