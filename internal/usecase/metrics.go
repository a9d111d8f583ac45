package usecase

import (
	"context"
	"errors"
)

// ErrAuditDisabled is returned when no audit repository is configured.
var ErrAuditDisabled = errors.New("audit log is not configured")

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalVerifications         int64   `json:"total_verifications"`
	Matches                    int64   `json:"matches"`
	MatchRate                  float64 `json:"match_rate"`
	AverageDistance            float64 `json:"average_distance"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
	Threshold                  float64 `json:"threshold"`
}

// GetMetricsSummary aggregates verify outcomes from the audit log.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrAuditDisabled
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalVerifications:         aggregation.TotalCount,
		Matches:                    aggregation.MatchCount,
		AverageDistance:            aggregation.AverageDistance,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
		Threshold:                  uc.threshold,
	}

	if aggregation.TotalCount > 0 {
		summary.MatchRate = float64(aggregation.MatchCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
