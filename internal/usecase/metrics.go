package usecase

import "context"

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	ValidRequests              int64   `json:"valid_requests"`
	ValidRate                  float64 `json:"valid_rate"`
	FaceMatchRate              float64 `json:"face_match_rate"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates verification metrics from persisted logs.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		ValidRequests:              aggregation.ValidCount,
		AverageProcessingLatencyMs: aggregation.AverageProcessingMs,
	}

	if aggregation.TotalCount > 0 {
		summary.ValidRate = float64(aggregation.ValidCount) / float64(aggregation.TotalCount)
		summary.FaceMatchRate = float64(aggregation.FaceMatchedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
