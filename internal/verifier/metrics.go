package verifier

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels.
const (
	StageDecode     = "decode"
	StageFaceDetect = "face_detect"
	StageOCR        = "ocr"
)

// Failure reasons.
const (
	ReasonError   = "error"
	ReasonTimeout = "timeout"
	ReasonNoFace  = "no_face"
)

// Metrics holds the verifier's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	VerificationsTotal    *prometheus.CounterVec   // by outcome (valid, invalid)
	StageFailuresTotal    *prometheus.CounterVec   // by stage and reason
	StageDurationSeconds  *prometheus.HistogramVec // by stage
	VerifyDurationSeconds prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_document_verifications_total",
			Help: "Document verifications by outcome",
		}, []string{"outcome"}),
		StageFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_document_stage_failures_total",
			Help: "Verification stage failures by stage and reason",
		}, []string{"stage", "reason"}),
		StageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_document_stage_duration_seconds",
			Help:    "Duration of each verification stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"stage"}),
		VerifyDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_document_verify_duration_seconds",
			Help:    "End to end document verification latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
	}
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) stageFailed(stage, reason string) {
	if m == nil {
		return
	}
	m.StageFailuresTotal.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) verified(valid bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
	m.VerifyDurationSeconds.Observe(d.Seconds())
}
