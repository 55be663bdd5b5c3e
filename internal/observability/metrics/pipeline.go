package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StageIngest    = "ingest"
	StageRetention = "retention"
	StageReport    = "report"
	StageDelete    = "delete"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonCanceled             = "canceled"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonNotFound             = "not_found"
	ReasonUnknown              = "unknown"
)

// Pipeline holds the prometheus instruments scraped from /metrics.
type Pipeline struct {
	stageDuration  *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec
	rowsProcessed  *prometheus.CounterVec
	evictions      prometheus.Counter
	ownerLockWait  prometheus.Observer
	ingestRowsSize prometheus.Observer
}

var (
	pipelineOnce sync.Once
	pipeline     *Pipeline
)

// NewPipeline returns the process-wide pipeline metrics registered on the
// default prometheus registry.
func NewPipeline(cfg Config) *Pipeline {
	pipelineOnce.Do(func() {
		pipeline = newPipeline(prometheus.DefaultRegisterer, cfg)
	})
	return pipeline
}

func newPipeline(registerer prometheus.Registerer, cfg Config) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "equiplytics"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "equiplytics_stage_duration_seconds",
		Help:        "Latency of dataset pipeline stages by outcome.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"stage", "outcome"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "equiplytics_stage_errors_total",
		Help:        "Pipeline stage failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"stage", "reason"})
	rowsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "equiplytics_rows_processed_total",
		Help:        "CSV rows seen by the importer, split by validity.",
		ConstLabels: constLabels,
	}, []string{"result"})
	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "equiplytics_retention_evictions_total",
		Help:        "Datasets removed by the retention policy.",
		ConstLabels: constLabels,
	})
	ownerLockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "equiplytics_owner_lock_wait_seconds",
		Help:        "Time spent waiting for the per-owner lock.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		ConstLabels: constLabels,
	})
	ingestRowsSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "equiplytics_ingest_rows",
		Help:        "Rows per accepted upload.",
		Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		stageDuration,
		stageErrors,
		rowsProcessed,
		evictions,
		ownerLockWait,
		ingestRowsSize,
	)

	return &Pipeline{
		stageDuration:  stageDuration,
		stageErrors:    stageErrors,
		rowsProcessed:  rowsProcessed,
		evictions:      evictions,
		ownerLockWait:  ownerLockWait,
		ingestRowsSize: ingestRowsSize,
	}
}

func (p *Pipeline) ObserveStage(stage, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func (p *Pipeline) IncStageError(stage string, err error) {
	if p == nil || err == nil {
		return
	}
	p.stageErrors.WithLabelValues(stage, ClassifyReason(err)).Inc()
}

// AddRows records how many rows an upload carried and how many were invalid.
func (p *Pipeline) AddRows(valid, invalid int) {
	if p == nil {
		return
	}
	if valid > 0 {
		p.rowsProcessed.WithLabelValues("valid").Add(float64(valid))
	}
	if invalid > 0 {
		p.rowsProcessed.WithLabelValues("invalid").Add(float64(invalid))
	}
}

func (p *Pipeline) ObserveIngestRows(n int) {
	if p == nil {
		return
	}
	p.ingestRowsSize.Observe(float64(n))
}

func (p *Pipeline) AddEvictions(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.evictions.Add(float64(n))
}

func (p *Pipeline) ObserveOwnerLockWait(d time.Duration) {
	if p == nil {
		return
	}
	p.ownerLockWait.Observe(d.Seconds())
}

// ClassifyReason maps an error to a bounded label value.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ReasonNotFound
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	default:
		return ReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
