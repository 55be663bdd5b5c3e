package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "canceled", err: fmt.Errorf("wrap: %w", context.Canceled), want: ReasonCanceled},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: ReasonNotFound},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPipelineCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	p := newPipeline(registry, Config{ServiceName: "equiplytics", Environment: "test"})

	p.AddRows(4, 0)
	p.AddRows(2, 1)
	p.AddEvictions(3)
	p.AddEvictions(0)
	p.IncStageError(StageIngest, &pgconn.PgError{Code: "40001"})
	p.ObserveStage(StageIngest, OutcomeOK, 10*time.Millisecond)

	if got := testutil.ToFloat64(p.rowsProcessed.WithLabelValues("valid")); got != 6 {
		t.Fatalf("expected 6 valid rows, got %v", got)
	}
	if got := testutil.ToFloat64(p.rowsProcessed.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("expected 1 invalid row, got %v", got)
	}
	if got := testutil.ToFloat64(p.evictions); got != 3 {
		t.Fatalf("expected 3 evictions, got %v", got)
	}
	if got := testutil.ToFloat64(p.stageErrors.WithLabelValues(StageIngest, ReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 stage error, got %v", got)
	}
	if got := testutil.CollectAndCount(p.stageDuration); got != 1 {
		t.Fatalf("expected 1 duration series, got %d", got)
	}
}
