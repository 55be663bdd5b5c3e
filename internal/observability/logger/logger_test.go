package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/equiplytics/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOwnerID(ctx, "alice")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "alice", fields["owner_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM import_batches":         "SELECT",
		"  insert into equipment_records ...":  "INSERT",
		"WITH x AS (SELECT 1) DELETE FROM y":   "SELECT",
		"DELETE FROM import_batches WHERE 1=1": "DELETE",
		"":                                     "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
