package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/datasets"),
		attribute.String("equipment_name", "Pump-1"),
		attribute.Int("rows", 4),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "equipment_name" {
			t.Fatalf("equipment_name must be dropped")
		}
	}
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	err := SafeError(errors.New("insert failed\nrow: Pump-1,Pump"))
	if err.Error() != "insert failed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
