package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != OutcomeOK {
		t.Errorf("Outcome(nil) = %q, want %q", got, OutcomeOK)
	}
	if got := Outcome(errors.New("boom")); got != OutcomeError {
		t.Errorf("Outcome(err) = %q, want %q", got, OutcomeError)
	}
}

func TestSchemaObjectsCreatedCounts(t *testing.T) {
	before := testutil.ToFloat64(SchemaObjectsCreated.WithLabelValues("column"))
	SchemaObjectsCreated.WithLabelValues("column").Inc()
	after := testutil.ToFloat64(SchemaObjectsCreated.WithLabelValues("column"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveReport("grand_total", time.Now())
	EventPublishFailures.Add(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"debtbook_report_duration_seconds",
		"debtbook_event_publish_failures_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
