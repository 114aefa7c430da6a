package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/events"
)

func TestMetrics_CountsBusEvents(t *testing.T) {
	m := New()
	bus := events.NewBus()
	m.Attach(bus)

	bus.Publish(&events.Event{Type: events.InstanceCreated})
	bus.Publish(&events.Event{Type: events.InstanceTransitioned, ToStage: "qualified"})
	bus.Publish(&events.Event{Type: events.InstanceTransitioned, ToStage: "qualified"})
	bus.Publish(&events.Event{Type: events.InstanceCompleted})
	bus.Publish(&events.Event{Type: events.RulesEvaluated, Triggered: []string{"r1", "r2"}})
	bus.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.instancesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("qualified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instancesCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleEvaluations))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rulesTriggered))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransitionRejected("STALE_STATE")
		m.RecordEvaluationDuration(0.1)
		m.Attach(events.NewBus())
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordTransitionRejected("STALE_STATE")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `projectflow_transitions_rejected_total{code="STALE_STATE"} 1`)
}
