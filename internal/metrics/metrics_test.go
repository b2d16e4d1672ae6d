package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn("CONTINUE", 0.8)
	m.ObserveTurn("CONTINUE", 0.2)
	m.ObserveTurn("DISENGAGE", 0.1)
	m.ObserveTurnError("invalid_input")
	m.ObserveArtifact("PHONE")
	m.ObserveArtifact("PHONE")
	m.ObserveClassifyDuration(0.004)
	m.ObserveGenerationFallback()
	m.SetActiveConversations(3)

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("CONTINUE")); got != 2 {
		t.Errorf("turns_total{action=CONTINUE} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.turnErrorsTotal.WithLabelValues("invalid_input")); got != 1 {
		t.Errorf("turn_errors_total{kind=invalid_input} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.artifactsTotal.WithLabelValues("PHONE")); got != 2 {
		t.Errorf("artifacts_extracted_total{kind=PHONE} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.generationFallback); got != 1 {
		t.Errorf("generation_fallbacks_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeConvs); got != 3 {
		t.Errorf("active_conversations = %v, want 3", got)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("CONTINUE", 0.5)
	m.ObserveTurnError("invalid_input")
	m.ObserveArtifact("PHONE")
	m.ObserveClassifyDuration(0.01)
	m.ObserveGenerationFallback()
	m.SetActiveConversations(1)
}

func TestMetricsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Errorf("second New on the same registry should panic on duplicate registration")
		}
	}()
	New(reg)
}
