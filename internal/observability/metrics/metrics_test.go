package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCallMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)

	m.ObserveCallStarted("fallback")
	m.ObserveCallStarted("resolved")
	m.ObserveToolCall("transfer_call", "ok")
	m.ObserveTransfer("billing", "no-answer")
	m.ObserveJournalFailure("update_call")
	m.ObserveCallEnded("disconnected", 42)

	if got := testutil.ToFloat64(m.callsStarted.WithLabelValues("fallback")); got != 1 {
		t.Errorf("callsStarted{fallback} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeCalls); got != 1 {
		t.Errorf("activeCalls = %v, want 1 (two started, one ended)", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues("billing", "no-answer")); got != 1 {
		t.Errorf("transfers{billing,no-answer} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.journalFailures.WithLabelValues("update_call")); got != 1 {
		t.Errorf("journalFailures{update_call} = %v, want 1", got)
	}
}

func TestCallMetricsNilSafe(t *testing.T) {
	var m *CallMetrics
	m.ObserveCallStarted("fallback")
	m.ObserveCallEnded("disconnected", 1)
	m.ObserveToolCall("search_contacts", "error")
	m.ObserveTransfer("sales", "completed")
	m.ObserveJournalFailure("create_call")
}
