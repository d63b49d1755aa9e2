package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Consult/internal/ledger"
)

func TestCounters(t *testing.T) {
	m := New(nil)

	m.ConsultationRecorded(ledger.TriggerCallStart, ledger.OutcomeCreated)
	m.ConsultationRecorded(ledger.TriggerNote, ledger.OutcomeExisting)
	m.ConsultationRecorded(ledger.TriggerNote, ledger.OutcomeExisting)
	m.SetConnections(3)
	m.Kicked()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.consultations.WithLabelValues("call_start", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.consultations.WithLabelValues("note", "existing")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.kicks))
}
