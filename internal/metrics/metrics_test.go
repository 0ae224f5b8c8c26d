package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.ObserveTick(2*time.Millisecond, 5, 3, 2)
	r.IncTickSkipped()
	r.IncReport(ReportStale)
	r.IncReport(ReportStale)
	r.IncCommand("Stop", CommandDelivered)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticksSkipped))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.conflictEdges))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stoppedAgents))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.reportsTotal.WithLabelValues(ReportStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commandsTotal.WithLabelValues("Stop", CommandDelivered)))
}

func TestRecordersDoNotShareRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRecorder()
		NewRecorder()
	})
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveTick(time.Millisecond, 1, 0, 0)
		r.IncTickSkipped()
		r.IncTickAborted()
		r.IncReport(ReportApplied)
		r.IncCommand("Resume", CommandFailed)
	})
}

func TestHandlerExposesHubMetrics(t *testing.T) {
	r := NewRecorder()
	r.IncTickAborted()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "collision_hub_ticks_aborted_total 1")
}
