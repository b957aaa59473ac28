package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.CollectAndCount(RequestDuration)
	ObserveRequest("/api/test-route", http.MethodPost, http.StatusConflict, 15*time.Millisecond)
	assert.Equal(t, before+1, testutil.CollectAndCount(RequestDuration))
}

func TestWorkflowCounters(t *testing.T) {
	c := ReviewTransitions.WithLabelValues("submit", "COMPLETED")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))

	g := StreamConnections.WithLabelValues("sse")
	g.Inc()
	g.Dec()
	assert.Equal(t, float64(0), testutil.ToFloat64(g))
}

func TestHandlerExposesMetrics(t *testing.T) {
	SweepExpired.Add(0)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "review_sweep_expired_total"))
}
