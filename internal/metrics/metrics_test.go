package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncChatTurn(nil)
	m.IncChatTurn(errors.New("boom"))
	m.IncExtraction(true)
	m.IncExtraction(false)
	m.IncExtraction(false)
	m.ObserveSearch("chat", nil, 200*time.Millisecond)
	m.ObserveSearch("endpoint", errors.New("down"), time.Second)
	m.IncFallback()

	assert.InDelta(t, 1, testutil.ToFloat64(m.chatTurns.WithLabelValues(OutcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.chatTurns.WithLabelValues(OutcomeError)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.extractions.WithLabelValues(OutcomeInvalid)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.searches.WithLabelValues("endpoint", OutcomeError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.fallbacks), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncChatTurn(nil)
		m.IncExtraction(true)
		m.ObserveSearch("chat", nil, time.Millisecond)
		m.IncFallback()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveSearch("chat", nil, 300*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `trialchat_registry_searches_total{outcome="ok",site="chat"} 1`)
	assert.Contains(t, body, "trialchat_registry_search_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}
