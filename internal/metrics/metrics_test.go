package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAndExposition(t *testing.T) {
	t.Parallel()
	m := New()
	m.EventReceived("task", "changed")
	m.EventReceived("task", "changed")
	m.Fetch("task", 20*time.Millisecond, errors.New("timeout"))
	m.Delivery("sent")

	require.InDelta(t, 2, testutil.ToFloat64(m.eventsReceived.WithLabelValues("task", "changed")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.fetches.WithLabelValues("task", "error")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.True(t, strings.Contains(string(body), `asanagram_deliveries_total{status="sent"} 1`), string(body))
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.EventIgnored("malformed")
	m.Fetch("story", time.Second, nil)
	m.SetPendingAggregates(3)
	require.Nil(t, m.Registry())
}
