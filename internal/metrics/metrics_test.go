package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AccountScanned(3)
	m.ScanFailed()
	m.Queued()
	m.Announced(ResultPosted)
	m.QueueDepth(2)
	m.RunFinished("done")
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.AccountScanned(3)
	m.AccountScanned(2)
	m.Announced(ResultPosted)
	m.Announced(ResultPosted)
	m.Announced(ResultError)
	m.QueueDepth(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.accountsScanned))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.postsFetched))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.announcements.WithLabelValues(ResultPosted)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueDepth))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), `crossbot_announcements_total{result="error"} 1`))
}
