package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, "2xx", classifyStatus(201))
	assert.Equal(t, "4xx", classifyStatus(404))
	assert.Equal(t, "5xx", classifyStatus(503))
	assert.Equal(t, "unknown", classifyStatus(0))
}

func TestRecordRowCounts(t *testing.T) {
	before := testutil.ToFloat64(rowsTotal.WithLabelValues("test-job", "created"))
	RecordRow("test-job", "created")
	RecordRow("test-job", "created")
	assert.Equal(t, before+2, testutil.ToFloat64(rowsTotal.WithLabelValues("test-job", "created")))
}

func TestHandlerExposesBackendRequests(t *testing.T) {
	RecordRequest("GET", "Tag", 200, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `grocerysync_backend_requests_total{class="Tag",method="GET",status="2xx"}`))
}
