package http

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

func TestOperationFor(t *testing.T) {
	testCases := []struct {
		method  string
		pattern string
		want    string
	}{
		{http.MethodPost, "/api/v1/alarms", "enqueue_alarm"},
		{http.MethodGet, "/api/v1/alarms", "list_alarms"},
		{http.MethodGet, "/api/v1/alarms/{id}", "get_alarm"},
		{http.MethodGet, "/api/v1/alarms/{id}/audit", "get_alarm_audit"},
		{http.MethodGet, "/healthz", "health"},
		{http.MethodDelete, "/api/v1/alarms/{id}", "unknown"},
		{http.MethodGet, "", "unknown"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, operationFor(tc.method, tc.pattern), "%s %s", tc.method, tc.pattern)
	}
}

func TestPrometheusMetricsMiddleware_CountsByOperation(t *testing.T) {
	router, q, _, _ := newTestRouter(t, "")
	q.On("Enqueue", mock.Anything, "Well 4 dry run", 2, (*bool)(nil)).Return("", domain.ErrLockContention).Once()
	q.On("Get", mock.Anything, testJobID).Return(sampleJob(domain.StatusPending), nil).Once()

	busy := rejectedRequestsTotal.WithLabelValues("enqueue_alarm", "queue_busy")
	busyBefore := testutil.ToFloat64(busy)
	gets := httpRequestsTotal.WithLabelValues("get_alarm", http.MethodGet, "200")
	getsBefore := testutil.ToFloat64(gets)

	rr := doRequest(router, http.MethodPost, "/api/v1/alarms", []byte(`{"description":"Well 4 dry run","group_id":2}`), "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	rr = doRequest(router, http.MethodGet, "/api/v1/alarms/"+testJobID, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, busyBefore+1, testutil.ToFloat64(busy))
	assert.Equal(t, getsBefore+1, testutil.ToFloat64(gets))
}

func TestPrometheusMetricsMiddleware_CountsUnauthorized(t *testing.T) {
	router, _, _, _ := newTestRouter(t, "s3cret")
	denied := rejectedRequestsTotal.WithLabelValues("list_alarms", "unauthorized")
	before := testutil.ToFloat64(denied)

	rr := doRequest(router, http.MethodGet, "/api/v1/alarms", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(denied))
}
