package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, HTTPRequestsTotal)
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, BodyParserRejections)
	assert.NotNil(t, RateLimited)
	assert.NotNil(t, BootstrapPhaseDuration)
	assert.NotNil(t, BootstrapState)
	assert.NotNil(t, ActionsRegistered)
	assert.NotNil(t, ODMConnections)
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/metrics-test", "200"))
	RecordHTTPRequest("GET", "/metrics-test", 200, 5*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/metrics-test", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordPhase(t *testing.T) {
	RecordPhase("metrics_test", time.Millisecond, nil)
	RecordPhase("metrics_test", time.Millisecond, errors.New("boom"))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(BootstrapPhaseDuration), 2)
}
