package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.runsStarted)
	assert.NotNil(t, collector.runTransitions)
	assert.NotNil(t, collector.webhookDeliveries)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/threads/:id/runs", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RunLifecycle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRunStart("reject")
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.runsActive))

	collector.RecordRunTransition("pending", "running")
	collector.RecordRunTransition("running", "interrupted")
	assert.Equal(t, 2, testutil.CollectAndCount(collector.runTransitions))

	collector.RecordRunEnd("interrupted", 2*time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.runsActive))
}

func TestCollector_StreamAndWebhook(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.StreamClientConnected()
	collector.StreamClientConnected()
	collector.StreamClientDisconnected()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.streamClients))

	collector.RecordWebhookDelivery("ok")
	collector.RecordWebhookDelivery("failed")
	assert.Equal(t, 2, testutil.CollectAndCount(collector.webhookDeliveries))

	collector.RecordLeaseContention()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.leaseContention))
}

func TestHTTPStatusLabel(t *testing.T) {
	assert.Equal(t, "2xx", httpStatusLabel(204))
	assert.Equal(t, "4xx", httpStatusLabel(409))
	assert.Equal(t, "5xx", httpStatusLabel(504))
}
