package run

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/internal/metrics"
	"github.com/BaSui01/runflow/types"
)

type webhookSink struct {
	mu       sync.Mutex
	payloads []Notification
	statuses []int // response codes to serve, last one repeats
	hits     int
}

func (s *webhookSink) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n Notification
	_ = json.NewDecoder(r.Body).Decode(&n)
	s.payloads = append(s.payloads, n)

	code := http.StatusOK
	if len(s.statuses) > 0 {
		idx := s.hits
		if idx >= len(s.statuses) {
			idx = len(s.statuses) - 1
		}
		code = s.statuses[idx]
	}
	s.hits++
	w.WriteHeader(code)
}

func (s *webhookSink) received() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.payloads...)
}

func newTestNotifier() *Notifier {
	return newTestNotifierWith(nil)
}

func newTestNotifierWith(collector *metrics.Collector) *Notifier {
	return NewNotifier(NotifierConfig{
		Timeout:        time.Second,
		MaxTries:       3,
		InitialBackoff: 5 * time.Millisecond,
	}, collector, zap.NewNop())
}

func TestNotifier_Delivers(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	defer srv.Close()

	n := newTestNotifier()
	n.Notify(srv.URL, Notification{
		RunID:    "r-1",
		ThreadID: "t-1",
		Status:   types.RunStatusCompleted,
		Output:   map[string]any{"answer": "42"},
	})
	n.Wait()

	got := sink.received()
	require.Len(t, got, 1)
	assert.Equal(t, "r-1", got[0].RunID)
	assert.Equal(t, types.RunStatusCompleted, got[0].Status)
}

func TestNotifier_RetriesServerErrors(t *testing.T) {
	sink := &webhookSink{statuses: []int{500, 503, 200}}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	defer srv.Close()

	n := newTestNotifier()
	n.Notify(srv.URL, Notification{RunID: "r-retry", Status: types.RunStatusInterrupted})
	n.Wait()

	assert.Len(t, sink.received(), 3)
}

func TestNotifier_ClientErrorIsPermanent(t *testing.T) {
	sink := &webhookSink{statuses: []int{http.StatusGone}}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	defer srv.Close()

	n := newTestNotifier()
	n.Notify(srv.URL, Notification{RunID: "r-perm", Status: types.RunStatusFailed})
	n.Wait()

	// A 4xx must not be retried.
	assert.Len(t, sink.received(), 1)
}

func TestNotifier_ExhaustsRetries(t *testing.T) {
	sink := &webhookSink{statuses: []int{500}}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	defer srv.Close()

	n := newTestNotifier()
	n.Notify(srv.URL, Notification{RunID: "r-exhaust", Status: types.RunStatusCompleted})
	n.Wait()

	// MaxTries bounds attempts; delivery failure never surfaces to callers.
	assert.Len(t, sink.received(), 3)
}

func TestNotifier_RecordsDeliveryMetrics(t *testing.T) {
	sink := &webhookSink{statuses: []int{500, 200}}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	defer srv.Close()

	collector := metrics.NewCollector("notifier_metrics_test", zap.NewNop())
	n := newTestNotifierWith(collector)
	n.Notify(srv.URL, Notification{RunID: "r-metrics", Status: types.RunStatusCompleted})
	n.Wait()

	// One retried attempt and one success: two counter children.
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"notifier_metrics_test_webhook_deliveries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotifier_EmptyTargetNoop(t *testing.T) {
	n := newTestNotifier()
	n.Notify("", Notification{RunID: "r-skip"})
	n.Wait()
}
