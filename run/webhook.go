package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/internal/metrics"
	"github.com/BaSui01/runflow/types"
)

// Notification is the webhook payload fired on terminal and interrupted
// transitions.
type Notification struct {
	RunID    string          `json:"run_id"`
	ThreadID string          `json:"thread_id"`
	Status   types.RunStatus `json:"status"`
	Output   any             `json:"output,omitempty"`
}

// NotifierConfig tunes webhook delivery.
type NotifierConfig struct {
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxTries bounds the attempt count per notification.
	MaxTries uint `yaml:"max_tries" json:"max_tries"`
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
}

// DefaultNotifierConfig returns the default delivery policy.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		Timeout:        10 * time.Second,
		MaxTries:       3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Notifier delivers fire-and-forget webhook notifications with bounded
// exponential-backoff retries. Delivery failures are logged and never
// alter run status.
type Notifier struct {
	client  *http.Client
	config  NotifierConfig
	metrics *metrics.Collector
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewNotifier creates a webhook notifier. The metrics collector is
// optional; pass nil to disable delivery metrics.
func NewNotifier(config NotifierConfig, collector *metrics.Collector, logger *zap.Logger) *Notifier {
	if config.MaxTries == 0 {
		config.MaxTries = DefaultNotifierConfig().MaxTries
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultNotifierConfig().Timeout
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = DefaultNotifierConfig().InitialBackoff
	}
	return &Notifier{
		client:  &http.Client{Timeout: config.Timeout},
		config:  config,
		metrics: collector,
		logger:  logger.With(zap.String("component", "webhook_notifier")),
	}
}

func (n *Notifier) recordDelivery(result string) {
	if n.metrics != nil {
		n.metrics.RecordWebhookDelivery(result)
	}
}

// Notify schedules one delivery attempt sequence in the background and
// returns immediately.
func (n *Notifier) Notify(target string, payload Notification) {
	if target == "" {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(n.config.MaxTries)*(n.config.Timeout+n.config.InitialBackoff)*2)
		defer cancel()

		if err := n.deliver(ctx, target, payload); err != nil {
			n.recordDelivery("failed")
			n.logger.Warn("webhook delivery failed",
				zap.String("run_id", payload.RunID),
				zap.String("status", string(payload.Status)),
				zap.String("target", target),
				zap.Error(err),
			)
		}
	}()
}

// deliver posts the payload, retrying transport failures and 5xx responses
// with exponential backoff. 4xx responses are treated as permanent.
func (n *Notifier) deliver(ctx context.Context, target string, payload Notification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.recordDelivery("retry")
			return struct{}{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			n.recordDelivery("ok")
			return struct{}{}, nil
		case resp.StatusCode >= 500:
			n.recordDelivery("retry")
			return struct{}{}, fmt.Errorf("webhook returned %d", resp.StatusCode)
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = n.config.InitialBackoff

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(n.config.MaxTries),
	)
	if err != nil {
		return types.NewError(types.ErrWebhookDelivery, "delivery attempts exhausted").WithCause(err)
	}
	return nil
}

// Wait blocks until all scheduled deliveries finish. Used on shutdown and
// in tests.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
