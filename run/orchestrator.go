package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/internal/metrics"
	"github.com/BaSui01/runflow/store"
	"github.com/BaSui01/runflow/types"
)

// Config tunes the orchestrator's timing and delivery behavior.
type Config struct {
	// RunTimeout bounds the wait for a terminal or suspended classification.
	RunTimeout time.Duration `yaml:"run_timeout" json:"run_timeout"`

	// CancelAckTimeout bounds the wait for the engine to acknowledge a
	// cancellation signal. An unacknowledged cancellation becomes FAILED.
	CancelAckTimeout time.Duration `yaml:"cancel_ack_timeout" json:"cancel_ack_timeout"`

	// LeaseRetryInterval is the poll interval while waiting for the thread
	// lease under the enqueue strategy.
	LeaseRetryInterval time.Duration `yaml:"lease_retry_interval" json:"lease_retry_interval"`

	// LeaseTimeout bounds the total wait for the thread lease.
	LeaseTimeout time.Duration `yaml:"lease_timeout" json:"lease_timeout"`

	// StreamRetention keeps a finished run's event sequence available to
	// late stream subscribers for this long.
	StreamRetention time.Duration `yaml:"stream_retention" json:"stream_retention"`

	// DefaultWebhook receives notifications for runs that do not name
	// their own target.
	DefaultWebhook string `yaml:"default_webhook" json:"default_webhook"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		RunTimeout:         10 * time.Minute,
		CancelAckTimeout:   5 * time.Second,
		LeaseRetryInterval: 50 * time.Millisecond,
		LeaseTimeout:       30 * time.Second,
		StreamRetention:    5 * time.Minute,
	}
}

// Orchestrator owns the run state machine. It drives the execution engine,
// classifies outcomes through the interrupt detector, persists every
// transition through the run store's compare-and-set, fans events out to
// stream subscribers, and fires webhook notifications on terminal and
// interrupted transitions.
type Orchestrator struct {
	store    store.RunStore
	engine   Engine
	notifier *Notifier
	metrics  *metrics.Collector
	logger   *zap.Logger
	cfg      Config

	mu       sync.Mutex
	runs     map[string]*activeRun            // run id → handle
	byThread map[string]map[string]*activeRun // thread id → started runs
	queues   map[string][]*activeRun          // thread id → FIFO of waiting runs

	wg     sync.WaitGroup
	closed atomic.Bool
}

// activeRun is the in-process handle of one accepted run.
type activeRun struct {
	run  *types.Run
	req  *NormalizedRequest
	// checkpointRef is set for resume runs.
	checkpointRef string
	skipLease     bool

	b          *broadcaster
	launch     chan struct{}
	cancelCh   chan struct{}
	done       chan struct{}
	startOnce  sync.Once
	cancelOnce sync.Once
	startedAt  time.Time
}

func (a *activeRun) signalLaunch() { a.startOnce.Do(func() { close(a.launch) }) }
func (a *activeRun) signalCancel() { a.cancelOnce.Do(func() { close(a.cancelCh) }) }

// NewOrchestrator creates an orchestrator. The metrics collector is
// optional.
func NewOrchestrator(st store.RunStore, engine Engine, notifier *Notifier, collector *metrics.Collector, cfg Config, logger *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.CancelAckTimeout == 0 {
		cfg.CancelAckTimeout = def.CancelAckTimeout
	}
	if cfg.LeaseRetryInterval == 0 {
		cfg.LeaseRetryInterval = def.LeaseRetryInterval
	}
	if cfg.LeaseTimeout == 0 {
		cfg.LeaseTimeout = def.LeaseTimeout
	}
	if cfg.StreamRetention == 0 {
		cfg.StreamRetention = def.StreamRetention
	}

	return &Orchestrator{
		store:    st,
		engine:   engine,
		notifier: notifier,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "orchestrator")),
		cfg:      cfg,
		runs:     make(map[string]*activeRun),
		byThread: make(map[string]map[string]*activeRun),
		queues:   make(map[string][]*activeRun),
	}
}

// CreateRun accepts a validated request: it resolves the thread contention
// policy, persists the new run, and schedules its execution. The returned
// run reflects the stored record at acceptance time.
func (o *Orchestrator) CreateRun(ctx context.Context, req *NormalizedRequest) (*types.Run, error) {
	if o.closed.Load() {
		return nil, types.NewError(types.ErrInternalError, "orchestrator is shut down")
	}

	thread, err := o.ensureThread(ctx, req)
	if err != nil {
		return nil, err
	}
	req.ThreadID = thread.ThreadID

	if req.Resuming() {
		return o.createResumeRun(ctx, thread, req)
	}
	return o.createInputRun(ctx, thread, req)
}

func (o *Orchestrator) ensureThread(ctx context.Context, req *NormalizedRequest) (*types.Thread, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	thread, err := o.store.GetThread(ctx, threadID)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrInternalError, "failed to load thread").WithCause(err)
	}

	thread = &types.Thread{ThreadID: threadID, Status: types.ThreadStatusIdle}
	if err := o.store.CreateThread(ctx, thread); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return nil, types.NewError(types.ErrInternalError, "failed to create thread").WithCause(err)
	}
	return thread, nil
}

// createInputRun applies the multitask strategy for a fresh-input run.
func (o *Orchestrator) createInputRun(ctx context.Context, thread *types.Thread, req *NormalizedRequest) (*types.Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	busy := o.threadBusyLocked(ctx, thread.ThreadID)

	if busy && req.Strategy == types.MultitaskReject {
		return nil, types.NewError(types.ErrThreadBusy, "thread already has an active run")
	}

	run := &types.Run{
		RunID:       uuid.NewString(),
		ThreadID:    thread.ThreadID,
		AssistantID: req.AssistantID,
		Status:      types.RunStatusPending,
		Input:       req.Input,
		Strategy:    req.Strategy,
		Metadata:    req.Metadata,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to persist run").WithCause(err)
	}

	a := o.registerLocked(run, req, "")

	switch {
	case !busy:
		o.launchLocked(a)
	case req.Strategy == types.MultitaskEnqueue:
		o.queues[thread.ThreadID] = append(o.queues[thread.ThreadID], a)
	case req.Strategy == types.MultitaskInterrupt:
		// Cancel whatever is active; the new run launches as soon as the
		// cancelled run releases the thread.
		for _, cur := range o.byThread[thread.ThreadID] {
			cur.signalCancel()
		}
		o.queues[thread.ThreadID] = append([]*activeRun{a}, o.queues[thread.ThreadID]...)
	case req.Strategy == types.MultitaskParallel:
		a.skipLease = true
		o.launchLocked(a)
	}

	// The thread can be busy per the store without a run tracked in this
	// process. Launch the queue head anyway; the lease serializes against
	// whoever actually holds the thread.
	if len(o.byThread[thread.ThreadID]) == 0 {
		if q := o.queues[thread.ThreadID]; len(q) > 0 {
			next := q[0]
			o.queues[thread.ThreadID] = q[1:]
			o.launchLocked(next)
		}
	}

	o.recordRunStart(req.Strategy)
	return run.Clone(), nil
}

// createResumeRun validates and consumes the thread's interrupted state,
// then launches a new run from the saved checkpoint.
func (o *Orchestrator) createResumeRun(ctx context.Context, thread *types.Thread, req *NormalizedRequest) (*types.Run, error) {
	latest, err := o.store.LatestRun(ctx, thread.ThreadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrNothingToResume, "thread has no run to resume")
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load latest run").WithCause(err)
	}
	if latest.Status != types.RunStatusInterrupted || latest.ResumedBy != "" {
		return nil, types.NewError(types.ErrNothingToResume,
			fmt.Sprintf("latest run is %s, not interrupted", latest.Status))
	}

	run := &types.Run{
		RunID:         uuid.NewString(),
		ThreadID:      thread.ThreadID,
		AssistantID:   req.AssistantID,
		Status:        types.RunStatusPending,
		Strategy:      req.Strategy,
		Metadata:      req.Metadata,
		CheckpointRef: latest.RunID,
	}

	// Consuming the interrupted state is the linearization point: exactly
	// one concurrent resume wins the version check.
	latest.ResumedBy = run.RunID
	if err := o.store.UpdateRun(ctx, latest); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, types.NewError(types.ErrThreadBusy, "run was already resumed").
				WithCause(store.ErrVersionConflict)
		}
		return nil, types.NewError(types.ErrInternalError, "failed to consume interrupted state").WithCause(err)
	}

	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to persist run").WithCause(err)
	}

	o.mu.Lock()
	a := o.registerLocked(run, req, latest.RunID)
	o.launchLocked(a)
	o.mu.Unlock()

	o.recordRunStart(req.Strategy)
	return run.Clone(), nil
}

// threadBusyLocked reports whether the thread has an active run, either
// tracked in this process or recorded in the store.
func (o *Orchestrator) threadBusyLocked(ctx context.Context, threadID string) bool {
	if len(o.byThread[threadID]) > 0 || len(o.queues[threadID]) > 0 {
		return true
	}
	latest, err := o.store.LatestRun(ctx, threadID)
	if err != nil {
		return false
	}
	return latest.Status.Active()
}

func (o *Orchestrator) registerLocked(run *types.Run, req *NormalizedRequest, checkpointRef string) *activeRun {
	a := &activeRun{
		run:           run,
		req:           req,
		checkpointRef: checkpointRef,
		b:             newBroadcaster(),
		launch:        make(chan struct{}),
		cancelCh:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	o.runs[run.RunID] = a

	o.wg.Add(1)
	go o.runner(a)
	return a
}

func (o *Orchestrator) launchLocked(a *activeRun) {
	if o.byThread[a.run.ThreadID] == nil {
		o.byThread[a.run.ThreadID] = make(map[string]*activeRun)
	}
	o.byThread[a.run.ThreadID][a.run.RunID] = a
	a.signalLaunch()
}

// runner executes one run end to end: wait for launch, acquire the lease,
// drive the engine, classify the outcome, and finalize.
func (o *Orchestrator) runner(a *activeRun) {
	defer o.wg.Done()

	select {
	case <-a.launch:
	case <-a.cancelCh:
		// Cancelled while queued: never entered RUNNING.
		o.finalize(a, types.RunStatusCancelled, TerminalCancelled, func(r *types.Run) {})
		return
	}

	a.startedAt = time.Now()
	ctx := context.Background()

	if !a.skipLease {
		if err := o.acquireLease(ctx, a); err != nil {
			o.finalize(a, types.RunStatusFailed, TerminalError, func(r *types.Run) {
				r.Error = err.Error()
			})
			return
		}
	}

	if err := o.transition(ctx, a.run, types.RunStatusRunning, nil); err != nil {
		o.releaseLease(ctx, a)
		o.finalize(a, types.RunStatusFailed, TerminalError, func(r *types.Run) {
			r.Error = err.Error()
		})
		return
	}
	o.mirrorThread(ctx, a.run.ThreadID, types.ThreadStatusBusy)

	cfg := EngineConfig{
		RunID:           a.run.RunID,
		ThreadID:        a.run.ThreadID,
		AssistantID:     a.run.AssistantID,
		Input:           a.req.Input,
		InterruptBefore: a.req.InterruptBefore,
		InterruptAfter:  a.req.InterruptAfter,
	}

	var exec Execution
	var err error
	if a.checkpointRef != "" {
		exec, err = o.engine.Resume(ctx, a.checkpointRef, *a.req.Command, cfg)
	} else {
		exec, err = o.engine.Start(ctx, cfg)
	}
	if err != nil {
		o.releaseLease(ctx, a)
		o.finalize(a, types.RunStatusFailed, TerminalError, func(r *types.Run) {
			r.Error = types.NewError(types.ErrEngineFailure, "engine start failed").WithCause(err).Error()
		})
		return
	}

	// Relay intermediate events to stream subscribers.
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for ev := range exec.Events() {
			a.b.publish(StreamEvent{Event: ev})
		}
	}()

	type waitResult struct {
		output map[string]any
		err    error
	}
	resCh := make(chan waitResult, 1)
	go func() {
		out, werr := exec.Wait(context.Background())
		resCh <- waitResult{out, werr}
	}()

	timer := time.NewTimer(o.cfg.RunTimeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		<-relayDone
		o.settle(ctx, a, res.output, res.err)

	case <-timer.C:
		// No classification within the deadline: force FAILED and attempt
		// adapter cancellation as cleanup.
		ackCtx, cancel := context.WithTimeout(ctx, o.cfg.CancelAckTimeout)
		_ = exec.Cancel(ackCtx)
		cancel()
		o.releaseLease(ctx, a)
		o.finalize(a, types.RunStatusFailed, TerminalError, func(r *types.Run) {
			r.Error = types.NewError(types.ErrTimeout, "timeout").Error()
		})

	case <-a.cancelCh:
		ackCtx, cancel := context.WithTimeout(ctx, o.cfg.CancelAckTimeout)
		ackErr := exec.Cancel(ackCtx)
		cancel()
		o.releaseLease(ctx, a)
		if ackErr != nil {
			// Unacknowledged cancellation is a failure with a timeout cause.
			o.finalize(a, types.RunStatusFailed, TerminalError, func(r *types.Run) {
				r.Error = types.NewError(types.ErrTimeout, "cancellation not acknowledged").WithCause(ackErr).Error()
			})
			return
		}
		o.finalize(a, types.RunStatusCancelled, TerminalCancelled, func(r *types.Run) {})
	}
}

// settle classifies the engine's terminal output and persists the
// resulting transition.
func (o *Orchestrator) settle(ctx context.Context, a *activeRun, output map[string]any, engineErr error) {
	o.releaseLease(ctx, a)

	if engineErr != nil {
		o.finalize(a, types.RunStatusFailed, TerminalError, func(r *types.Run) {
			r.Error = types.NewError(types.ErrEngineFailure, "engine reported an error").WithCause(engineErr).Error()
		})
		return
	}

	outcome := Classify(output)
	switch outcome.Kind {
	case OutcomeSuspended:
		o.finalize(a, types.RunStatusInterrupted, TerminalInterrupt, func(r *types.Run) {
			r.Output = outcome.Payload
			r.Interrupts = outcome.Interrupts
		})
	case OutcomeFinished:
		o.finalize(a, types.RunStatusCompleted, TerminalCompleted, func(r *types.Run) {
			r.Output = outcome.Output
		})
	}
}

// finalize persists the closing transition, mirrors the thread status,
// emits the terminal stream frame, fires the webhook, and schedules the
// next queued run on the thread.
func (o *Orchestrator) finalize(a *activeRun, status types.RunStatus, kind TerminalKind, mutate func(*types.Run)) {
	ctx := context.Background()

	if err := o.transition(ctx, a.run, status, mutate); err != nil {
		o.logger.Error("failed to persist closing transition",
			zap.String("run_id", a.run.RunID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	o.mirrorThread(ctx, a.run.ThreadID, types.MirrorStatus(status))

	if a.req.OnCompletion == types.OnCompletionDelete && status.Terminal() {
		if err := o.store.DeleteThread(ctx, a.run.ThreadID); err != nil {
			o.logger.Warn("failed to delete thread on completion",
				zap.String("thread_id", a.run.ThreadID), zap.Error(err))
		}
	}

	var payload any
	switch kind {
	case TerminalInterrupt:
		payload = a.run.Output
	case TerminalCompleted:
		payload = a.run.Output
	case TerminalError:
		payload = map[string]any{"error": a.run.Error}
	case TerminalCancelled:
		payload = map[string]any{"run_id": a.run.RunID}
	}
	a.b.publish(StreamEvent{Terminal: true, Kind: kind, Payload: payload})

	target := a.req.Webhook
	if target == "" {
		target = o.cfg.DefaultWebhook
	}
	if o.notifier != nil {
		o.notifier.Notify(target, Notification{
			RunID:    a.run.RunID,
			ThreadID: a.run.ThreadID,
			Status:   status,
			Output:   a.run.Output,
		})
	}

	if o.metrics != nil {
		started := a.startedAt
		if started.IsZero() {
			started = a.run.CreatedAt
		}
		o.metrics.RecordRunEnd(string(status), time.Since(started))
	}

	o.logger.Info("run settled",
		zap.String("run_id", a.run.RunID),
		zap.String("thread_id", a.run.ThreadID),
		zap.String("status", string(status)),
	)

	close(a.done)

	o.mu.Lock()
	delete(o.byThread[a.run.ThreadID], a.run.RunID)
	if len(o.byThread[a.run.ThreadID]) == 0 {
		if q := o.queues[a.run.ThreadID]; len(q) > 0 {
			next := q[0]
			o.queues[a.run.ThreadID] = q[1:]
			o.launchLocked(next)
		}
	}
	o.mu.Unlock()

	// Keep the event sequence around for late stream subscribers.
	time.AfterFunc(o.cfg.StreamRetention, func() {
		o.mu.Lock()
		delete(o.runs, a.run.RunID)
		o.mu.Unlock()
	})
}

// acquireLease takes the thread lease, polling while another run holds it.
func (o *Orchestrator) acquireLease(ctx context.Context, a *activeRun) error {
	deadline := time.Now().Add(o.cfg.LeaseTimeout)
	for {
		err := o.store.AcquireLease(ctx, a.run.ThreadID, a.run.RunID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrLeaseHeld) {
			return types.NewError(types.ErrInternalError, "lease acquisition failed").WithCause(err)
		}
		if o.metrics != nil {
			o.metrics.RecordLeaseContention()
		}
		if time.Now().After(deadline) {
			return types.NewError(types.ErrThreadBusy, "timed out waiting for thread lease")
		}
		select {
		case <-time.After(o.cfg.LeaseRetryInterval):
		case <-a.cancelCh:
			return types.NewError(types.ErrThreadBusy, "cancelled while waiting for thread lease")
		}
	}
}

func (o *Orchestrator) releaseLease(ctx context.Context, a *activeRun) {
	if a.skipLease {
		return
	}
	if err := o.store.ReleaseLease(ctx, a.run.ThreadID, a.run.RunID); err != nil {
		o.logger.Warn("failed to release thread lease",
			zap.String("thread_id", a.run.ThreadID),
			zap.String("run_id", a.run.RunID),
			zap.Error(err),
		)
	}
}

// transition applies one state-machine step with a retry-once-then-fail
// policy on version conflicts.
func (o *Orchestrator) transition(ctx context.Context, run *types.Run, to types.RunStatus, mutate func(*types.Run)) error {
	for attempt := 0; ; attempt++ {
		if !run.Status.CanTransition(to) {
			return types.NewError(types.ErrInternalError,
				fmt.Sprintf("invalid transition %s -> %s", run.Status, to))
		}

		from := run.Status
		run.Status = to
		if mutate != nil {
			mutate(run)
		}

		err := o.store.UpdateRun(ctx, run)
		if err == nil {
			if o.metrics != nil {
				o.metrics.RecordRunTransition(string(from), string(to))
			}
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt > 0 {
			run.Status = from
			return types.NewError(types.ErrStaleVersion, "run transition lost a version race").WithCause(err)
		}

		// Retry once against the freshly stored record.
		fresh, gerr := o.store.GetRun(ctx, run.RunID)
		if gerr != nil {
			run.Status = from
			return types.NewError(types.ErrInternalError, "failed to reload run").WithCause(gerr)
		}
		*run = *fresh
	}
}

// mirrorThread updates the thread's mirrored status, retrying once on a
// version race. Mirroring is best effort; the run record stays the source
// of truth.
func (o *Orchestrator) mirrorThread(ctx context.Context, threadID string, status types.ThreadStatus) {
	for attempt := 0; attempt < 2; attempt++ {
		thread, err := o.store.GetThread(ctx, threadID)
		if err != nil {
			return
		}
		thread.Status = status
		if err := o.store.UpdateThread(ctx, thread); err == nil ||
			!errors.Is(err, store.ErrVersionConflict) {
			return
		}
	}
}

// Cancel delivers a cooperative cancellation to the run. Terminal runs are
// left untouched.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.NewError(types.ErrNotFound, "run not found")
		}
		return types.NewError(types.ErrInternalError, "failed to load run").WithCause(err)
	}
	if run.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	a, ok := o.runs[runID]
	if ok {
		// Remove from the wait queue if it never launched.
		q := o.queues[run.ThreadID]
		for i, queued := range q {
			if queued.run.RunID == runID {
				o.queues[run.ThreadID] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
	o.mu.Unlock()

	if ok {
		a.signalCancel()
		return nil
	}

	// Not tracked in this process (e.g. interrupted or orphaned): settle
	// the record directly.
	return o.transition(ctx, run, types.RunStatusCancelled, nil)
}

// Stream subscribes to the run's event sequence from the beginning. The
// cancel function detaches the subscriber.
func (o *Orchestrator) Stream(runID string) (<-chan StreamEvent, func(), error) {
	o.mu.Lock()
	a, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return nil, nil, types.NewError(types.ErrNotFound, "run stream is no longer available")
	}
	ch, cancel := a.b.subscribe()
	return ch, cancel, nil
}

// Join blocks until the run reaches a terminal or interrupted state and
// returns the settled record.
func (o *Orchestrator) Join(ctx context.Context, runID string) (*types.Run, error) {
	o.mu.Lock()
	a, ok := o.runs[runID]
	o.mu.Unlock()

	if ok {
		select {
		case <-a.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return o.getSettled(ctx, runID)
	}

	// The run may belong to another instance: poll the store.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := o.store.GetRun(ctx, runID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, types.NewError(types.ErrNotFound, "run not found")
			}
			return nil, err
		}
		if run.Status.Terminal() || run.Status == types.RunStatusInterrupted {
			return run, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (o *Orchestrator) getSettled(ctx context.Context, runID string) (*types.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.NewError(types.ErrNotFound, "run not found")
		}
		return nil, err
	}
	return run, nil
}

// Shutdown cancels in-flight runs and waits for them to settle, bounded by
// ctx. Webhook deliveries already scheduled are drained as well.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.closed.Store(true)

	o.mu.Lock()
	for _, a := range o.runs {
		select {
		case <-a.done:
		default:
			a.signalCancel()
		}
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		if o.notifier != nil {
			o.notifier.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) recordRunStart(strategy types.MultitaskStrategy) {
	if o.metrics != nil {
		o.metrics.RecordRunStart(string(strategy))
	}
}
