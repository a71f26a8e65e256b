// Package dispatch drains a priority queue through a single handler, one item at a time.
//
// The dispatcher is single-flight: at most one handler call is in progress.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailtriage/pkg/eventlog"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/queue"
)

// DefaultDrainInterval is the pause between two drain steps.
const DefaultDrainInterval = 100 * time.Millisecond

const defaultResultBuffer = 64

// ErrStopped is returned by Insert after Stop.
var ErrStopped = errors.New("dispatcher is stopped")

// Handler processes one item. A non-nil error requeues the item with a priority penalty.
type Handler func(ctx context.Context, item proto.WorkItem) error

// State is the drain loop state.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// Outcome is what happened to an item after its handler returned.
type Outcome string

const (
	// Succeeded means the handler returned nil and the item is gone.
	Succeeded Outcome = metrics.OutcomeSucceeded
	// Requeued means the handler failed and the item was reinserted with a penalty.
	Requeued Outcome = metrics.OutcomeRequeued
	// Dropped means the handler failed but the item was not reinserted, because it was
	// removed while in flight or an item with the same ID had been queued meanwhile.
	Dropped Outcome = metrics.OutcomeDropped
)

// Result reports one completed handler call.
type Result struct {
	Item         proto.WorkItem
	Outcome      Outcome
	Priority     int // priority the item was popped with
	NextPriority int // priority after requeue; zero unless Requeued
	Attempts     int // failed attempts before this one
	Err          error
	Duration     time.Duration
	FinishedAt   time.Time
}

// Status is a read-only view for monitoring.
type Status struct {
	TotalItems  int             `json:"totalItems"`
	UrgentItems int             `json:"urgentItems"`
	Draining    bool            `json:"draining"`
	State       State           `json:"state"`
	NextItem    *proto.WorkItem `json:"nextItem,omitempty"`
}

// Options configures a Dispatcher.
type Options struct {
	// DrainInterval is the pause between drain steps. Zero uses DefaultDrainInterval;
	// a negative value disables the pause.
	DrainInterval time.Duration
	// ResultBuffer is the capacity of the Results channel.
	ResultBuffer int
	Metrics      metrics.Recorder
	// EventLog receives one event per handler call when set.
	EventLog *eventlog.Writer
}

// Dispatcher owns the drain loop for one queue.
type Dispatcher struct {
	queue    *queue.Queue
	handler  Handler
	interval time.Duration
	metrics  metrics.Recorder
	eventLog *eventlog.Writer
	logger   *logx.Logger

	wake     chan struct{}
	results  chan Result
	closeRes sync.Once
	shutdown chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu             sync.RWMutex
	running        bool
	state          State
	inflightID     string
	inflightCancel bool
}

// NewDispatcher creates a dispatcher for q. Call Start to begin draining.
func NewDispatcher(q *queue.Queue, handler Handler, opts Options) (*Dispatcher, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}
	interval := opts.DrainInterval
	switch {
	case interval == 0:
		interval = DefaultDrainInterval
	case interval < 0:
		interval = 0
	}
	buf := opts.ResultBuffer
	if buf <= 0 {
		buf = defaultResultBuffer
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop()
	}

	return &Dispatcher{
		queue:    q,
		handler:  handler,
		interval: interval,
		metrics:  rec,
		eventLog: opts.EventLog,
		logger:   logx.NewLogger("dispatch"),
		wake:     make(chan struct{}, 1),
		results:  make(chan Result, buf),
		shutdown: make(chan struct{}),
		state:    StateIdle,
	}, nil
}

// Start launches the drain loop. Items inserted before Start are drained right away.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is already running")
	}
	if d.state == StateStopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.running = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.logger.Info("Starting dispatcher (drain interval %s)", d.interval)

	d.wg.Add(1)
	go d.drainLoop(runCtx)
	d.signal()
	return nil
}

// Stop ends the drain loop and closes the Results channel. An in-flight handler call is
// allowed to finish until ctx expires; after that its context is cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.state = StateStopped
		d.mu.Unlock()
		d.closeResults()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info("Stopping dispatcher")
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		d.logger.Info("Dispatcher stopped successfully")
	case <-ctx.Done():
		d.logger.Warn("Dispatcher stop timed out, cancelling in-flight handler")
		d.cancel()
		<-done
		err = ctx.Err()
	}
	d.cancel()

	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()
	return err
}

// Results delivers one Result per handler call. It is closed when the loop exits.
// Results are dropped with a warning when the buffer is full.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Insert scores and queues item, waking the loop if it is idle.
func (d *Dispatcher) Insert(item proto.WorkItem) (queue.Entry, error) {
	d.mu.RLock()
	stopped := d.state == StateStopped
	d.mu.RUnlock()
	if stopped {
		return queue.Entry{}, ErrStopped
	}

	entry, err := d.queue.Insert(item)
	if err != nil {
		return queue.Entry{}, err
	}
	d.logger.Debug("Queued %s with priority %d", item.ID, entry.Priority)
	d.publishDepth()
	d.signal()
	return entry, nil
}

// Remove cancels an item. A queued item is removed outright. An item whose handler is
// running finishes that call normally but will not be requeued if it fails.
// It reports whether the item was queued or in flight.
func (d *Dispatcher) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := d.queue.Remove(id)
	if d.inflightID == id {
		d.inflightCancel = true
		removed = true
	}
	if removed {
		d.logger.Info("Removed %s from the queue", id)
		d.publishDepth()
	}
	return removed
}

// RecalculateAll rescores every queued item against the current time.
func (d *Dispatcher) RecalculateAll() {
	d.queue.RecalculateAll()
}

// Clear empties the queue. An in-flight item is unaffected.
func (d *Dispatcher) Clear() int {
	n := d.queue.Clear()
	d.publishDepth()
	return n
}

// Snapshot returns the queued entries in drain order.
func (d *Dispatcher) Snapshot() []queue.Entry {
	return d.queue.Snapshot()
}

// Status returns queue counts, the next item and whether a drain cycle is active.
func (d *Dispatcher) Status() Status {
	d.mu.RLock()
	state := d.state
	d.mu.RUnlock()

	s := d.queue.Summary()
	return Status{
		TotalItems:  s.TotalItems,
		UrgentItems: s.UrgentItems,
		Draining:    state == StateDraining,
		State:       state,
		NextItem:    s.Next,
	}
}

// GetStats returns loop internals for debugging endpoints.
func (d *Dispatcher) GetStats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return map[string]any{
		"running":          d.running,
		"state":            string(d.state),
		"inflight":         d.inflightID,
		"queue_length":     d.queue.Len(),
		"results_length":   len(d.results),
		"results_capacity": cap(d.results),
		"drain_interval":   d.interval.String(),
	}
}

func (d *Dispatcher) closeResults() {
	d.closeRes.Do(func() { close(d.results) })
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dispatcher) publishDepth() {
	s := d.queue.Summary()
	d.metrics.SetQueueDepth(s.TotalItems, s.UrgentItems)
}

// drainLoop runs until Stop or until the Start context is done. Either way the
// dispatcher ends up stopped: later inserts fail with ErrStopped.
func (d *Dispatcher) drainLoop(ctx context.Context) {
	defer d.wg.Done()
	defer d.closeResults()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.state = StateStopped
		d.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Drain loop stopped by context")
			return
		case <-d.shutdown:
			d.logger.Info("Drain loop stopped by shutdown signal")
			return
		case <-d.wake:
			if !d.drain(ctx) {
				return
			}
		}
	}
}

// drain pops and processes items until the queue is empty. It returns false when the
// loop should exit.
func (d *Dispatcher) drain(ctx context.Context) bool {
	if d.queue.Len() == 0 {
		return true
	}
	d.setState(StateDraining)
	defer d.setState(StateIdle)
	logx.Debug(ctx, "dispatch", "drain cycle started with %d items", d.queue.Len())

	for {
		select {
		case <-ctx.Done():
			return false
		case <-d.shutdown:
			return false
		default:
		}

		entry, ok := d.queue.PopHighest()
		if !ok {
			logx.Debug(ctx, "dispatch", "queue empty, going idle")
			return true
		}
		d.process(ctx, entry)
		d.publishDepth()

		if d.interval > 0 {
			timer := time.NewTimer(d.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-d.shutdown:
				timer.Stop()
				return false
			case <-timer.C:
			}
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, entry queue.Entry) {
	id := entry.Item.ID
	d.mu.Lock()
	d.inflightID = id
	d.inflightCancel = false
	d.mu.Unlock()

	start := time.Now()
	err := d.invoke(ctx, entry.Item)
	res := Result{
		Item:     entry.Item,
		Priority: entry.Priority,
		Attempts: entry.Attempts,
		Err:      err,
		Duration: time.Since(start),
	}

	// Requeue under d.mu so a concurrent Remove either cancels it or sees the reinserted entry.
	d.mu.Lock()
	switch {
	case err == nil:
		res.Outcome = Succeeded
	case d.inflightCancel:
		res.Outcome = Dropped
		d.logger.Info("Handler failed for %s after it was removed, not requeueing: %v", id, err)
	default:
		re, rerr := d.queue.ReinsertWithPenalty(entry)
		if rerr != nil {
			res.Outcome = Dropped
			d.logger.Warn("Could not requeue %s: %v", id, rerr)
		} else {
			res.Outcome = Requeued
			res.NextPriority = re.Priority
			d.logger.Warn("Handler failed for %s (attempt %d), requeued at priority %d: %v", id, re.Attempts, re.Priority, err)
		}
	}
	d.inflightID = ""
	d.inflightCancel = false
	d.mu.Unlock()

	res.FinishedAt = time.Now()
	d.emit(res)
}

func (d *Dispatcher) invoke(ctx context.Context, item proto.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler(ctx, item)
}

func (d *Dispatcher) emit(res Result) {
	d.metrics.ObserveDrain(string(res.Outcome), res.Duration)

	if d.eventLog != nil {
		ev := eventlog.Event{
			Time:       res.FinishedAt,
			ItemID:     res.Item.ID,
			Outcome:    string(res.Outcome),
			Priority:   res.Priority,
			Requeued:   res.NextPriority,
			Attempts:   res.Attempts,
			DurationMS: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		if err := d.eventLog.Write(ev); err != nil {
			d.logger.Warn("Failed to write drain event for %s: %v", res.Item.ID, err)
		}
	}

	select {
	case d.results <- res:
	default:
		d.metrics.IncDroppedResult()
		d.logger.Warn("Results channel full, dropping result for %s", res.Item.ID)
	}
}
