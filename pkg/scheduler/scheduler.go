// Package scheduler serializes a session's expensive work. Chapter
// streaming holds an exclusive gate for its whole window; background
// text-generation tasks (summaries, visual updates, image prompt steps)
// queue FIFO behind it and run one at a time between streams. Image
// rendering itself is not text generation and runs outside the gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Task execution bounds.
const (
	StreamingTimeout = 120 * time.Second
	DeferredTimeout  = 30 * time.Second
	ImageTimeout     = 60 * time.Second

	taskQueueSize = 64
)

type task struct {
	name string
	fn   func(context.Context) error
	done chan error
}

// Scheduler owns one session's work ordering. A single worker drains the
// deferred queue; each deferred task acquires the streaming gate before
// running, so no background text generation overlaps an active stream.
type Scheduler struct {
	logger *slog.Logger

	streamMu sync.Mutex

	// baseCtx parents every task context; Stop cancels it so in-flight
	// and queued work ends with the session instead of outliving it.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	tasks    chan task
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	pendingMu sync.Mutex
	pending   int
	idleCh    chan struct{}

	imageWg sync.WaitGroup
}

// New creates a Scheduler and starts its worker.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:     logger.With("component", "scheduler"),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		tasks:      make(chan task, taskQueueSize),
		stopCh:     make(chan struct{}),
		idleCh:     make(chan struct{}),
	}
	close(s.idleCh)
	s.wg.Add(1)
	go s.run()
	return s
}

// Stop cancels in-flight work, fails anything still queued, and waits
// for the worker to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.baseCancel()
		close(s.stopCh)
	})
	s.wg.Wait()
}

// RunStreaming executes fn while holding the streaming gate, bounded by
// StreamingTimeout. Deferred tasks queued during the window run only
// after fn returns.
func (s *Scheduler) RunStreaming(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, StreamingTimeout)
	defer cancel()
	return fn(sctx)
}

// EnqueueDeferred queues fn for background execution after any active
// stream. The call never blocks on the work itself.
func (s *Scheduler) EnqueueDeferred(name string, fn func(context.Context) error) error {
	return s.enqueue(task{name: name, fn: fn})
}

// RunDeferredWait queues fn and waits for its result. Used for steps
// that must respect stream priority but whose output the caller needs,
// e.g. the text-generation stages of the image pipeline.
func (s *Scheduler) RunDeferredWait(ctx context.Context, name string, fn func(context.Context) error) error {
	t := task{name: name, fn: fn, done: make(chan error, 1)}
	if err := s.enqueue(t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrStopped
	}
}

// WaitDeferred blocks until every queued task has finished or ctx ends.
func (s *Scheduler) WaitDeferred(ctx context.Context) error {
	for {
		s.pendingMu.Lock()
		idle := s.idleCh
		pending := s.pending
		s.pendingMu.Unlock()
		if pending == 0 {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// GoImagePipeline runs fn in its own goroutine with an end-to-end bound.
// The pipeline internally routes its text-generation steps through
// RunDeferredWait; only rendering runs concurrently with future streams.
func (s *Scheduler) GoImagePipeline(name string, fn func(context.Context) error) {
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.wg.Add(1)
	s.imageWg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.imageWg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, ImageTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("image pipeline failed", "task", name, "error", err)
		}
	}()
}

// WaitImagePipelines blocks until every launched image pipeline has
// finished or ctx ends.
func (s *Scheduler) WaitImagePipelines(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.imageWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) enqueue(t task) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	s.pendingMu.Lock()
	if s.pending == 0 {
		s.idleCh = make(chan struct{})
	}
	s.pending++
	s.pendingMu.Unlock()

	select {
	case s.tasks <- t:
		return nil
	case <-s.stopCh:
		s.taskFinished()
		return ErrStopped
	}
}

func (s *Scheduler) taskFinished() {
	s.pendingMu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idleCh)
	}
	s.pendingMu.Unlock()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case t := <-s.tasks:
			s.execute(t)
		}
	}
}

// drain fails tasks still queued at shutdown. The session is gone;
// running queued generation work against a dead connection would only
// spend provider calls.
func (s *Scheduler) drain() {
	for {
		select {
		case t := <-s.tasks:
			s.taskFinished()
			if t.done != nil {
				t.done <- ErrStopped
			}
		default:
			return
		}
	}
}

func (s *Scheduler) execute(t task) {
	defer s.taskFinished()

	// Deferred work yields to streaming for the stream's whole window.
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	ctx, cancel := context.WithTimeout(s.baseCtx, DeferredTimeout)
	defer cancel()

	var err error
	if s.baseCtx.Err() != nil {
		err = ErrStopped
	} else if err = t.fn(ctx); err != nil {
		s.logger.Warn("deferred task failed", "task", t.name, "error", err)
		err = fmt.Errorf("deferred task %s: %w", t.name, err)
	}
	if t.done != nil {
		t.done <- err
	}
}
