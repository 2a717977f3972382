// Package queue serializes operations against one connection-oriented resource.
//
// A Queue runs every pushed operation on a single worker goroutine in FIFO
// order. It opens the resource before the first operation after an idle
// period and releases it once no work has been pending for the idle timeout.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/groutine"
)

const (
	DefaultCommandTimeout = 60 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
)

// Resource is opened before work runs and released when the queue goes idle.
type Resource interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Operation is one unit of work. ctx is cancelled when the command times out.
type Operation func(ctx context.Context) error

// Options configures a Queue.
type Options struct {
	Name           string // used in log fields
	CommandTimeout time.Duration
	IdleTimeout    time.Duration
}

type taskKind int

const (
	taskStart taskKind = iota
	taskCommand
	taskStop
)

// session groups a start task with the commands admitted behind it.
type session struct {
	err error // result of the start task, guarded by Queue.mu
}

type task struct {
	kind    taskKind
	ctx     context.Context
	op      Operation
	session *session
	result  chan error // buffered; nil for start and stop tasks
	final   bool       // the stop task issued by Close
}

// Queue is a connection-scheduled FIFO command queue.
type Queue struct {
	resource       Resource
	logger         *logrus.Logger
	name           string
	commandTimeout time.Duration
	idleTimeout    time.Duration

	mu       sync.Mutex
	pending  int // commands admitted and not yet settled; -1 once closed
	tasks    []*task
	session  *session
	timer    *time.Timer
	timerGen uint64

	wake      chan struct{}
	closeDone chan struct{}
	closeErr  error
}

// New creates a Queue for resource and starts its worker.
func New(resource Resource, opts Options, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}

	q := &Queue{
		resource:       resource,
		logger:         logger,
		name:           opts.Name,
		commandTimeout: opts.CommandTimeout,
		idleTimeout:    opts.IdleTimeout,
		wake:           make(chan struct{}, 1),
		closeDone:      make(chan struct{}),
	}

	groutine.Go(context.Background(), "command-queue:"+opts.Name, q.run)
	return q
}

// Push admits op and waits for its result.
//
// When the queue had no pending commands, the resource is (re)opened before op
// runs; this cancels a pending idle release, and is a no-op for a resource that
// is still open. If that open fails, op and every command admitted behind it
// fail with the open error without running.
func (q *Queue) Push(ctx context.Context, op Operation) error {
	q.mu.Lock()
	if q.pending < 0 {
		q.mu.Unlock()
		q.logger.WithField("queue", q.name).Warn("Queue closed, dropping command")
		return device.ErrQueueClosed
	}

	// Cancelling the idle timer and admitting the command happen under one lock,
	// so an expiring timer can never release the resource under a new command.
	reused := q.cancelIdleLocked()
	if q.pending == 0 {
		q.session = &session{}
		q.enqueueLocked(&task{kind: taskStart, session: q.session})
	}
	q.pending++

	t := &task{
		kind:    taskCommand,
		ctx:     ctx,
		op:      op,
		session: q.session,
		result:  make(chan error, 1),
	}
	q.enqueueLocked(t)
	pending := q.pending
	q.mu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"queue":   q.name,
		"pending": pending,
		"reused":  reused,
	}).Debug("Command admitted")

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do pushes an operation that produces a value.
func Do[V any](ctx context.Context, q *Queue, op func(ctx context.Context) (V, error)) (V, error) {
	var value V
	err := q.Push(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return value, nil
}

// Close stops admitting commands, lets queued ones drain, then releases the
// resource once. Repeated calls wait for and return the same result.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.pending >= 0 {
		drained := q.pending
		q.pending = -1
		q.cancelIdleLocked()
		q.enqueueLocked(&task{kind: taskStop, final: true})
		q.mu.Unlock()

		q.logger.WithFields(logrus.Fields{
			"queue":   q.name,
			"pending": drained,
		}).Debug("Closing queue")
	} else {
		q.mu.Unlock()
	}

	select {
	case <-q.closeDone:
		return q.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of unsettled commands, or -1 once closed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// IdleArmed reports whether the idle release timer is armed.
func (q *Queue) IdleArmed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timer != nil
}

func (q *Queue) enqueueLocked(t *task) {
	q.tasks = append(q.tasks, t)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// cancelIdleLocked disarms the idle timer and reports whether it was armed.
func (q *Queue) cancelIdleLocked() bool {
	if q.timer == nil {
		return false
	}
	q.timer.Stop()
	q.timer = nil
	q.timerGen++
	return true
}

func (q *Queue) armIdleLocked() {
	q.timerGen++
	gen := q.timerGen
	q.timer = time.AfterFunc(q.idleTimeout, func() {
		q.idleExpired(gen)
	})
}

// idleExpired enqueues the idle release unless the timer was cancelled or
// superseded after it fired.
func (q *Queue) idleExpired(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.timerGen || q.timer == nil || q.pending != 0 {
		return
	}
	q.timer = nil
	q.enqueueLocked(&task{kind: taskStop})
}

// settle accounts for one finished command. Once closed the count is left alone.
func (q *Queue) settle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending <= 0 {
		return
	}
	q.pending--
	if q.pending == 0 {
		q.armIdleLocked()
	}
}

func (q *Queue) next() *task {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return t
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		t := q.next()

		switch t.kind {
		case taskStart:
			err := q.resource.Connect(ctx)
			if err != nil {
				q.logger.WithFields(logrus.Fields{
					"queue":  q.name,
					"worker": groutine.Name(ctx),
					"error":  err,
				}).Warn("Failed to open resource, failing queued commands")
			}
			q.mu.Lock()
			t.session.err = err
			q.mu.Unlock()

		case taskCommand:
			q.mu.Lock()
			startErr := t.session.err
			q.mu.Unlock()

			if startErr != nil {
				t.result <- startErr
			} else {
				t.result <- q.execute(t)
			}
			q.settle()

		case taskStop:
			err := q.resource.Disconnect(ctx)
			if err != nil {
				q.logger.WithFields(logrus.Fields{
					"queue": q.name,
					"error": err,
				}).Warn("Failed to release resource")
			} else {
				q.logger.WithField("queue", q.name).Debug("Resource released")
			}

			if t.final {
				q.closeErr = err
				close(q.closeDone)
				return
			}
		}
	}
}

// execute runs one command bounded by the command timeout. A command whose
// caller already gave up is skipped.
func (q *Queue) execute(t *task) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}

	cmdCtx, cancel := context.WithTimeout(t.ctx, q.commandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.op(cmdCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-cmdCtx.Done():
		err = cmdCtx.Err()
	}

	if err != nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && t.ctx.Err() == nil {
		q.logger.WithFields(logrus.Fields{
			"queue":   q.name,
			"timeout": q.commandTimeout,
		}).Warn("Command timed out")
		return fmt.Errorf("%w after %v", device.ErrCommandTimeout, q.commandTimeout)
	}
	return err
}
