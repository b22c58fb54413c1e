package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrServiceAlreadyStarted = fmt.Errorf("recoverable service already started")
	ErrServiceNotRunning     = fmt.Errorf("recoverable service not running")
	errServicePanicked       = fmt.Errorf("service panicked")
)

const (
	DefaultRestartWait = 10 * time.Second
)

// Recoverable is a service that a Recoverer can manage.
type Recoverable interface {
	// Start is expected to block until the service completes, fails or the
	// context is cancelled.
	Start(context.Context) error
	// Close causes a blocking Start to return.
	Close() error
}

// Option customizes a Recoverer.
type Option func(*Recoverer)

// WithRestartWait sets the pause between a failure and the next start.
func WithRestartWait(wait time.Duration) Option {
	return func(r *Recoverer) {
		r.coolDown = wait
	}
}

// WithMaxRestarts limits the number of restarts. Zero means unlimited.
func WithMaxRestarts(n int) Option {
	return func(r *Recoverer) {
		r.maxRestarts = n
	}
}

// Recoverer runs a service and starts it again when it panics or returns an
// error. A service that returns nil is considered finished and is not
// restarted.
type Recoverer struct {
	service     Recoverable
	log         *log.Logger
	coolDown    time.Duration
	maxRestarts int

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	restarts atomic.Int64
}

func NewRecoverer(svc Recoverable, logger *log.Logger, opts ...Option) *Recoverer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	r := &Recoverer{
		service:  svc,
		log:      logger,
		coolDown: DefaultRestartWait,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start runs the service in the background and returns immediately.
func (r *Recoverer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.supervise(ctx, r.done)

	return nil
}

// Close stops the service and waits for the supervisor to exit.
func (r *Recoverer) Close() error {
	r.mu.Lock()

	if !r.running {
		r.mu.Unlock()

		return ErrServiceNotRunning
	}

	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	err := r.service.Close()

	<-done

	return err
}

// Done is closed once the service finished or was stopped.
func (r *Recoverer) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.done
}

func (r *Recoverer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.running
}

// Restarts is the number of times the service was started again after a
// failure.
func (r *Recoverer) Restarts() int64 {
	return r.restarts.Load()
}

func (r *Recoverer) supervise(ctx context.Context, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()

		close(done)
	}()

	for {
		err := r.runOnce(ctx)

		if err == nil || ctx.Err() != nil {
			return
		}

		if r.maxRestarts > 0 && r.restarts.Load() >= int64(r.maxRestarts) {
			r.log.Printf("service failed %d times, giving up: %s", r.restarts.Load()+1, err)

			return
		}

		r.log.Printf("service stopped with error, restarting in %s: %s", r.coolDown, err)

		timer := time.NewTimer(r.coolDown)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return
		}

		r.restarts.Add(1)
	}
}

func (r *Recoverer) runOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Println(rec)
			r.log.Println(string(debug.Stack()))

			err = fmt.Errorf("%w: %v", errServicePanicked, rec)
		}
	}()

	err = r.service.Start(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}

	return err
}
