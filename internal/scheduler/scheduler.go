package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result outcome of one worker run
type Result int

const (
	Success Result = iota
	Retry
	Failure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Worker unit of background work; ctx is cancelled when the job is
// replaced, cancelled, or the scheduler stops
type Worker interface {
	DoWork(ctx context.Context) Result
}

// WorkerFunc adapts a function to Worker
type WorkerFunc func(ctx context.Context) Result

func (f WorkerFunc) DoWork(ctx context.Context) Result { return f(ctx) }

// Policy what to do when a job with the same unique name exists
type Policy int

const (
	// Keep leaves an unfinished existing job untouched
	Keep Policy = iota
	// Replace cancels the existing job, including an in-flight run
	Replace
)

// Constraints preconditions checked before each run
type Constraints struct {
	RequiresNetwork bool
}

// NetworkMonitor reports connectivity
type NetworkMonitor interface {
	Available(ctx context.Context) bool
}

// PeriodicRequest runs every Interval, in the last Flex of each interval
type PeriodicRequest struct {
	Interval    time.Duration
	Flex        time.Duration
	Constraints Constraints
}

// OneTimeRequest runs once after Delay, retried while the worker asks to
type OneTimeRequest struct {
	Delay       time.Duration
	Constraints Constraints
}

// State job lifecycle state
type State string

const (
	StateEnqueued  State = "ENQUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

func (s State) finished() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Info snapshot of one job
type Info struct {
	Name       string
	Periodic   bool
	State      State
	RunCount   int
	LastResult *Result
	NextRun    time.Time
	Backoff    time.Duration
}

// Options scheduler tuning
type Options struct {
	InitialBackoff    time.Duration // default 30s
	MaxBackoff        time.Duration // default 5h
	ConstraintRecheck time.Duration // wait after an unmet constraint; default 30s
}

var ErrStopped = errors.New("scheduler stopped")

// Scheduler runs uniquely named background jobs, one goroutine per job
type Scheduler struct {
	network NetworkMonitor
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	wg      sync.WaitGroup
}

type job struct {
	name     string
	worker   Worker
	periodic bool
	interval time.Duration
	flex     time.Duration
	delay    time.Duration
	cons     Constraints

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	info Info
}

// New creates a scheduler; network may be nil when no job requires it
func New(network NetworkMonitor, opts Options, logger *zap.Logger) *Scheduler {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Hour
	}
	if opts.ConstraintRecheck <= 0 {
		opts.ConstraintRecheck = 30 * time.Second
	}
	return &Scheduler{
		network: network,
		opts:    opts,
		logger:  logger,
		jobs:    make(map[string]*job),
	}
}

// EnqueueUniquePeriodic schedules a periodic job; returns false when Keep
// left an existing job in place
func (s *Scheduler) EnqueueUniquePeriodic(name string, policy Policy, req PeriodicRequest, w Worker) (bool, error) {
	if req.Interval <= 0 {
		return false, fmt.Errorf("periodic job %s: interval must be positive", name)
	}
	if req.Flex < 0 || req.Flex > req.Interval {
		return false, fmt.Errorf("periodic job %s: flex must be within the interval", name)
	}
	return s.enqueue(&job{
		name:     name,
		worker:   w,
		periodic: true,
		interval: req.Interval,
		flex:     req.Flex,
		delay:    req.Interval - req.Flex,
		cons:     req.Constraints,
	}, policy)
}

// EnqueueUniqueOneTime schedules a one-time job; returns false when Keep
// left an existing unfinished job in place
func (s *Scheduler) EnqueueUniqueOneTime(name string, policy Policy, req OneTimeRequest, w Worker) (bool, error) {
	return s.enqueue(&job{
		name:   name,
		worker: w,
		delay:  req.Delay,
		cons:   req.Constraints,
	}, policy)
}

func (s *Scheduler) enqueue(j *job, policy Policy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false, ErrStopped
	}

	if existing, ok := s.jobs[j.name]; ok {
		if policy == Keep && !existing.snapshot().State.finished() {
			s.logger.Debug("Keeping existing job", zap.String("job", j.name))
			return false, nil
		}
		existing.cancel()
		s.logger.Info("Replacing job", zap.String("job", j.name))
	}

	j.ctx, j.cancel = context.WithCancel(context.Background())
	j.done = make(chan struct{})
	j.info = Info{
		Name:     j.name,
		Periodic: j.periodic,
		State:    StateEnqueued,
		NextRun:  time.Now().Add(j.delay),
	}
	s.jobs[j.name] = j

	s.wg.Add(1)
	go s.run(j)

	s.logger.Info("Job enqueued",
		zap.String("job", j.name),
		zap.Bool("periodic", j.periodic),
		zap.Duration("delay", j.delay),
	)
	return true, nil
}

// Cancel stops the named job; an in-flight run sees its context cancelled
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	j.cancel()
	return true
}

// Info reports the state of the named job
func (s *Scheduler) Info(name string) (Info, bool) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	return j.snapshot(), true
}

// Wait blocks until the named job finishes (one-time jobs) or ctx is done
func (s *Scheduler) Wait(ctx context.Context, name string) (Info, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return Info{}, fmt.Errorf("unknown job: %s", name)
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// Stop cancels every job and waits for their goroutines
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, j := range s.jobs {
		j.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(j *job) {
	defer s.wg.Done()
	defer close(j.done)

	logger := s.logger.With(zap.String("job", j.name))
	delay := j.delay
	var backoff time.Duration

	for {
		j.update(func(i *Info) {
			i.State = StateEnqueued
			i.NextRun = time.Now().Add(delay)
			i.Backoff = backoff
		})
		if !sleep(j.ctx, delay) {
			j.update(func(i *Info) { i.State = StateCancelled })
			return
		}

		// 1. constraints
		if j.cons.RequiresNetwork && (s.network == nil || !s.network.Available(j.ctx)) {
			logger.Debug("Network unavailable, deferring run")
			delay = s.opts.ConstraintRecheck
			continue
		}

		// 2. run
		j.update(func(i *Info) { i.State = StateRunning })
		result := s.execute(j, logger)
		j.update(func(i *Info) {
			i.RunCount++
			r := result
			i.LastResult = &r
		})

		if j.ctx.Err() != nil {
			j.update(func(i *Info) { i.State = StateCancelled })
			return
		}

		// 3. reschedule
		switch result {
		case Success:
			backoff = 0
			if !j.periodic {
				j.update(func(i *Info) {
					i.State = StateSucceeded
					i.Backoff = 0
				})
				return
			}
			delay = j.interval
		case Retry:
			backoff = s.nextBackoff(backoff)
			delay = backoff
			logger.Info("Job asked to retry", zap.Duration("backoff", backoff))
		default:
			backoff = 0
			if !j.periodic {
				j.update(func(i *Info) { i.State = StateFailed })
				logger.Warn("Job failed")
				return
			}
			delay = j.interval
		}
	}
}

func (s *Scheduler) execute(j *job, logger *zap.Logger) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker panicked", zap.Any("panic", r))
			result = Failure
		}
	}()

	start := time.Now()
	result = j.worker.DoWork(j.ctx)
	logger.Info("Job run finished",
		zap.String("result", result.String()),
		zap.Duration("took", time.Since(start)),
	)
	return result
}

// nextBackoff doubles from InitialBackoff up to MaxBackoff
func (s *Scheduler) nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return s.opts.InitialBackoff
	}
	next := current * 2
	if next > s.opts.MaxBackoff || next <= 0 {
		return s.opts.MaxBackoff
	}
	return next
}

func (j *job) update(fn func(i *Info)) {
	j.mu.Lock()
	fn(&j.info)
	j.mu.Unlock()
}

func (j *job) snapshot() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := j.info
	if info.LastResult != nil {
		r := *info.LastResult
		info.LastResult = &r
	}
	return info
}

// sleep waits d or until ctx is done; false means cancelled
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
