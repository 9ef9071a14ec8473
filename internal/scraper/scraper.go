// Package scraper runs a pool of workers that fetch the uris of a bounded frontier.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/nhatthm/webscraper/internal/fetcher"
	"github.com/nhatthm/webscraper/internal/frontier"
	"github.com/nhatthm/webscraper/internal/metrics"
	"github.com/nhatthm/webscraper/internal/visited"
)

const (
	// defaultPollInterval is how long a worker waits for a uri before checking whether it should exit.
	defaultPollInterval = time.Second
)

// Scraper fetches the uris of its frontier with a fixed number of workers.
//
// The lifecycle is Start, optionally Stop, then Close. Uris can be enqueued before and during the run. After Stop, the
// workers drain the frontier and exit. Close waits for them until its context is done, then cancels the in-flight fetches.
type Scraper struct {
	frontier *frontier.Frontier
	visited  *visited.Set
	fetcher  fetcher.Fetcher
	log      ctxd.Logger
	metrics  *metrics.Recorder
	onReport ReportHandler
	runID    string

	// parallelism is the number of workers, at least 1.
	parallelism int
	// pollInterval is how long a worker waits for a uri before checking whether it should exit.
	pollInterval time.Duration
	// dedupe enables the visited gate before fetching.
	dedupe bool

	// Settings of the default fetcher.
	capacity       int
	connectTimeout time.Duration
	userAgent      string

	// lifecycleMu guards Start and Close.
	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	done        chan struct{}

	// stopMu makes Stop wait for in-progress enqueues, so a worker that sees the stop signal also sees every uri
	// accepted before it.
	stopMu   sync.RWMutex
	stopping chan struct{}
	stopOnce sync.Once

	state   *atomic.Int32
	workers *atomic.Int32
}

// Enqueue appends the uris to the frontier.
//
// The batch is enqueued entirely or not at all. If it does not fit, an error wrapping ErrCapacityExceeded is returned.
// After Stop, it returns ErrStopped.
func (s *Scraper) Enqueue(uris ...string) error {
	s.stopMu.RLock()
	defer s.stopMu.RUnlock()

	// All the workers may have exited on their own, then nothing would process the uris.
	if s.isStopping() || s.State() == StateStopped {
		return ErrStopped
	}

	if err := s.frontier.EnqueueBatch(uris); err != nil {
		if errors.Is(err, frontier.ErrCapacityExceeded) {
			s.metrics.EnqueueRejected()
		}

		if errors.Is(err, frontier.ErrClosed) {
			return ErrClosed
		}

		return err
	}

	s.metrics.SetFrontierDepth(s.frontier.Len())

	return nil
}

// Start spawns the workers. The context bounds the whole run: when it is canceled, the workers abort and exit.
//
// Start can be called only once. Further calls return ErrAlreadyStarted, or ErrClosed after Close.
func (s *Scraper) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.State() == StateClosed {
		return ErrClosed
	}

	if s.started {
		return ErrAlreadyStarted
	}

	ctx = ctxd.AddFields(ctx, "scraper.run_id", s.runID)
	ctx, s.cancel = context.WithCancel(ctx)

	s.started = true

	s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))

	if s.isStopping() {
		s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	}

	s.wg.Add(s.parallelism)

	for i := 0; i < s.parallelism; i++ {
		s.workers.Inc()
		s.metrics.WorkerStarted()

		go s.work(ctxd.AddFields(ctx, "scraper.worker_id", i), i)
	}

	// Wait for all workers to finish.
	go func() {
		s.wg.Wait()

		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopped))
		s.state.CompareAndSwap(int32(StateDraining), int32(StateStopped))

		close(s.done)

		s.log.Debug(ctx, "stopped all scraper workers")
	}()

	s.log.Debug(ctx, "started scraper", "scraper.parallelism", s.parallelism)

	return nil
}

// Stop signals the workers to drain the frontier and exit. It does not wait for them.
func (s *Scraper) Stop() {
	s.stopOnce.Do(func() {
		s.stopMu.Lock()
		defer s.stopMu.Unlock()

		close(s.stopping)

		s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))

		s.log.Debug(context.Background(), "stopping scraper", "scraper.run_id", s.runID, "scraper.pending", s.frontier.Len())
	})
}

// Close stops the scraper, waits for the workers and releases the fetcher.
//
// If the context is done before all the workers exit, the in-flight fetches are canceled and an error wrapping
// ErrForcedShutdown is returned once the workers are gone. The uris left in the frontier are discarded. Calling Close
// again is a no-op.
func (s *Scraper) Close(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.State() == StateClosed {
		return nil
	}

	s.Stop()

	var err error

	if s.started && !s.finished() {
		select {
		case <-s.done:

		case <-ctx.Done():
			s.log.Warn(ctx, "shutdown deadline reached, canceling in-flight fetches",
				"scraper.run_id", s.runID,
				"scraper.live_workers", s.workers.Load(),
				"scraper.pending", s.frontier.Len(),
			)

			s.cancel()
			<-s.done

			err = fmt.Errorf("%w: %w", ErrForcedShutdown, ctx.Err())
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	if !s.started {
		close(s.done)
	}

	if discarded := s.frontier.Close(); discarded > 0 {
		s.log.Warn(ctx, "discarded pending uris", "scraper.run_id", s.runID, "scraper.discarded", discarded)
	}

	s.metrics.SetFrontierDepth(0)

	if c, ok := s.fetcher.(interface{ Close() }); ok {
		c.Close()
	}

	s.state.Store(int32(StateClosed))

	s.log.Debug(ctx, "closed scraper", "scraper.run_id", s.runID)

	return err
}

// Wait blocks until all the workers exited. It returns immediately if the scraper is not started.
func (s *Scraper) Wait() {
	s.lifecycleMu.Lock()
	started := s.started
	s.lifecycleMu.Unlock()

	if started {
		<-s.done
	}
}

// Done returns a channel that is closed when all the workers exited, or when the scraper is closed without being
// started.
func (s *Scraper) Done() <-chan struct{} {
	return s.done
}

// Workers returns the number of live workers.
func (s *Scraper) Workers() int {
	return int(s.workers.Load())
}

// Parallelism returns the number of workers spawned by Start.
func (s *Scraper) Parallelism() int {
	return s.parallelism
}

// Pending returns the number of uris waiting in the frontier.
func (s *Scraper) Pending() int {
	return s.frontier.Len()
}

// State returns the lifecycle state.
func (s *Scraper) State() State {
	return State(s.state.Load())
}

// Closed reports whether the scraper is closed.
func (s *Scraper) Closed() bool {
	return s.State() == StateClosed
}

// RunID returns the identifier of the scraper, used in the log messages.
func (s *Scraper) RunID() string {
	return s.runID
}

func (s *Scraper) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Scraper) isStopping() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

// New creates a new Scraper with max(parallelism, 1) workers.
//
//	s := scraper.New(4, scraper.WithLogger(log))
//
//	_ = s.Enqueue("https://example.org", "https://example.com")
//	_ = s.Start(ctx)
//
//	s.Stop()
//	s.Wait()
//
//	_ = s.Close(ctx)
func New(parallelism int, opts ...Option) *Scraper {
	// Always run at least one worker.
	if parallelism < 1 {
		parallelism = 1
	}

	s := &Scraper{
		log:   ctxd.NoOpLogger{},
		runID: uuid.NewString(),

		parallelism:  parallelism,
		pollInterval: defaultPollInterval,
		dedupe:       true,

		capacity:       frontier.DefaultCapacity,
		connectTimeout: fetcher.DefaultConnectTimeout,

		done:     make(chan struct{}),
		stopping: make(chan struct{}),
		state:    atomic.NewInt32(int32(StateIdle)),
		workers:  atomic.NewInt32(0),
	}

	for _, opt := range opts {
		opt.applyScraperOption(s)
	}

	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}

	s.frontier = frontier.New(s.capacity)
	s.visited = visited.New()

	if s.fetcher == nil {
		s.fetcher = fetcher.New(
			fetcher.WithConnectTimeout(s.connectTimeout),
			fetcher.WithUserAgent(s.userAgent),
			fetcher.WithLogger(s.log),
		)
	}

	return s
}
