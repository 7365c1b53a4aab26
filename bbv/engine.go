// Package bbv implements a translation-block profiling engine that emits
// Basic Block Vectors: per-interval sparse fingerprints of which code
// regions executed how much, in the line format consumed by SimPoint.
//
// The host instrumentation runtime registers each block it discovers and
// bumps the returned inline counters on every execution; the engine slices
// the execution into intervals and writes one ranked record per interval.
package bbv

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/bbvtrace/sink"
)

// Engine is the profiling engine. One instance covers one profiled process;
// all shared state lives behind a single mutex, with only the inline
// execution counters updated outside it.
type Engine struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics

	mu  sync.Mutex
	reg *registry

	instAccum Counter
	ckptHits  Counter

	firstInterval bool
	started       bool
	closed        bool
	intervals     uint64
	writeErr      error

	out     sink.Sink
	buf     bytes.Buffer
	scratch []intervalEntry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSink injects the output sink directly, overriding the configured
// output path. The engine takes ownership and closes it at shutdown.
func WithSink(s sink.Sink) Option {
	return func(e *Engine) {
		e.out = s
	}
}

// WithRegisterer enables self-metrics on the given Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = newMetrics(reg)
	}
}

// New validates the configuration and creates an engine. No resources are
// acquired until Start.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		cfg:           cfg,
		logger:        log.NewNopLogger(),
		reg:           newRegistry(),
		firstInterval: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// NewStarted creates and starts an engine in one step.
func NewStarted(cfg Config, opts ...Option) (*Engine, error) {
	e, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

// Start opens the output sink. A failure here is fatal for the caller: the
// engine cannot run without its sink and no instrumentation should be
// installed.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	if e.out == nil {
		s, err := sink.NewGzipSink(e.cfg.outputFilePath())
		if err != nil {
			return fmt.Errorf("failed to open BBV output: %w", err)
		}
		e.out = s
	}
	e.started = true

	level.Info(e.logger).Log(
		"msg", "bbv engine started",
		"policy", e.cfg.Policy,
		"interval_size", e.cfg.IntervalSize,
	)
	return nil
}

// RegisterBlock records the discovery of a translation block and returns
// its handle together with the inline counters the host must bump on every
// execution of the block. Registration is idempotent per (addr, instCount)
// identity: a re-translation returns the same handle and attachments.
//
// Under the checkpoint policy, blocks inside the checkpoint region receive
// HandleCheckpoint and a single boundary-marker attachment; blocks at or
// above the memory threshold outside that region receive HandleIgnored and
// no attachments.
func (e *Engine) RegisterBlock(addr, instCount uint64) (BlockHandle, []Attachment) {
	switch e.cfg.classify(addr) {
	case classCheckpoint:
		return HandleCheckpoint, []Attachment{{Counter: &e.ckptHits, Delta: 1}}
	case classIgnored:
		return HandleIgnored, nil
	}

	e.mu.Lock()
	h, rec, created := e.reg.register(addr, instCount)
	e.mu.Unlock()

	if e.metrics != nil {
		if created {
			e.metrics.blocksDiscovered.Inc()
		} else {
			e.metrics.retranslations.Inc()
		}
	}

	atts := []Attachment{{Counter: &rec.exec, Delta: 1}}
	if e.cfg.Policy == PolicyFixedWindow {
		atts = append(atts, Attachment{Counter: &e.instAccum, Delta: instCount})
	}
	return h, atts
}

// BlockExecuted runs the per-execution boundary check. The host calls it
// after bumping the block's inline counters. The fast path is a single
// atomic load; the lock is taken only when a boundary has been crossed.
func (e *Engine) BlockExecuted(BlockHandle) {
	switch e.cfg.Policy {
	case PolicyFixedWindow:
		if e.instAccum.Load() < e.cfg.IntervalSize {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		// A concurrent trigger may have fired first; it left the
		// accumulator reset, so re-check under the lock.
		if e.instAccum.Load() < e.cfg.IntervalSize || !e.started || e.closed {
			return
		}
		e.emitIntervalLocked()
		e.instAccum.swap(0)

	case PolicyCheckpoint:
		if e.ckptHits.Load() == 0 {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.ckptHits.Load() == 0 || !e.started || e.closed {
			return
		}
		if e.firstInterval {
			// The segment before the first checkpoint hit is an unbounded
			// warm-up slice; drop it rather than report it.
			e.discardIntervalLocked()
			e.firstInterval = false
		} else {
			e.emitIntervalLocked()
		}
		e.ckptHits.swap(0)
	}
}

// NumBlocks returns the number of distinct tracked blocks discovered so far.
func (e *Engine) NumBlocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.size()
}

// Intervals returns the number of records emitted so far.
func (e *Engine) Intervals() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.intervals
}

// Shutdown performs the final flush and closes the sink. The flush is
// unconditional: whatever counts remain nonzero are emitted as one last
// record, even under the checkpoint policy when no boundary was ever
// crossed. Shutdown is idempotent; later calls are no-ops.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if !e.started || e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.emitIntervalLocked()
	intervals := e.intervals
	writeErr := e.writeErr
	e.mu.Unlock()

	level.Info(e.logger).Log(
		"msg", "bbv engine shut down",
		"intervals", intervals,
		"blocks", e.NumBlocks(),
	)

	if err := e.out.Close(); err != nil {
		return fmt.Errorf("failed to close BBV output: %w", err)
	}
	return writeErr
}
