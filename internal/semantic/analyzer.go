package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/observability"
)

// Query outcomes passed to an Observer.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeCached      = "cached"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeSkipped     = "skipped"
)

// Observer receives one call per location the analyzer considers.
type Observer interface {
	ObserveQuery(outcome string, elapsed time.Duration)
}

// Options configures an Analyzer.
type Options struct {
	MaxInFlight int64
	Timeout     time.Duration
	Limiter     *rate.Limiter
	Logger      *slog.Logger
	Observer    Observer
}

// Option is a functional option for Analyzer.
type Option func(*Options)

// WithMaxInFlight bounds concurrent provider calls across every file the
// analyzer handles.
func WithMaxInFlight(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxInFlight = n
		}
	}
}

// WithTimeout sets the deadline for a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithRateLimit caps provider calls per second. A non-positive limit
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) {
		if perSecond <= 0 {
			o.Limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithObserver sets the query observer.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

// DefaultOptions returns the defaults used by NewAnalyzer.
func DefaultOptions() Options {
	return Options{
		MaxInFlight: 8,
		Timeout:     5 * time.Second,
		Logger:      slog.Default(),
	}
}

// Analyzer queries an Inferrer for the locations of an IR document and
// returns the answers as a Snapshot. A single Analyzer may serve many files
// concurrently; the in-flight bound is shared between them.
type Analyzer struct {
	inferrer Inferrer
	options  Options
	sem      *semaphore.Weighted
}

// NewAnalyzer creates an Analyzer. A nil inferrer yields empty snapshots.
func NewAnalyzer(inferrer Inferrer, opts ...Option) *Analyzer {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Analyzer{
		inferrer: inferrer,
		options:  options,
		sem:      semaphore.NewWeighted(options.MaxInFlight),
	}
}

type op uint8

const (
	opHover op = iota
	opDefinition
)

func (o op) String() string {
	if o == opDefinition {
		return "definition"
	}
	return "hover"
}

// queryFor picks the single question asked for a node. Definitions and
// reads want a type, call sites want their target.
func queryFor(n *ir.Node) (op, bool) {
	if n.Degraded {
		return 0, false
	}
	switch n.Kind {
	case ir.KindClass, ir.KindFunction, ir.KindVariable, ir.KindParameter:
		return opHover, true
	case ir.KindCallSite:
		return opDefinition, true
	case ir.KindReference:
		if n.Attr(ir.AttrRef) == "read" {
			return opHover, true
		}
	}
	return 0, false
}

type result struct {
	fact Fact
	err  error
}

// fileRun is the state of one Analyze call. The memo guarantees at most one
// provider call per location.
type fileRun struct {
	a           *Analyzer
	file        string
	group       singleflight.Group
	mu          sync.Mutex
	memo        map[Key]result
	unavailable atomic.Bool

	failed   atomic.Int64
	timedOut atomic.Int64
	skipped  atomic.Int64
}

// Analyze enriches doc. Provider failures never fail the call: affected
// locations stay unenriched and one collaborator-unavailable diagnostic
// summarizes them.
func (a *Analyzer) Analyze(ctx context.Context, doc *ir.Document) (*Snapshot, diag.List) {
	snap := &Snapshot{File: doc.File, SnapshotID: doc.SnapshotID, facts: make(map[Key]Fact)}
	if a == nil || a.inferrer == nil {
		return snap, nil
	}

	run := &fileRun{a: a, file: doc.File, memo: make(map[Key]result)}

	var g errgroup.Group
	g.SetLimit(int(a.options.MaxInFlight))
	// The first node at a location decides the question asked there.
	planned := make(map[Key]bool)
	queried := 0
	for _, n := range doc.Nodes {
		o, ok := queryFor(n)
		if !ok {
			continue
		}
		queried++
		key := Key{File: doc.File, Span: n.Span}
		if planned[key] {
			run.observe(OutcomeCached, 0)
			continue
		}
		planned[key] = true
		g.Go(func() error {
			run.fetch(ctx, key, o)
			return nil
		})
	}
	_ = g.Wait()

	for k, r := range run.memo {
		if r.err == nil && !r.fact.empty() {
			snap.facts[k] = r.fact
		}
	}

	var diags diag.List
	missing := run.failed.Load() + run.skipped.Load()
	if missing > 0 {
		msg := fmt.Sprintf("type inference failed for %d of %d locations", missing, queried)
		if t := run.timedOut.Load(); t > 0 {
			msg += fmt.Sprintf(" (%d timed out)", t)
		}
		if run.unavailable.Load() {
			msg += "; provider unavailable"
		}
		diags.Add(diag.Diagnostic{
			Kind:    diag.KindCollaboratorUnavailable,
			File:    doc.File,
			Message: msg,
		})
		a.options.Logger.Warn("semantic analysis incomplete",
			"file", doc.File,
			"missing", missing,
			"queried", queried,
		)
	}
	return snap, diags
}

func (r *fileRun) fetch(ctx context.Context, key Key, o op) {
	r.mu.Lock()
	if _, ok := r.memo[key]; ok {
		r.mu.Unlock()
		r.observe(OutcomeCached, 0)
		return
	}
	r.mu.Unlock()

	_, _, shared := r.group.Do(key.Span.String(), func() (any, error) {
		r.mu.Lock()
		_, done := r.memo[key]
		r.mu.Unlock()
		if done {
			return nil, nil
		}
		res := r.call(ctx, key, o)
		r.mu.Lock()
		r.memo[key] = res
		r.mu.Unlock()
		return nil, nil
	})
	if shared {
		r.observe(OutcomeCached, 0)
	}
}

func (r *fileRun) call(ctx context.Context, key Key, o op) result {
	if r.unavailable.Load() || ctx.Err() != nil {
		r.skipped.Add(1)
		r.observe(OutcomeSkipped, 0)
		return result{err: ErrUnavailable}
	}

	a := r.a
	if a.options.Limiter != nil {
		if err := a.options.Limiter.Wait(ctx); err != nil {
			r.skipped.Add(1)
			r.observe(OutcomeSkipped, 0)
			return result{err: err}
		}
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		r.skipped.Add(1)
		r.observe(OutcomeSkipped, 0)
		return result{err: err}
	}
	defer a.sem.Release(1)

	callCtx := ctx
	if a.options.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.options.Timeout)
		defer cancel()
	}

	callCtx, span := observability.StartInferenceSpan(callCtx, o.String(), key.File)
	defer span.End()

	start := time.Now()
	var fact Fact
	var err error
	switch o {
	case opHover:
		var h *Hover
		h, err = a.inferrer.Hover(callCtx, key.File, key.Span)
		if err == nil && h != nil {
			fact.InferredType = h.Type
		}
	case opDefinition:
		var locs []ir.Location
		locs, err = a.inferrer.Definition(callCtx, key.File, key.Span)
		if err == nil && len(locs) > 0 {
			loc := locs[0]
			fact.Definition = &loc
		}
	}
	elapsed := time.Since(start)
	observability.RecordError(span, err)

	switch {
	case err == nil && fact.empty():
		r.observe(OutcomeEmpty, elapsed)
	case err == nil:
		r.observe(OutcomeOK, elapsed)
	case errors.Is(err, ErrUnavailable):
		r.unavailable.Store(true)
		r.failed.Add(1)
		r.observe(OutcomeUnavailable, elapsed)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		r.failed.Add(1)
		r.timedOut.Add(1)
		r.observe(OutcomeTimeout, elapsed)
	default:
		r.failed.Add(1)
		r.observe(OutcomeError, elapsed)
		a.options.Logger.Debug("inference query failed",
			"file", key.File,
			"span", key.Span.String(),
			"error", err,
		)
	}
	return result{fact: fact, err: err}
}

func (r *fileRun) observe(outcome string, elapsed time.Duration) {
	if r.a.options.Observer != nil {
		r.a.options.Observer.ObserveQuery(outcome, elapsed)
	}
}
