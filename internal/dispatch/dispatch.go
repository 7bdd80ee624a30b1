package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/pkg/request"
)

// Scheduling modes
const (
	ModeSequential = "sequential"
	ModeConcurrent = "concurrent"
)

// Executor sends one concrete request
type Executor interface {
	Execute(ctx context.Context, req *request.Request) (*request.Response, error)
}

// Substituter builds the concrete request for a candidate value
type Substituter interface {
	Apply(value string) (*request.Request, error)
}

// SubstituterFunc adapts a function to Substituter
type SubstituterFunc func(value string) (*request.Request, error)

// Apply implements Substituter
func (f SubstituterFunc) Apply(value string) (*request.Request, error) {
	return f(value)
}

// Outcome is the result of dispatching one value. Exactly one of Response and Err is set.
type Outcome struct {
	Index    int
	Value    string
	Request  *request.Request
	Response *request.Response
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Failed reports whether the request did not produce a response
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

// Record converts the outcome into a persistable record
func (o *Outcome) Record(runID string) *request.Record {
	rec := &request.Record{
		RunID:     runID,
		Index:     o.Index,
		Value:     o.Value,
		Timestamp: o.Started,
		Duration:  o.Duration,
		Response:  o.Response,
	}
	if o.Request != nil {
		rec.Method = o.Request.Method
		rec.URL = o.Request.Target()
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}

// Handler consumes outcomes. The engine never calls handlers concurrently.
type Handler interface {
	Handle(o *Outcome)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(o *Outcome)

// Handle implements Handler
func (f HandlerFunc) Handle(o *Outcome) {
	f(o)
}

// Options engine options
type Options struct {
	Mode string
	// MaxConcurrent caps in-flight requests in concurrent mode; 0 means unbounded.
	MaxConcurrent int
}

// Summary aggregates the outcomes of one run
type Summary struct {
	Sent      int
	Succeeded int
	Failed    int
	Bytes     int64
	Duration  time.Duration
}

// Engine runs a value list through a substituter and an executor
type Engine struct {
	executor Executor
	handlers []Handler
	logger   logger.Logger
	opts     Options

	mu      sync.Mutex
	summary Summary
}

// New creates an engine. Handlers receive every outcome in registration order.
func New(executor Executor, log logger.Logger, opts Options, handlers ...Handler) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	opts.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	if opts.Mode == "" {
		opts.Mode = ModeSequential
	}
	return &Engine{
		executor: executor,
		handlers: handlers,
		logger:   log,
		opts:     opts,
	}
}

// Run dispatches one request per value, in list order, with indices starting at 1.
// Per-request failures are delivered to the handlers and never abort the run. The
// returned error is non-nil only when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, values []string, sub Substituter) (Summary, error) {
	e.mu.Lock()
	e.summary = Summary{}
	e.mu.Unlock()

	start := time.Now()
	var err error
	if e.opts.Mode == ModeConcurrent {
		err = e.runConcurrent(ctx, values, sub)
	} else {
		err = e.runSequential(ctx, values, sub)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary.Duration = time.Since(start)
	return e.summary, err
}

func (e *Engine) runSequential(ctx context.Context, values []string, sub Substituter) error {
	for i, value := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.dispatch(ctx, i+1, value, sub)
	}
	return nil
}

func (e *Engine) runConcurrent(ctx context.Context, values []string, sub Substituter) error {
	// A plain group: one failing request must not cancel its siblings.
	var group errgroup.Group
	if e.opts.MaxConcurrent > 0 {
		group.SetLimit(e.opts.MaxConcurrent)
	}

	for i, value := range values {
		if err := ctx.Err(); err != nil {
			break
		}
		index, value := i+1, value
		group.Go(func() error {
			e.dispatch(ctx, index, value, sub)
			return nil
		})
	}

	_ = group.Wait()
	return ctx.Err()
}

func (e *Engine) dispatch(ctx context.Context, index int, value string, sub Substituter) {
	outcome := &Outcome{Index: index, Value: value, Started: time.Now()}

	req, err := sub.Apply(value)
	if err != nil {
		outcome.Err = err
	} else {
		outcome.Request = req
		e.logger.Debug("Sending request", "index", index, "method", req.Method, "url", req.Target())
		outcome.Response, outcome.Err = e.executor.Execute(ctx, req)
		if outcome.Err == nil && outcome.Response == nil {
			outcome.Err = errEmptyResponse
		}
	}
	outcome.Duration = time.Since(outcome.Started)

	if outcome.Err != nil {
		e.logger.Debug("Request failed", "index", index, "value", value, "error", outcome.Err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.summary.Sent++
	if outcome.Err != nil {
		e.summary.Failed++
	} else {
		e.summary.Succeeded++
		e.summary.Bytes += int64(outcome.Response.Size())
	}

	for _, h := range e.handlers {
		h.Handle(outcome)
	}
}
