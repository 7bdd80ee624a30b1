package report

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/funnyzak/retweak/internal/dispatch"
)

// Options reporter options
type Options struct {
	// IgnoreHeaders are excluded from dedup tracking and reporting. Matching is case-insensitive.
	IgnoreHeaders []string
	// MaxData is the exclusive upper bound, in bytes, for bodies that are previewed.
	MaxData int
	// Quiet suppresses error lines.
	Quiet bool
}

// Reporter emits only the facts a response adds to what the run has already seen.
// It implements dispatch.Handler and relies on the engine serializing calls.
type Reporter struct {
	sink    Sink
	state   *DedupState
	ignore  map[string]struct{}
	maxData int
	quiet   bool
}

// NewReporter creates a reporter with a fresh dedup state
func NewReporter(sink Sink, opts Options) *Reporter {
	ignore := make(map[string]struct{}, len(opts.IgnoreHeaders))
	for _, name := range opts.IgnoreHeaders {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			ignore[name] = struct{}{}
		}
	}
	maxData := opts.MaxData
	if maxData < 1 {
		maxData = 1
	}
	return &Reporter{
		sink:    sink,
		state:   NewDedupState(),
		ignore:  ignore,
		maxData: maxData,
		quiet:   opts.Quiet,
	}
}

// State exposes the dedup state
func (r *Reporter) State() *DedupState {
	return r.state
}

// Handle implements dispatch.Handler
func (r *Reporter) Handle(o *dispatch.Outcome) {
	if o.Err != nil {
		if !r.quiet {
			r.sink.Error("[!] ERROR: " + o.Err.Error())
		}
		return
	}

	lines := r.newFacts(o)
	if len(lines) == 0 {
		return
	}
	entry := append([]string{requestLine(o.Value)}, lines...)
	r.sink.Log(strings.Join(entry, "\n"))
}

func (r *Reporter) newFacts(o *dispatch.Outcome) []string {
	resp := o.Response
	var lines []string

	if r.state.ObserveStatus(resp.StatusCode) {
		lines = append(lines, fmt.Sprintf("  CODE   - %d", resp.StatusCode))
	}

	for _, name := range resp.HeaderNames() {
		if _, ignored := r.ignore[name]; ignored {
			continue
		}
		value := resp.Header(name)
		if r.state.ObserveHeader(name, value) {
			lines = append(lines, fmt.Sprintf("  HEADER > \"%s: %s\"", name, value))
		}
	}

	if o.Request != nil && o.Request.Method == http.MethodHead {
		return lines
	}
	if body := resp.Body; body != "" && len(body) < r.maxData && r.state.ObserveBody(body) {
		lines = append(lines, fmt.Sprintf("  DATA   ~ %s (SIZE:%s)", Preview(body), FormatSize(len(body))))
	}

	return lines
}
