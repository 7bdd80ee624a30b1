// Package tweak compiles a request template into a Plan that produces one concrete
// request per candidate value.
//
// Exactly one part of the template is mutable. For the URL, the header block and the
// data payload, the first "*" in that part is the substitution point. For the method,
// every value replaces the whole method and must be a known method.
package tweak

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/funnyzak/retweak/pkg/headers"
	"github.com/funnyzak/retweak/pkg/request"
)

// Marker is the substitution point inside a template part.
const Marker = "*"

// Options describes a request template and the values to apply to it.
type Options struct {
	URL     string
	Method  string
	Target  string // empty selects DefaultTarget
	Headers string // raw header block
	// HeaderDelimiter separates entries of Headers; defaults to ",".
	HeaderDelimiter string
	Data            string
	Values          []string
}

// Strategy records where values are spliced in.
// Offset is the byte index of the marker and is unused for TargetMethod.
type Strategy struct {
	Target Target
	Offset int
}

// Splice replaces the marker at the strategy offset in template with value.
func (s Strategy) Splice(template, value string) string {
	return template[:s.Offset] + value + template[s.Offset+len(Marker):]
}

// Plan is a compiled template. Apply is safe to call concurrently.
type Plan struct {
	Strategy Strategy
	URL      *url.URL
	Method   string
	Headers  map[string]string
	Data     string
	// Values are the candidate values, upper-cased for TargetMethod.
	Values []string

	template        string
	headerDelimiter string
}

// Compile validates opts and builds a Plan. All errors are raised here, before any
// request can be produced.
func Compile(opts Options) (*Plan, error) {
	u, err := parseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	var method string
	if strings.TrimSpace(opts.Method) != "" {
		method = NormalizeMethod(opts.Method)
		if !IsKnownMethod(method) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
		}
	}

	var target Target
	if strings.TrimSpace(opts.Target) != "" {
		if target, err = ParseTarget(opts.Target); err != nil {
			return nil, err
		}
	}

	delimiter := opts.HeaderDelimiter
	if delimiter == "" {
		delimiter = ","
	}
	rawHeaders := opts.Headers
	hasHeaders := strings.TrimSpace(rawHeaders) != ""
	data := strings.TrimSpace(opts.Data)

	if method == "" {
		method = "GET"
		if data != "" {
			method = "POST"
		}
	}
	if target == "" {
		target = DefaultTarget(method, hasHeaders, data != "")
	}

	plan := &Plan{
		Strategy:        Strategy{Target: target},
		URL:             u,
		Method:          method,
		Data:            data,
		Values:          opts.Values,
		headerDelimiter: delimiter,
	}
	if hasHeaders {
		plan.Headers = headers.Parse(rawHeaders, delimiter)
	}

	switch target {
	case TargetURL:
		// The raw input keeps the marker that u.String() may escape.
		plan.template = strings.TrimSpace(opts.URL)
	case TargetHeader:
		if !hasHeaders {
			return nil, ErrNoHeaders
		}
		plan.template = rawHeaders
	case TargetData:
		if data == "" {
			return nil, ErrNoData
		}
		plan.template = data
	case TargetMethod:
		normalized := make([]string, len(opts.Values))
		for i, value := range opts.Values {
			normalized[i] = NormalizeMethod(value)
			if !IsKnownMethod(normalized[i]) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownMethodInList, normalized[i])
			}
		}
		plan.Values = normalized
		return plan, nil
	}

	idx := strings.Index(plan.template, Marker)
	if idx == -1 {
		return nil, fmt.Errorf("%w: specify %s where you would like to tweak the %s", ErrMissingMarker, Marker, target.label())
	}
	plan.Strategy.Offset = idx

	return plan, nil
}

// Apply builds the concrete request for value. It fails only when a spliced URL no
// longer parses.
func (p *Plan) Apply(value string) (*request.Request, error) {
	u := *p.URL
	req := &request.Request{
		URL:     &u,
		Method:  p.Method,
		Headers: headers.Clone(p.Headers),
		Data:    p.Data,
	}

	switch p.Strategy.Target {
	case TargetURL:
		u, err := parseURL(p.Strategy.Splice(p.template, value))
		if err != nil {
			return nil, err
		}
		req.URL = u
	case TargetMethod:
		req.Method = NormalizeMethod(value)
	case TargetHeader:
		req.Headers = headers.Parse(p.Strategy.Splice(p.template, value), p.headerDelimiter)
	case TargetData:
		req.Data = p.Strategy.Splice(p.template, value)
	}

	return req, nil
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return u, nil
}
