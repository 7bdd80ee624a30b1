package tweak

import (
	"fmt"
	"strings"
)

// Target is the part of the request that receives the values.
type Target string

const (
	TargetURL    Target = "url"
	TargetMethod Target = "method"
	TargetHeader Target = "header"
	TargetData   Target = "data"
)

// Targets lists every valid target.
var Targets = []Target{TargetURL, TargetMethod, TargetHeader, TargetData}

// ParseTarget resolves a target name case-insensitively.
func ParseTarget(name string) (Target, error) {
	t := Target(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Targets {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w, got %q", ErrInvalidTarget, name)
}

// DefaultTarget picks the target when none is configured:
// data for POST/PUT/PATCH with a payload, else the header block if any, else the URL.
func DefaultTarget(method string, hasHeaders, hasData bool) Target {
	switch {
	case hasData && isBodyMethod(method):
		return TargetData
	case hasHeaders:
		return TargetHeader
	default:
		return TargetURL
	}
}

func (t Target) label() string {
	if t == TargetURL {
		return "URL"
	}
	return string(t)
}
