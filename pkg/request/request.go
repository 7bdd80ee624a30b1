package request

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Request is a fully resolved request, ready for the transport.
type Request struct {
	URL     *url.URL          `json:"-"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Data    string            `json:"data,omitempty"`
}

// Target returns the request URL as a string.
func (r *Request) Target() string {
	if r == nil || r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Response represents a received HTTP response.
// Header names are always lower-case.
type Response struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
	IsBinary   bool                `json:"is_binary"`
}

// NewResponse builds a response from raw transport data, folding header names to lower case.
func NewResponse(statusCode int, headers map[string][]string, body []byte, contentType string) *Response {
	folded := make(map[string][]string, len(headers))
	for name, values := range headers {
		key := strings.ToLower(name)
		folded[key] = append(folded[key], values...)
	}
	return &Response{
		StatusCode: statusCode,
		Headers:    folded,
		Body:       string(body),
		IsBinary:   isBinaryContent(contentType, body),
	}
}

// Header returns all values of a header joined by ", ".
func (r *Response) Header(name string) string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Headers[strings.ToLower(name)], ", ")
}

// HeaderNames returns the sorted header names of the response.
func (r *Response) HeaderNames() []string {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the body size in bytes.
func (r *Response) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Body)
}

// Record is one executed request as written to an output sink.
// Exactly one of Response and Error is set.
type Record struct {
	RunID     string        `json:"run_id"`
	Index     int           `json:"index"`
	Value     string        `json:"value"`
	Method    string        `json:"method"`
	URL       string        `json:"url"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Response  *Response     `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// isBinaryContent detects if it's binary content
func isBinaryContent(contentType string, body []byte) bool {
	binaryTypes := []string{
		"image/", "video/", "audio/", "font/",
		"application/octet-stream",
		"application/zip", "application/gzip",
		"application/pdf", "application/wasm",
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, binaryType := range binaryTypes {
		if strings.HasPrefix(contentType, binaryType) {
			return true
		}
	}

	// More than 10% null bytes
	nullCount := 0
	for _, b := range body {
		if b == 0 {
			nullCount++
		}
	}
	return len(body) > 0 && nullCount > len(body)/10
}
