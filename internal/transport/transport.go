package transport

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http/httpguts"

	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/pkg/request"
)

// Transport executes concrete requests over net/http.
type Transport struct {
	client     *http.Client
	logger     logger.Logger
	decodeBody bool
}

// Options transport configuration
type Options struct {
	// Timeout bounds a whole request; zero means no timeout.
	Timeout               time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	TLSInsecureSkipVerify bool
	// DecodeBody decompresses gzip, deflate and br encoded bodies.
	DecodeBody bool
}

// ErrInvalidRequest indicates the request could not be built.
var ErrInvalidRequest = errors.New("invalid request")

// New creates a transport
func New(log logger.Logger, opts Options) *Transport {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          positiveOrDefault(opts.MaxIdleConns, 200),
		MaxIdleConnsPerHost:   positiveOrDefault(opts.MaxIdleConnsPerHost, 50),
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       durationOrDefault(opts.IdleConnTimeout, 90*time.Second),
		TLSHandshakeTimeout:   durationOrDefault(opts.TLSHandshakeTimeout, 10*time.Second),
		ExpectContinueTimeout: durationOrDefault(opts.ExpectContinueTimeout, 1*time.Second),
		// Bodies are reported as sent by the server; Accept-Encoding is only sent when the caller sets it.
		DisableCompression: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.TLSInsecureSkipVerify,
		},
	}

	return &Transport{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:     log,
		decodeBody: opts.DecodeBody,
	}
}

// Execute sends req and collects the response. HEAD responses carry no body.
func (t *Transport) Execute(ctx context.Context, req *request.Request) (*request.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("%w: missing URL", ErrInvalidRequest)
	}

	var body io.Reader
	if req.Data != "" {
		body = strings.NewReader(req.Data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	for name, value := range req.Headers {
		name = strings.ToLower(strings.TrimSpace(name))
		if !t.shouldSendHeader(name, value) {
			continue
		}
		if name == "host" {
			httpReq.Host = value
			continue
		}
		// Direct assignment keeps the lower-case name on the wire.
		httpReq.Header[name] = []string{value}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.logger.Warn("Failed to close response body", "error", cerr)
		}
	}()

	var data []byte
	if req.Method != http.MethodHead {
		data, err = t.readBody(resp)
		if err != nil {
			return nil, fmt.Errorf("read response body failed: %w", err)
		}
	}

	return request.NewResponse(resp.StatusCode, resp.Header, data, resp.Header.Get("Content-Type")), nil
}

// shouldSendHeader determines if a request header should be sent
func (t *Transport) shouldSendHeader(name, value string) bool {
	// Recomputed by net/http from the body.
	if name == "content-length" {
		return false
	}

	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		t.logger.Warn("Skipping invalid request header", "header", name)
		return false
	}

	return true
}

func (t *Transport) readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !t.decodeBody {
		return raw, nil
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	decoded, err := decodeBody(encoding, raw)
	if err != nil {
		t.logger.Debug("Keeping undecodable body as-is", "encoding", encoding, "error", err)
		return raw, nil
	}
	return decoded, nil
}

func decodeBody(encoding string, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	var reader io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}

	return io.ReadAll(reader)
}

// Close releases idle connections
func (t *Transport) Close() {
	if transport, ok := t.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func positiveOrDefault(value, def int) int {
	if value > 0 {
		return value
	}
	return def
}

func durationOrDefault(value, def time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return def
}
