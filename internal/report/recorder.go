package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/tidwall/sjson"

	"github.com/funnyzak/retweak/internal/dispatch"
	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/pkg/headers"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Encoder serializes one outcome into w
type Encoder interface {
	Begin(w io.Writer) error
	Encode(w io.Writer, o *dispatch.Outcome) error
}

// FileRecorder writes every response of a run, repeated or not, to an output file.
// Failed requests are not recorded.
type FileRecorder struct {
	mu      sync.Mutex
	file    afero.File
	buf     *bufio.Writer
	encoder Encoder
	logger  logger.Logger
	count   int
}

// NewRecorder creates (or truncates) path on fs and returns a recorder for format
func NewRecorder(fs afero.Fs, path, format, runID string, log logger.Logger) (*FileRecorder, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = logger.Nop()
	}

	encoder, err := NewEncoder(format, runID)
	if err != nil {
		return nil, err
	}

	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	r := &FileRecorder{
		file:    file,
		buf:     bufio.NewWriter(file),
		encoder: encoder,
		logger:  log,
	}
	if err := encoder.Begin(r.buf); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

// NewEncoder returns the encoder for format
func NewEncoder(format, runID string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return textEncoder{}, nil
	case FormatJSON:
		return jsonEncoder{runID: runID}, nil
	case FormatCSV:
		return &csvEncoder{runID: runID}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Handle implements dispatch.Handler
func (r *FileRecorder) Handle(o *dispatch.Outcome) {
	if o.Err != nil || o.Response == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.encoder.Encode(r.buf, o); err != nil {
		r.logger.Error("Failed to write output record", "index", o.Index, "error", err)
		return
	}
	r.count++
}

// Count returns the number of records written
func (r *FileRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close flushes and closes the output file
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushErr := r.buf.Flush()
	closeErr := r.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// textEncoder writes a plain-text block per response
type textEncoder struct{}

func (textEncoder) Begin(io.Writer) error { return nil }

func (textEncoder) Encode(w io.Writer, o *dispatch.Outcome) error {
	resp := o.Response
	block := strings.Join([]string{
		requestLine(o.Value),
		"CODE - " + strconv.Itoa(resp.StatusCode) + "\n",
		headers.FormatMulti(resp.Headers, "\n") + "\n",
		resp.Body,
		Divider,
	}, "\n")
	_, err := io.WriteString(w, block+"\n")
	return err
}

// jsonEncoder writes one JSON object per line: the response merged with its origin
type jsonEncoder struct {
	runID string
}

func (jsonEncoder) Begin(io.Writer) error { return nil }

func (e jsonEncoder) Encode(w io.Writer, o *dispatch.Outcome) error {
	record, err := json.Marshal(o.Response)
	if err != nil {
		return err
	}
	if record, err = sjson.SetBytes(record, "value", o.Value); err != nil {
		return err
	}
	if record, err = sjson.SetBytes(record, "index", o.Index); err != nil {
		return err
	}
	if o.Request != nil {
		if record, err = sjson.SetBytes(record, "method", o.Request.Method); err != nil {
			return err
		}
		if record, err = sjson.SetBytes(record, "url", o.Request.Target()); err != nil {
			return err
		}
	}
	if e.runID != "" {
		if record, err = sjson.SetBytes(record, "run_id", e.runID); err != nil {
			return err
		}
	}
	_, err = w.Write(append(record, '\n'))
	return err
}

var csvColumns = []string{
	"run_id", "index", "value", "timestamp", "duration_ms", "method", "url",
	"status_code", "size", "is_binary", "headers", "body",
}

// csvEncoder writes a header row followed by one row per response
type csvEncoder struct {
	runID string
}

func (e *csvEncoder) Begin(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func (e *csvEncoder) Encode(w io.Writer, o *dispatch.Outcome) error {
	resp := o.Response
	headersJSON, err := json.Marshal(resp.Headers)
	if err != nil {
		return err
	}

	var method, target string
	if o.Request != nil {
		method, target = o.Request.Method, o.Request.Target()
	}

	writer := csv.NewWriter(w)
	line := []string{
		e.runID,
		strconv.Itoa(o.Index),
		o.Value,
		o.Started.Format(time.RFC3339),
		strconv.FormatInt(o.Duration.Milliseconds(), 10),
		method,
		target,
		strconv.Itoa(resp.StatusCode),
		strconv.Itoa(resp.Size()),
		strconv.FormatBool(resp.IsBinary),
		string(headersJSON),
		resp.Body,
	}
	if err := writer.Write(line); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
