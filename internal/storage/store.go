package storage

import (
	"errors"

	"github.com/funnyzak/retweak/internal/config"
	"github.com/funnyzak/retweak/internal/dispatch"
	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/pkg/request"
)

// ErrUnsupportedDriver indicates the configured driver is not available.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// ListOptions controls filtering and pagination when fetching results.
type ListOptions struct {
	RunID string
	// Status keeps only responses with this status code; 0 disables the filter.
	Status int
	// Failed keeps only requests that produced no response.
	Failed bool
	Limit  int
	Offset int
}

// StoredResult wraps a Record with its persisted identifier.
type StoredResult struct {
	ID int64 `json:"id"`
	*request.Record
}

// RunSummary aggregates the stored results of one run.
type RunSummary struct {
	RunID     string `json:"run_id"`
	StartedAt int64  `json:"started_at"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
}

// Store defines the persistence contract for run results.
type Store interface {
	Record(*request.Record) (*StoredResult, error)
	List(ListOptions) ([]*StoredResult, int, error)
	Iterate(ListOptions, func(*StoredResult) bool) error
	Runs() ([]RunSummary, error)
	Close() error
}

// New instantiates a Store based on configuration.
func New(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	switch driver := cfg.Driver; driver {
	case "", "sqlite", "sqlite3":
		return newSQLiteStore(cfg, log)
	default:
		return nil, ErrUnsupportedDriver
	}
}

// Recorder persists every outcome of a run, failures included.
type Recorder struct {
	store Store
	runID string
	log   logger.Logger
}

// NewRecorder returns a dispatch.Handler writing to store under runID
func NewRecorder(store Store, runID string, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{store: store, runID: runID, log: log}
}

// Handle implements dispatch.Handler
func (r *Recorder) Handle(o *dispatch.Outcome) {
	if _, err := r.store.Record(o.Record(r.runID)); err != nil {
		r.log.Error("Failed to store result", "index", o.Index, "error", err)
	}
}
