package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/funnyzak/retweak/internal/config"
	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/pkg/request"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
	resultColumns    = "id, run_id, idx, value, method, url, timestamp_ns, duration_ns, status_code, headers_json, body, is_binary, error"
)

type sqliteStore struct {
	db  *sql.DB
	cfg *config.StorageConfig
	log logger.Logger
}

func newSQLiteStore(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(absPath))
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	// Outcomes arrive one at a time; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	if log == nil {
		log = logger.Nop()
	}
	store := &sqliteStore{db: db, cfg: cfg, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    value TEXT NOT NULL,
    method TEXT,
    url TEXT,
    timestamp_ns INTEGER NOT NULL,
    duration_ns INTEGER,
    status_code INTEGER,
    headers_json TEXT,
    body BLOB,
    is_binary INTEGER,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, idx);
CREATE INDEX IF NOT EXISTS idx_results_ts ON results(timestamp_ns DESC);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) Record(rec *request.Record) (*StoredResult, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil")
	}
	ctx := context.Background()
	ts := rec.Timestamp.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.Timestamp = ts

	var (
		status      sql.NullInt64
		headersJSON sql.NullString
		body        []byte
		isBinary    int
	)
	if resp := rec.Response; resp != nil {
		encoded, err := json.Marshal(resp.Headers)
		if err != nil {
			return nil, fmt.Errorf("marshal headers: %w", err)
		}
		status = sql.NullInt64{Int64: int64(resp.StatusCode), Valid: true}
		headersJSON = sql.NullString{String: string(encoded), Valid: true}
		body = []byte(resp.Body)
		isBinary = boolToInt(resp.IsBinary)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertSQL := `INSERT INTO results (
        run_id, idx, value, method, url, timestamp_ns, duration_ns,
        status_code, headers_json, body, is_binary, error
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var res sql.Result
	res, err = tx.ExecContext(ctx, insertSQL,
		rec.RunID,
		rec.Index,
		rec.Value,
		rec.Method,
		rec.URL,
		ts.UnixNano(),
		rec.Duration.Nanoseconds(),
		status,
		headersJSON,
		body,
		isBinary,
		rec.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	var id int64
	if id, err = res.LastInsertId(); err != nil {
		return nil, err
	}

	if err = s.prune(ctx, tx); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &StoredResult{ID: id, Record: rec}, nil
}

func (s *sqliteStore) prune(ctx context.Context, tx *sql.Tx) error {
	if s.cfg.MaxRecords <= 0 {
		return nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM results").Scan(&count); err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	if excess := count - s.cfg.MaxRecords; excess > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE id IN (SELECT id FROM results ORDER BY id ASC LIMIT ?)", excess); err != nil {
			return fmt.Errorf("prune max records: %w", err)
		}
		s.log.Debug("Pruned stored results", "count", excess)
	}
	return nil
}

func (s *sqliteStore) List(opts ListOptions) ([]*StoredResult, int, error) {
	ctx := context.Background()
	where, args := buildFilters(opts)

	countQuery := fmt.Sprintf("SELECT COUNT(1) FROM results %s", where)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	var result []*StoredResult
	err := s.Iterate(opts, func(item *StoredResult) bool {
		result = append(result, item)
		return true
	})
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (s *sqliteStore) Iterate(opts ListOptions, fn func(*StoredResult) bool) error {
	ctx := context.Background()
	where, args := buildFilters(opts)

	query := strings.Builder{}
	query.WriteString("SELECT " + resultColumns + " FROM results ")
	query.WriteString(where)
	query.WriteString(" ORDER BY id DESC")

	if opts.Limit > 0 {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		query.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, opts.Limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanStoredResult(rows)
		if err != nil {
			return err
		}
		if !fn(record) {
			break
		}
	}
	return rows.Err()
}

func (s *sqliteStore) Runs() ([]RunSummary, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, MIN(timestamp_ns), COUNT(1),
        SUM(CASE WHEN status_code IS NULL THEN 1 ELSE 0 END)
        FROM results GROUP BY run_id ORDER BY MIN(timestamp_ns) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		if err := rows.Scan(&run.RunID, &run.StartedAt, &run.Total, &run.Failed); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanStoredResult(scanner interface {
	Scan(dest ...interface{}) error
}) (*StoredResult, error) {
	var (
		id          int64
		runID       string
		idx         int
		value       string
		method      sql.NullString
		url         sql.NullString
		ts          int64
		duration    sql.NullInt64
		status      sql.NullInt64
		headersJSON sql.NullString
		body        []byte
		isBinary    sql.NullInt64
		errMsg      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&idx,
		&value,
		&method,
		&url,
		&ts,
		&duration,
		&status,
		&headersJSON,
		&body,
		&isBinary,
		&errMsg,
	); err != nil {
		return nil, err
	}

	rec := &request.Record{
		RunID:     runID,
		Index:     idx,
		Value:     value,
		Method:    method.String,
		URL:       url.String,
		Timestamp: time.Unix(0, ts).UTC(),
		Duration:  time.Duration(duration.Int64),
		Error:     errMsg.String,
	}
	if status.Valid {
		rec.Response = &request.Response{
			StatusCode: int(status.Int64),
			Headers:    decodeHeaders(headersJSON.String),
			Body:       string(body),
			IsBinary:   isBinary.Int64 == 1,
		}
	}
	return &StoredResult{ID: id, Record: rec}, nil
}

// decodeHeaders tolerates single string values next to arrays
func decodeHeaders(raw string) map[string][]string {
	headers := make(map[string][]string)
	gjson.Parse(raw).ForEach(func(name, value gjson.Result) bool {
		if value.IsArray() {
			for _, v := range value.Array() {
				headers[name.String()] = append(headers[name.String()], v.String())
			}
		} else {
			headers[name.String()] = []string{value.String()}
		}
		return true
	})
	return headers
}

func buildFilters(opts ListOptions) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if runID := strings.TrimSpace(opts.RunID); runID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, runID)
	}
	if opts.Status > 0 {
		clauses = append(clauses, "status_code = ?")
		args = append(args, opts.Status)
	}
	if opts.Failed {
		clauses = append(clauses, "status_code IS NULL")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
