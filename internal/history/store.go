// Package history persists terminal executions as an append-only audit log.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"cascade/internal/errors"
	"cascade/internal/execution"
	"cascade/internal/slogutil"
)

// timeFormat is fixed width so stored timestamps order lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Record is the summary row of one finished execution.
type Record struct {
	ExecutionID       string     `json:"executionId"`
	ReportID          string     `json:"reportId"`
	SeedID            string     `json:"seedId"`
	Outcome           string     `json:"outcome"`
	Waves             int        `json:"waves"`
	WavesExecuted     int        `json:"wavesExecuted"`
	OverallConfidence float64    `json:"overallConfidence"`
	Escalated         bool       `json:"escalated"`
	AbortReason       string     `json:"abortReason,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
}

// ListOptions filters List.
type ListOptions struct {
	SeedID  string
	Outcome string
	Limit   int
	Offset  int
}

// Store provides persistence for execution history in a SQLite database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// Open opens or creates the history database at <dataDir>/history.db.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	logger = slogutil.OrDiscard(logger)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8000", // 8MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
		enc:    enc,
		dec:    dec,
	}

	if !dbExists {
		logger.Info("Creating history database", "path", dbPath)
	}
	if err := store.initializeSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return store, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			report_id TEXT NOT NULL,
			seed_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			waves INTEGER NOT NULL,
			waves_executed INTEGER NOT NULL,
			overall_confidence REAL NOT NULL,
			escalated INTEGER NOT NULL DEFAULT 0,
			abort_reason TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			state BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_seed ON executions(seed_id);
		CREATE INDEX IF NOT EXISTS idx_executions_finished_at ON executions(finished_at DESC);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.dec != nil {
		s.dec.Close()
	}
	if s.enc != nil {
		_ = s.enc.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Save appends a terminal execution. Records are immutable: saving the same
// execution twice is rejected.
func (s *Store) Save(state *execution.State) error {
	if state == nil || !state.Terminal() {
		return errors.Newf(errors.InvalidArgument, "only terminal executions are recorded")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return errors.New(errors.StoreError, "failed to encode execution", err)
	}
	blob := s.enc.EncodeAll(data, nil)

	seedID := ""
	if state.Report != nil {
		seedID = state.Report.SeedID
	}
	waves := 0
	if state.Report != nil {
		waves = len(state.Report.Waves)
	}

	_, err = s.conn.Exec(`
		INSERT INTO executions (id, report_id, seed_id, outcome, waves, waves_executed,
			overall_confidence, escalated, abort_reason, started_at, finished_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		state.ID,
		state.ReportID,
		seedID,
		state.Outcome(),
		waves,
		len(state.WaveConfidences),
		state.OverallConfidence,
		boolToInt(state.EscalatedToHuman),
		nullString(state.AbortReason),
		state.StartedAt.UTC().Format(timeFormat),
		nullTime(state.FinishedAt),
		blob,
	)
	if err != nil {
		return errors.New(errors.StoreError, "failed to save execution "+state.ID, err)
	}

	s.logger.Debug("Saved execution record",
		"execution", state.ID,
		"outcome", state.Outcome(),
		"bytes", len(blob),
		"raw", len(data),
	)
	return nil
}

// Get loads the full state of a recorded execution. It returns nil, nil
// when the id is unknown.
func (s *Store) Get(id string) (*execution.State, error) {
	var blob []byte
	err := s.conn.QueryRow(`SELECT state FROM executions WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.StoreError, "failed to load execution "+id, err)
	}

	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, errors.New(errors.StoreError, "failed to decompress execution "+id, err)
	}
	var state execution.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.New(errors.StoreError, "failed to decode execution "+id, err)
	}
	return &state, nil
}

// List returns summary records, newest first.
func (s *Store) List(opts ListOptions) ([]Record, error) {
	var conditions []string
	var args []interface{}

	if opts.SeedID != "" {
		conditions = append(conditions, "seed_id = ?")
		args = append(args, opts.SeedID)
	}
	if opts.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, opts.Outcome)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}

	query := fmt.Sprintf(`
		SELECT id, report_id, seed_id, outcome, waves, waves_executed, overall_confidence,
			escalated, abort_reason, started_at, finished_at
		FROM executions %s
		ORDER BY finished_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, errors.New(errors.StoreError, "failed to list executions", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var r Record
		var escalated int
		var abortReason, finishedAt sql.NullString
		var startedAt string
		if err := rows.Scan(
			&r.ExecutionID,
			&r.ReportID,
			&r.SeedID,
			&r.Outcome,
			&r.Waves,
			&r.WavesExecuted,
			&r.OverallConfidence,
			&escalated,
			&abortReason,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, errors.New(errors.StoreError, "failed to scan execution row", err)
		}
		r.Escalated = escalated != 0
		r.AbortReason = abortReason.String
		if t, err := time.Parse(timeFormat, startedAt); err == nil {
			r.StartedAt = t
		}
		if finishedAt.Valid {
			if t, err := time.Parse(timeFormat, finishedAt.String); err == nil {
				r.FinishedAt = &t
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.StoreError, "error iterating executions", err)
	}
	return records, nil
}

// Cleanup removes records that finished before now minus retention.
func (s *Store) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(timeFormat)

	result, err := s.conn.Exec(`DELETE FROM executions WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, errors.New(errors.StoreError, "failed to cleanup executions", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.logger.Info("Removed expired execution records", "count", n, "retention", retention.String())
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
