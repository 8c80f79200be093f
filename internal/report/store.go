package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"scout/internal/logging"
	"scout/internal/research"
)

// Store archives research runs in a local SQLite database so past reports
// can be listed, searched, and reopened without rerunning the pipeline.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// StatusCounts summarizes how collection went for one archived run.
type StatusCounts struct {
	Complete int
	Partial  int
	Failed   int
}

// ArchivedReport is the metadata of one archive row.
type ArchivedReport struct {
	ID        string
	Topic     string
	CreatedAt time.Time
	Degraded  bool
	WordCount int
	Counts    StatusCounts
}

// NewStore opens (or creates) the archive database at path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Report archive ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		synthesis TEXT NOT NULL,
		objectives TEXT NOT NULL,
		sources TEXT NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		word_count INTEGER NOT NULL DEFAULT 0,
		complete_count INTEGER NOT NULL DEFAULT 0,
		partial_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_topic ON reports(topic);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Archive stores a finished report and returns its archive ID.
func (s *Store) Archive(ctx context.Context, r *research.Report, counts StatusCounts) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()[:8]
	objectives, err := json.Marshal(r.Objectives)
	if err != nil {
		return "", fmt.Errorf("failed to encode objectives: %w", err)
	}
	sources, err := json.Marshal(r.References)
	if err != nil {
		return "", fmt.Errorf("failed to encode references: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, topic, synthesis, objectives, sources, degraded, word_count,
			complete_count, partial_count, failed_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Topic, r.Synthesis, string(objectives), string(sources), boolToInt(r.Degraded),
		len(strings.Fields(r.Synthesis)), counts.Complete, counts.Partial, counts.Failed,
		time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to archive report: %w", err)
	}

	logging.Store("Archived report %s for topic %q", id, r.Topic)
	logging.Audit().ReportArchived(id, r.Topic)
	return id, nil
}

// List returns archive metadata, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]ArchivedReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, degraded, word_count, complete_count, partial_count, failed_count, created_at
		FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()
	return scanArchived(rows)
}

// Search returns archive metadata for reports whose topic matches query,
// newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]ArchivedReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, degraded, word_count, complete_count, partial_count, failed_count, created_at
		FROM reports WHERE LOWER(topic) LIKE ? ORDER BY created_at DESC LIMIT ?`,
		"%"+strings.ToLower(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search reports: %w", err)
	}
	defer rows.Close()
	return scanArchived(rows)
}

// Get loads one archived report in full.
func (s *Store) Get(ctx context.Context, id string) (*research.Report, *ArchivedReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, synthesis, objectives, sources, degraded, word_count,
			complete_count, partial_count, failed_count, created_at
		FROM reports WHERE id = ?`, id)

	var meta ArchivedReport
	var synthesis, objectivesJSON, sourcesJSON string
	var degraded int
	var createdNS int64
	err := row.Scan(&meta.ID, &meta.Topic, &synthesis, &objectivesJSON, &sourcesJSON, &degraded,
		&meta.WordCount, &meta.Counts.Complete, &meta.Counts.Partial, &meta.Counts.Failed, &createdNS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("report %s not found", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}
	meta.Degraded = degraded != 0
	meta.CreatedAt = time.Unix(0, createdNS)

	report := &research.Report{
		Topic:     meta.Topic,
		Synthesis: synthesis,
		Degraded:  meta.Degraded,
	}
	if err := json.Unmarshal([]byte(objectivesJSON), &report.Objectives); err != nil {
		return nil, nil, fmt.Errorf("corrupt objectives for report %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &report.References); err != nil {
		return nil, nil, fmt.Errorf("corrupt references for report %s: %w", id, err)
	}
	return report, &meta, nil
}

func scanArchived(rows *sql.Rows) ([]ArchivedReport, error) {
	var out []ArchivedReport
	for rows.Next() {
		var meta ArchivedReport
		var degraded int
		var createdNS int64
		if err := rows.Scan(&meta.ID, &meta.Topic, &degraded, &meta.WordCount,
			&meta.Counts.Complete, &meta.Counts.Partial, &meta.Counts.Failed, &createdNS); err != nil {
			logging.StoreDebug("Skipping unreadable archive row: %v", err)
			continue
		}
		meta.Degraded = degraded != 0
		meta.CreatedAt = time.Unix(0, createdNS)
		out = append(out, meta)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
