// Package storage keeps an optional SQLite manifest of mirror runs: which
// pages were written where and which static resources were downloaded.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/masahif/offliner/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

var errNoRun = errors.New("no run in progress")

// SQLiteStorage implements crawler.Manifest using SQLite
type SQLiteStorage struct {
	db *sql.DB

	mu    sync.Mutex
	runID string
}

var _ crawler.Manifest = (*SQLiteStorage)(nil)

// RunSummary is a finished or in-progress run as stored in the manifest
type RunSummary struct {
	ID                string
	SeedURL           string
	TargetDir         string
	Depth             int
	Finished          bool
	Pages             int
	Resources         int
	Bytes             int64
	LinksUnresolved   int
	DiscoveryFailures int
}

// NewSQLiteStorage opens (creating if needed) the manifest at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return s.SetMeta(ctx, "schema_version", schemaVersion)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginRun inserts the run and makes it the target of later records
func (s *SQLiteStorage) BeginRun(ctx context.Context, run *crawler.RunInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seed_url, target_dir, depth, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.SeedURL, run.TargetDir, run.Depth, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	s.mu.Lock()
	s.runID = run.ID
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStorage) currentRun() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID == "" {
		return "", errNoRun
	}
	return s.runID, nil
}

// RecordPage stores a saved or failed page of the current run
func (s *SQLiteStorage) RecordPage(ctx context.Context, page *crawler.PageRecord) error {
	runID, err := s.currentRun()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (run_id, url, canonical_url, local_path, title, status, error, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, canonical_url) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			title = excluded.title,
			saved_at = excluded.saved_at
	`, runID, page.URL, page.CanonicalURL, page.LocalPath, nullString(page.Title),
		page.Status, nullString(page.Error), page.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", page.URL, err)
	}
	return nil
}

// RecordResource stores a distinct static resource of the current run
func (s *SQLiteStorage) RecordResource(ctx context.Context, res *crawler.ResourceRecord) error {
	runID, err := s.currentRun()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO resources (run_id, hash, source_url, local_path, reused, bytes, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, res.Hash, res.SourceURL, res.LocalPath, res.Reused, res.Bytes, res.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to save resource %s: %w", res.SourceURL, err)
	}
	return nil
}

// FinishRun stores the run totals
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *crawler.RunInfo, stats crawler.MirrorStats) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, pages = ?, resources = ?, bytes = ?,
			links_unresolved = ?, discovery_failures = ?
		WHERE id = ?
	`, time.Now().UTC(), stats.Pages, stats.Resources(), stats.BytesWritten(),
		stats.LinksUnresolved, stats.DiscoveryFailures, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, sql.ErrNoRows)
	}

	s.mu.Lock()
	if s.runID == run.ID {
		s.runID = ""
	}
	s.mu.Unlock()
	return nil
}

// GetRun returns the stored summary of a run
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*RunSummary, error) {
	var (
		run      RunSummary
		finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seed_url, target_dir, depth, CAST(finished_at AS TEXT),
			pages, resources, bytes, links_unresolved, discovery_failures
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.SeedURL, &run.TargetDir, &run.Depth, &finished,
		&run.Pages, &run.Resources, &run.Bytes, &run.LinksUnresolved, &run.DiscoveryFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run.Finished = finished.Valid
	return &run, nil
}

// ListPages returns the pages of a run in the order they were recorded
func (s *SQLiteStorage) ListPages(ctx context.Context, runID string) ([]crawler.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, canonical_url, local_path, COALESCE(title, ''), status, COALESCE(error, '')
		FROM pages WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pages []crawler.PageRecord
	for rows.Next() {
		var p crawler.PageRecord
		if err := rows.Scan(&p.URL, &p.CanonicalURL, &p.LocalPath, &p.Title, &p.Status, &p.Error); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListResources returns the resources of a run in the order they were recorded
func (s *SQLiteStorage) ListResources(ctx context.Context, runID string) ([]crawler.ResourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, source_url, local_path, reused, bytes
		FROM resources WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var resources []crawler.ResourceRecord
	for rows.Next() {
		var r crawler.ResourceRecord
		if err := rows.Scan(&r.Hash, &r.SourceURL, &r.LocalPath, &r.Reused, &r.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM manifest_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO manifest_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
