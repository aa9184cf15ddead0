package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yash21saraf/revival.ai/internal/models"
)

// ErrNotFound is returned when no report matches.
var ErrNotFound = errors.New("report not found")

// ReportStore keeps finalized revival reports so callers can fetch them
// again without re-running the model. Entries older than maxAge are pruned.
type ReportStore struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
}

// NewReportStore opens (or creates) reports.db inside dataDir.
func NewReportStore(dataDir string, maxAge time.Duration) (*ReportStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "reports.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init report schema: %w", err)
	}

	return &ReportStore{db: db, maxAge: maxAge, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS reports (
		id         TEXT PRIMARY KEY,
		video_id   TEXT NOT NULL DEFAULT '',
		video_url  TEXT NOT NULL,
		thinking   TEXT NOT NULL DEFAULT '',
		strategy   TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS reports_video_created ON reports (video_id, created_at)`)
	return err
}

func (s *ReportStore) Close() error {
	return s.db.Close()
}

// Save persists a report, assigning ID and CreatedAt when unset.
func (s *ReportStore) Save(ctx context.Context, report *models.Report) error {
	if report == nil || report.Strategy == nil {
		return fmt.Errorf("report with a strategy is required")
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.now()
	}

	strategy, err := json.Marshal(report.Strategy)
	if err != nil {
		return fmt.Errorf("failed to encode strategy: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (id, video_id, video_url, thinking, strategy, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.VideoID, report.VideoURL, report.Thinking, string(strategy), report.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}

// Get returns a report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, video_id, video_url, thinking, strategy, created_at FROM reports WHERE id = ? AND created_at >= ?`,
		id, s.cutoff())
	return scanReport(row)
}

// Latest returns the most recent report for a video.
func (s *ReportStore) Latest(ctx context.Context, videoID string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, video_id, video_url, thinking, strategy, created_at FROM reports
		 WHERE video_id = ? AND created_at >= ? ORDER BY created_at DESC LIMIT 1`,
		videoID, s.cutoff())
	return scanReport(row)
}

// List returns up to limit reports, newest first.
func (s *ReportStore) List(ctx context.Context, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, video_url, thinking, strategy, created_at FROM reports
		 WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`,
		s.cutoff(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Count returns the number of stored reports, expired ones included.
func (s *ReportStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}

// Prune deletes reports older than maxAge and returns how many went.
func (s *ReportStore) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return res.RowsAffected()
}

func (s *ReportStore) cutoff() int64 {
	return s.now().Add(-s.maxAge).UnixMilli()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*models.Report, error) {
	var (
		r         models.Report
		strategy  string
		createdAt int64
	)
	if err := row.Scan(&r.ID, &r.VideoID, &r.VideoURL, &r.Thinking, &strategy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	r.Strategy = &models.RevivalStrategy{}
	if err := json.Unmarshal([]byte(strategy), r.Strategy); err != nil {
		return nil, fmt.Errorf("failed to decode stored strategy for %s: %w", r.ID, err)
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	return &r, nil
}
