// Package sqlite persists cache removal events and statistics snapshots to
// SQLite so operators can look back at how the cache behaved.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/medcache/pkg/models"
)

const defaultLimit = 100

// Sink writes and queries cache history in a dedicated SQLite database.
type Sink struct {
	db            *sql.DB
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New opens the sink database and creates the schema. When retentionDays is
// positive, rows older than that are deleted hourly.
func New(dbPath string, retentionDays int, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sink db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sink db: %w", err)
	}

	s := &Sink{
		db:            db,
		retentionDays: retentionDays,
		logger:        logger.Named("sink"),
		now:           time.Now,
		done:          make(chan struct{}),
	}

	if retentionDays > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS removal_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		cache_key  TEXT NOT NULL,
		category   TEXT NOT NULL,
		reason     TEXT NOT NULL,
		priority   INTEGER NOT NULL,
		strategy   TEXT,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_removal_created ON removal_events(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_removal_reason ON removal_events(reason)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id          TEXT PRIMARY KEY,
		cache       TEXT NOT NULL,
		prioritizer TEXT NOT NULL,
		created_at  DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at)`)
	return err
}

// RecordRemovals inserts a batch of removal events in one transaction.
func (s *Sink) RecordRemovals(ctx context.Context, events []models.RemovalEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin removals: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO removal_events (run_id, cache_key, category, reason, priority, strategy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare removals: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.RunID, ev.Key, string(ev.Category), string(ev.Reason),
			ev.Priority, ev.Strategy, ev.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert removal: %w", err)
		}
	}
	return tx.Commit()
}

// RecordSnapshot stores one statistics snapshot.
func (s *Sink) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	cache, err := json.Marshal(snap.Cache)
	if err != nil {
		return fmt.Errorf("encode cache stats: %w", err)
	}
	prio, err := json.Marshal(snap.Prioritizer)
	if err != nil {
		return fmt.Errorf("encode prioritizer stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (id, cache, prioritizer, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, string(cache), string(prio), snap.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// QueryOpts filters removal events.
type QueryOpts struct {
	Reason models.RemovalReason
	Since  time.Time
	Limit  int
}

// Removals returns removal events, newest first.
func (s *Sink) Removals(ctx context.Context, opts QueryOpts) ([]models.RemovalEvent, error) {
	q := `SELECT run_id, cache_key, category, reason, priority, strategy, created_at
		FROM removal_events WHERE 1=1`
	var args []any

	if opts.Reason != "" {
		q += " AND reason = ?"
		args = append(args, string(opts.Reason))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(opts.Limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query removals: %w", err)
	}
	defer rows.Close()

	var events []models.RemovalEvent
	for rows.Next() {
		var (
			ev       models.RemovalEvent
			category string
			reason   string
			strategy sql.NullString
		)
		if err := rows.Scan(&ev.RunID, &ev.Key, &category, &reason, &ev.Priority, &strategy, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan removal row: %w", err)
		}
		ev.Category = models.Category(category)
		ev.Reason = models.RemovalReason(reason)
		ev.Strategy = strategy.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Snapshots returns up to limit snapshots, newest first.
func (s *Sink) Snapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cache, prioritizer, created_at FROM snapshots ORDER BY created_at DESC LIMIT ?`,
		limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var (
			snap        models.Snapshot
			cache, prio string
		)
		if err := rows.Scan(&snap.ID, &cache, &prio, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if err := json.Unmarshal([]byte(cache), &snap.Cache); err != nil {
			return nil, fmt.Errorf("decode cache stats %s: %w", snap.ID, err)
		}
		if err := json.Unmarshal([]byte(prio), &snap.Prioritizer); err != nil {
			return nil, fmt.Errorf("decode prioritizer stats %s: %w", snap.ID, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ReasonCount is the number of removals for one reason.
type ReasonCount struct {
	Reason models.RemovalReason
	Count  int64
}

// RemovalCounts returns removal totals grouped by reason.
func (s *Sink) RemovalCounts(ctx context.Context) ([]ReasonCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason, count(*) FROM removal_events GROUP BY reason ORDER BY reason`)
	if err != nil {
		return nil, fmt.Errorf("removal counts: %w", err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var (
			rc     ReasonCount
			reason string
		)
		if err := rows.Scan(&reason, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan removal count: %w", err)
		}
		rc.Reason = models.RemovalReason(reason)
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Cleanup deletes events and snapshots older than the retention period and
// returns the number of rows removed. It does nothing when retention is off.
func (s *Sink) Cleanup(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)

	var total int64
	for _, table := range []string{"removal_events", "snapshots"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Close stops the retention goroutine and closes the database.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *Sink) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			n, err := s.Cleanup(context.Background())
			if err != nil {
				s.logger.Warn("retention cleanup", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("retention cleanup", zap.Int64("deleted", n))
			}
		}
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}
