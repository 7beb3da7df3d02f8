// Package sqlite provides a SQLite-backed Store using the pure-Go
// modernc.org/sqlite driver. Suitable for single-node deployments where
// durability matters but an external database does not.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/project"
	humanizerstore "github.com/veritext/humanizer/store"
)

// compile-time interface check
var _ humanizerstore.Store = (*Store)(nil)

// Store is a SQLite-backed implementation of the unified store interface.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and configures it for
// concurrent use. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close() //nolint:errcheck // open failed, close error is secondary
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for advanced callers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Account Store implementation

func (s *Store) CreateAccount(ctx context.Context, a *credit.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, id, tier, balance, ceiling, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.ID, string(a.Tier), a.Balance, a.Ceiling, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return humanizer.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*credit.Account, error) {
	var a credit.Account
	var tier string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, id, tier, balance, ceiling, created_at, updated_at
		FROM accounts WHERE user_id = ?`, userID,
	).Scan(&a.UserID, &a.ID, &tier, &a.Balance, &a.Ceiling, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, humanizer.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Tier = plan.Tier(tier)
	return &a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *credit.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET tier = ?, balance = ?, ceiling = ?, updated_at = ?
		WHERE user_id = ?`,
		string(a.Tier), a.Balance, a.Ceiling, a.UpdatedAt, a.UserID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, humanizer.ErrAccountNotFound)
}

// Reservation Store implementation

func (s *Store) CreateReservation(ctx context.Context, r *credit.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations (id, user_id, amount, state, expires_at, terminated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Amount, string(r.State), r.ExpiresAt, nullTime(r.TerminatedAt), r.CreatedAt, r.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return humanizer.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetReservation(ctx context.Context, resID id.ReservationID) (*credit.Reservation, error) {
	var r credit.Reservation
	var state string
	var terminated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, state, expires_at, terminated_at, created_at, updated_at
		FROM reservations WHERE id = ?`, resID,
	).Scan(&r.ID, &r.UserID, &r.Amount, &state, &r.ExpiresAt, &terminated, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, humanizer.ErrUnknownReservation
	}
	if err != nil {
		return nil, err
	}
	r.State = credit.ReservationState(state)
	if terminated.Valid {
		t := terminated.Time
		r.TerminatedAt = &t
	}
	return &r, nil
}

func (s *Store) UpdateReservation(ctx context.Context, r *credit.Reservation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reservations SET state = ?, terminated_at = ?, updated_at = ?
		WHERE id = ?`,
		string(r.State), nullTime(r.TerminatedAt), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, humanizer.ErrUnknownReservation)
}

func (s *Store) ListExpiredReservations(ctx context.Context, before time.Time) ([]*credit.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, state, expires_at, terminated_at, created_at, updated_at
		FROM reservations
		WHERE state = ? AND expires_at < ?
		ORDER BY expires_at`,
		string(credit.StateHeld), before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*credit.Reservation, 0)
	for rows.Next() {
		var r credit.Reservation
		var state string
		var terminated sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.Amount, &state, &r.ExpiresAt, &terminated, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.State = credit.ReservationState(state)
		if terminated.Valid {
			t := terminated.Time
			r.TerminatedAt = &t
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Usage Store implementation

func (s *Store) IngestUsage(ctx context.Context, events []*credit.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_events (id, user_id, level, credits_charged, word_count, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback() //nolint:errcheck // rollback error is secondary
		return err
	}
	defer stmt.Close() //nolint:errcheck // statement dies with the tx

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.UserID, e.Level, e.CreditsCharged, e.WordCount, e.Timestamp); err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback error is secondary
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) QueryUsage(ctx context.Context, userID string, opts credit.QueryOpts) ([]*credit.UsageEvent, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, level, credits_charged, word_count, timestamp
		FROM usage_events WHERE user_id = ?`)
	args := []any{userID}

	if opts.Level != "" {
		sb.WriteString(` AND level = ?`)
		args = append(args, opts.Level)
	}
	if !opts.Start.IsZero() {
		sb.WriteString(` AND timestamp >= ?`)
		args = append(args, opts.Start)
	}
	if !opts.End.IsZero() {
		sb.WriteString(` AND timestamp <= ?`)
		args = append(args, opts.End)
	}
	sb.WriteString(` ORDER BY timestamp DESC`)
	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*credit.UsageEvent, 0)
	for rows.Next() {
		var e credit.UsageEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Level, &e.CreditsCharged, &e.WordCount, &e.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *Store) UsageTotal(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credits_charged), 0)
		FROM usage_events WHERE user_id = ? AND timestamp > ?`,
		userID, since,
	).Scan(&total)
	return total, err
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Project Store implementation

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, title, excerpt, result, favorite, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Excerpt, p.Result, p.Favorite, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return humanizer.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetProject(ctx context.Context, projID id.ProjectID) (*project.Project, error) {
	var p project.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, excerpt, result, favorite, created_at, updated_at
		FROM projects WHERE id = ?`, projID,
	).Scan(&p.ID, &p.UserID, &p.Title, &p.Excerpt, &p.Result, &p.Favorite, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, humanizer.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, userID string, opts project.ListOpts) ([]*project.Project, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, title, excerpt, result, favorite, created_at, updated_at
		FROM projects WHERE user_id = ?`)
	args := []any{userID}

	if opts.FavoritesOnly {
		sb.WriteString(` AND favorite = 1`)
	}
	if opts.Search != "" {
		sb.WriteString(` AND (title LIKE ? COLLATE NOCASE OR excerpt LIKE ? COLLATE NOCASE)`)
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern)
	}
	sb.WriteString(` ORDER BY created_at DESC`)
	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*project.Project, 0)
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Excerpt, &p.Result, &p.Favorite, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET title = ?, excerpt = ?, result = ?, favorite = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Excerpt, p.Result, p.Favorite, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, humanizer.ErrProjectNotFound)
}

func (s *Store) DeleteProject(ctx context.Context, projID id.ProjectID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projID)
	if err != nil {
		return err
	}
	return checkAffected(res, humanizer.ErrProjectNotFound)
}

// Store management

func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", humanizer.ErrMigrationFailed, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Helpers

func checkAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
