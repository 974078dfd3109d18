package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateStageEvent is returned by Apply when the unique index on
// (deal_id, stage_id) rejects a stage event. Under concurrent or repeated
// delivery this is the authoritative signal that the transition was
// already scored; callers treat it as "already processed", not a failure.
var ErrDuplicateStageEvent = errors.New("ledger: stage event already recorded")

// ErrDuplicateMilestone is the analogous signal for the unique index on
// (user_id, rank): a concurrent event already credited this rank.
var ErrDuplicateMilestone = errors.New("ledger: milestone already credited")

const pgUniqueViolation = "23505"

// Repository provides data access for the scoring ledger tables.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new ledger repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Apply persists one event's outcome atomically: stage events, ledger
// entries, and milestone awards all commit together or not at all.
func (r *Repository) Apply(ctx context.Context, outcome Outcome) error {
	if outcome.IsEmpty() {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, event := range outcome.StageEvents {
		if _, err = tx.Exec(ctx, `
			INSERT INTO deal_stage_events (deal_id, stage_id)
			VALUES ($1, $2)
		`, event.DealID, event.StageID); err != nil {
			if isUniqueViolation(err) {
				err = ErrDuplicateStageEvent
			}
			return err
		}
	}

	for _, entry := range outcome.Entries {
		if _, err = tx.Exec(ctx, `
			INSERT INTO points_ledger (deal_id, user_id, event_type, points, note)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.DealID, entry.UserID, string(entry.EventType), entry.Points, entry.Note); err != nil {
			return err
		}
	}

	for _, milestone := range outcome.Milestones {
		if _, err = tx.Exec(ctx, `
			INSERT INTO user_milestones (user_id, rank)
			VALUES ($1, $2)
		`, milestone.UserID, milestone.Rank); err != nil {
			if isUniqueViolation(err) {
				err = ErrDuplicateMilestone
			}
			return err
		}
	}

	err = tx.Commit(ctx)
	return err
}

// Append inserts a single ledger entry outside of an event outcome (used
// by the decay sweep, which writes one penalty per deal).
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO points_ledger (deal_id, user_id, event_type, points, note)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.DealID, entry.UserID, string(entry.EventType), entry.Points, entry.Note)
	return err
}

// TotalScore returns the signed sum of all of a user's entries.
func (r *Repository) TotalScore(ctx context.Context, userID int) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM points_ledger
		WHERE user_id = $1
	`, userID).Scan(&total)
	return total, err
}

// ScoreSince returns the signed sum of a user's entries created at or
// after the given instant (weekly and quarterly aggregates).
func (r *Repository) ScoreSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM points_ledger
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&total)
	return total, err
}

// HasEvent reports whether the deal already has an entry of the given
// event type. This is the per-event-type idempotency guard for bonuses,
// suspensions, and revivals.
func (r *Repository) HasEvent(ctx context.Context, dealID int, eventType EventType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM points_ledger
			WHERE deal_id = $1 AND event_type = $2
		)
	`, dealID, string(eventType)).Scan(&exists)
	return exists, err
}

// HasStageEvent reports whether the (deal, stage) pair was already scored.
func (r *Repository) HasStageEvent(ctx context.Context, dealID, stageID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM deal_stage_events
			WHERE deal_id = $1 AND stage_id = $2
		)
	`, dealID, stageID).Scan(&exists)
	return exists, err
}

// LatestSuspension returns the most recent rotting suspension entry for
// the deal, or nil when the deal was never penalized.
func (r *Repository) LatestSuspension(ctx context.Context, dealID int) (*Entry, error) {
	var entry Entry
	var eventType string
	err := r.pool.QueryRow(ctx, `
		SELECT id, deal_id, user_id, event_type, points, COALESCE(note, ''), created_at
		FROM points_ledger
		WHERE deal_id = $1 AND event_type = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, dealID, string(EventDealRottedSuspension)).Scan(
		&entry.ID, &entry.DealID, &entry.UserID, &eventType, &entry.Points, &entry.Note, &entry.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.EventType = EventType(eventType)
	return &entry, nil
}

// HasMilestone reports whether the user was already credited for a rank.
func (r *Repository) HasMilestone(ctx context.Context, userID int, rank string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_milestones
			WHERE user_id = $1 AND rank = $2
		)
	`, userID, rank).Scan(&exists)
	return exists, err
}

// UserTotals returns every user's cumulative score, highest first.
func (r *Repository) UserTotals(ctx context.Context) ([]UserTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, COALESCE(SUM(points), 0) AS total
		FROM points_ledger
		GROUP BY user_id
		ORDER BY total DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []UserTotal
	for rows.Next() {
		var t UserTotal
		if err := rows.Scan(&t.UserID, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// EntriesForUser returns a user's most recent entries, newest first.
func (r *Repository) EntriesForUser(ctx context.Context, userID, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, user_id, event_type, points, COALESCE(note, ''), created_at
		FROM points_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var eventType string
		if err := rows.Scan(
			&entry.ID, &entry.DealID, &entry.UserID, &eventType, &entry.Points, &entry.Note, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.EventType = EventType(eventType)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
