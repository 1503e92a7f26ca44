// Package repository implements the communication event store on postgres.
package repository

import (
	"context"
	"fmt"
	"time"

	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opLoadRecent      = "recent.repository.load_recent"
	opInsert          = "recent.repository.insert"
	opDelete          = "recent.repository.delete"
	opDeleteOlderThan = "recent.repository.delete_older_than"

	errRepoNotConfigured = "event repository not configured"
)

// Repository stores communication events in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository over the given pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadRecent returns the latest event per (account_id, address) pair,
// newest first. The category mask is applied inside the grouping so that a
// pair's latest matching event is found even when its overall latest event
// is outside the mask. A zero limit means no limit.
func (r *Repository) LoadRecent(ctx context.Context, mask domain.Category, limit int) ([]domain.EventRecord, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opLoadRecent)
	}

	categoryClause := ""
	args := []interface{}{}
	if mask != domain.CategoryAny {
		categoryClause = "WHERE (category & $1) <> 0"
		args = append(args, uint32(mask))
	}

	limitClause := ""
	if limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d", limit)
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, address, category, direction, started_at, ended_at, snippet
		FROM events
		WHERE id IN (
			SELECT last_id FROM (
				SELECT DISTINCT ON (events.account_id, events.address)
					events.id AS last_id
				FROM events
				JOIN (
					SELECT account_id, address, max(ended_at) AS last_event_time
					FROM events
					%s
					GROUP BY account_id, address
					ORDER BY last_event_time DESC
					%s
				) AS last_event
					ON events.ended_at = last_event.last_event_time
					AND events.account_id = last_event.account_id
					AND events.address = last_event.address
				ORDER BY events.account_id, events.address, events.id DESC
			) AS latest
		)
		ORDER BY ended_at DESC, id DESC
	`, categoryClause, limitClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Unavailable("load recent events query failed", err).WithOp(opLoadRecent)
	}
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		var category uint32
		var direction uint8
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Address, &category, &direction, &rec.StartedAt, &rec.EndedAt, &rec.Snippet); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan event failed: %v", err)).WithOp(opLoadRecent)
		}
		rec.Category = domain.Category(category)
		rec.Direction = domain.Direction(direction)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("load recent events failed", err).WithOp(opLoadRecent)
	}

	return records, nil
}

// Insert stores one event.
func (r *Repository) Insert(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, error) {
	if r == nil || r.pool == nil {
		return domain.EventRecord{}, apperr.Internal(errRepoNotConfigured).WithOp(opInsert)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, account_id, address, category, direction, started_at, ended_at, snippet)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.AccountID, rec.Address, uint32(rec.Category), uint8(rec.Direction), rec.StartedAt, rec.EndedAt, rec.Snippet)
	if err != nil {
		return domain.EventRecord{}, apperr.Unavailable("insert event failed", err).WithOp(opInsert)
	}

	return rec, nil
}

// Delete removes one event by id, reporting whether it existed.
func (r *Repository) Delete(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opDelete)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return false, apperr.Unavailable("delete event failed", err).WithOp(opDelete)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteOlderThan removes events whose end time predates the cutoff and
// returns the number removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opDeleteOlderThan)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE ended_at < $1`, cutoff)
	if err != nil {
		return 0, apperr.Unavailable("prune events failed", err).WithOp(opDeleteOlderThan)
	}
	return tag.RowsAffected(), nil
}
