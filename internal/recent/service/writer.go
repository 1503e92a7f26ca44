package service

import (
	"context"
	"time"

	busevents "commhistory_backend/internal/events"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/apperr"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/sanitize"

	"github.com/google/uuid"
)

// EventStore is the full event store surface: the reader slice used by the
// aggregator plus mutation.
type EventStore interface {
	EventReader
	Insert(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, error)
	Delete(ctx context.Context, eventID uuid.UUID) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Writer persists communication events and broadcasts the corresponding
// change notifications on the event bus, feeding every live aggregator in
// the process.
type Writer struct {
	store EventStore
	bus   busevents.Bus
	log   *logger.Logger
}

// NewWriter creates an event writer.
func NewWriter(store EventStore, bus busevents.Bus, log *logger.Logger) *Writer {
	return &Writer{
		store: store,
		bus:   bus,
		log:   log.WithComponent("event-writer"),
	}
}

// Record stores a new event and announces it. A zero event id is assigned;
// a zero end time defaults to now.
func (w *Writer) Record(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, error) {
	if rec.AccountID == "" {
		return domain.EventRecord{}, apperr.Validation("accountId is required").WithOp("recent.writer.record")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.EndedAt
	}
	rec.Snippet = sanitize.Text(rec.Snippet)

	stored, err := w.store.Insert(ctx, rec)
	if err != nil {
		return domain.EventRecord{}, err
	}

	w.bus.Publish(ctx, busevents.EventsAdded{
		Events: []domain.EventRecord{stored},
	})
	return stored, nil
}

// Remove deletes a stored event and announces the deletion.
func (w *Writer) Remove(ctx context.Context, eventID uuid.UUID) error {
	removed, err := w.store.Delete(ctx, eventID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("event not found").WithOp("recent.writer.remove")
	}

	w.bus.Publish(ctx, busevents.EventDeleted{
		EventID: eventID,
	})
	return nil
}
