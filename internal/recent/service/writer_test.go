package service

import (
	"context"
	"errors"
	"testing"
	"time"

	busevents "commhistory_backend/internal/events"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeStore struct {
	fakeRepo
	inserted []domain.EventRecord
	deleted  []uuid.UUID
	missing  bool
}

func (f *fakeStore) Insert(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, error) {
	f.inserted = append(f.inserted, rec)
	return rec, nil
}

func (f *fakeStore) Delete(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if f.missing {
		return false, nil
	}
	f.deleted = append(f.deleted, eventID)
	return true, nil
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// captureBus records published events synchronously.
type captureBus struct {
	published []busevents.Event
}

func (b *captureBus) Publish(ctx context.Context, event busevents.Event) {
	b.published = append(b.published, event)
}

func (b *captureBus) PublishSync(ctx context.Context, event busevents.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *captureBus) Subscribe(eventName string, handler busevents.Handler) {}

func TestWriterRecordAssignsDefaultsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	bus := &captureBus{}
	w := NewWriter(store, bus, testLogger())

	stored, err := w.Record(context.Background(), domain.EventRecord{
		AccountID: "tel/modem",
		Address:   "0612345678",
		Category:  domain.CategoryCall,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if stored.ID == uuid.Nil {
		t.Fatal("expected an event id to be assigned")
	}
	if stored.EndedAt.IsZero() || stored.StartedAt.IsZero() {
		t.Fatal("expected zero times to be defaulted")
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.published))
	}
	added, ok := bus.published[0].(busevents.EventsAdded)
	if !ok {
		t.Fatalf("expected EventsAdded, got %T", bus.published[0])
	}
	if len(added.Events) != 1 || added.Events[0].ID != stored.ID {
		t.Fatal("the published batch should carry the stored record")
	}
}

func TestWriterRecordSanitizesSnippet(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, &captureBus{}, testLogger())

	stored, err := w.Record(context.Background(), domain.EventRecord{
		AccountID: "jabber/account",
		Address:   "alice@example.org",
		Category:  domain.CategoryMessage,
		Snippet:   "<b>hello</b> there",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if stored.Snippet != "hello there" {
		t.Fatalf("expected markup stripped, got %q", stored.Snippet)
	}
}

func TestWriterRecordRequiresAccount(t *testing.T) {
	w := NewWriter(&fakeStore{}, &captureBus{}, testLogger())

	_, err := w.Record(context.Background(), domain.EventRecord{Address: "alice@example.org"})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected a validation kind, got %v", err)
	}
}

func TestWriterRemovePublishesDeletion(t *testing.T) {
	store := &fakeStore{}
	bus := &captureBus{}
	w := NewWriter(store, bus, testLogger())

	id := uuid.New()
	if err := w.Remove(context.Background(), id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != id {
		t.Fatal("expected the store delete to run")
	}
	deleted, ok := bus.published[0].(busevents.EventDeleted)
	if !ok || deleted.EventID != id {
		t.Fatalf("expected an EventDeleted for %s, got %#v", id, bus.published[0])
	}
}

func TestWriterRemoveMissingEvent(t *testing.T) {
	store := &fakeStore{missing: true}
	bus := &captureBus{}
	w := NewWriter(store, bus, testLogger())

	err := w.Remove(context.Background(), uuid.New())
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("expected a not-found error, got %v", err)
	}
	if len(bus.published) != 0 {
		t.Fatal("nothing may be published for a missing event")
	}
}
