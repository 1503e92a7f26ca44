package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category is a bitmask classifying communication events.
type Category uint32

const (
	// CategoryAny matches every event when used as a mask.
	CategoryAny Category = 0

	CategoryCall      Category = 1 << 0
	CategoryVoicemail Category = 1 << 1
	CategoryMessage   Category = 1 << 2
)

// Direction indicates whether an event was sent or received locally.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionInbound
	DirectionOutbound
)

// Event is a single communication event (a call or a message) with the
// shared recipient it was exchanged with. Recipients carry the resolution
// state; the event itself is immutable after load.
type Event struct {
	ID        uuid.UUID
	AccountID string
	Address   string
	Category  Category
	Direction Direction
	StartedAt time.Time
	EndedAt   time.Time
	Snippet   string

	Recipient *Recipient
}

// ContactID returns the resolved contact of the event's recipient, or
// uuid.Nil when it is unresolved or resolved to none.
func (e Event) ContactID() uuid.UUID {
	if e.Recipient == nil {
		return uuid.Nil
	}
	return e.Recipient.ContactID()
}

// IsResolved reports whether the event's recipient has a settled resolution.
func (e Event) IsResolved() bool {
	return e.Recipient != nil && e.Recipient.IsResolved()
}

// MatchesCategory reports whether the event falls inside the mask.
// A zero mask matches everything.
func (e Event) MatchesCategory(mask Category) bool {
	return mask == CategoryAny || e.Category&mask != 0
}

// EventRecord is the plain storage and wire form of an event, carrying no
// shared recipient state. Records are hydrated into Events through a
// Registry so that recipients are interned.
type EventRecord struct {
	ID        uuid.UUID `json:"id"`
	AccountID string    `json:"accountId"`
	Address   string    `json:"address"`
	Category  Category  `json:"category"`
	Direction Direction `json:"direction"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Snippet   string    `json:"snippet,omitempty"`
}

// Hydrate converts a stored record into an Event sharing the registry's
// recipient for its address.
func (g *Registry) Hydrate(rec EventRecord) Event {
	return Event{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		Address:   rec.Address,
		Category:  rec.Category,
		Direction: rec.Direction,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Snippet:   rec.Snippet,
		Recipient: g.Recipient(rec.AccountID, rec.Address),
	}
}

// Record converts the event back to its plain storage form.
func (e Event) Record() EventRecord {
	return EventRecord{
		ID:        e.ID,
		AccountID: e.AccountID,
		Address:   e.Address,
		Category:  e.Category,
		Direction: e.Direction,
		StartedAt: e.StartedAt,
		EndedAt:   e.EndedAt,
		Snippet:   e.Snippet,
	}
}
