// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
)

// =============================================================================
// Communication Event Feed
// =============================================================================

// EventsAdded is published when new communication events have been stored.
type EventsAdded struct {
	Events []domain.EventRecord `json:"events"`
}

func (e EventsAdded) EventName() string { return "comm.events.added" }

// EventsUpdated is published when stored communication events changed.
type EventsUpdated struct {
	Events []domain.EventRecord `json:"events"`
}

func (e EventsUpdated) EventName() string { return "comm.events.updated" }

// EventDeleted is published when a stored communication event was removed.
type EventDeleted struct {
	EventID uuid.UUID `json:"eventId"`
}

func (e EventDeleted) EventName() string { return "comm.event.deleted" }

// =============================================================================
// Identity Graph Changes
// =============================================================================

// AddressChange describes a raw address whose contact resolution changed.
// A nil ContactID means the address no longer resolves to any contact
// (the contact was deleted, or the address moved away in a merge/split).
type AddressChange struct {
	AccountID string    `json:"accountId"`
	Address   string    `json:"address"`
	ContactID uuid.UUID `json:"contactId"`
}

// ContactsChanged is published when the mapping from raw addresses to
// contacts mutated.
type ContactsChanged struct {
	Changes []AddressChange `json:"changes"`
}

func (e ContactsChanged) EventName() string { return "contacts.changed" }

// ContactInfoChanged is published when a contact's address capabilities
// (phone / email / account-uri) changed.
type ContactInfoChanged struct {
	ContactIDs []uuid.UUID `json:"contactIds"`
}

func (e ContactInfoChanged) EventName() string { return "contacts.info_changed" }

// ContactDetailsChanged is published when a contact's details, including
// favorite status, changed.
type ContactDetailsChanged struct {
	ContactIDs []uuid.UUID `json:"contactIds"`
}

func (e ContactDetailsChanged) EventName() string { return "contacts.details_changed" }
