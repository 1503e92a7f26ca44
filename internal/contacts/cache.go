// Package contacts provides the identity cache: the service that maps raw
// communication addresses to stable contact identities and their
// favorite/capability flags.
package contacts

import (
	"commhistory_backend/internal/recent/domain"

	"github.com/google/uuid"
)

// Item is a cached contact entry.
type Item struct {
	ContactID    uuid.UUID
	DisplayName  string
	Favorite     bool
	Capabilities domain.Capabilities
}

// ResolveListener receives asynchronous resolution completions.
//
// AddressResolved is invoked on the run loop with either an exact
// (accountID, address) key, or, for phone numbers, with an empty accountID
// and only the number, meaning "this number now has an entry" - the listener
// must then select the best match per pending address itself. A nil item
// means the address resolved to no contact.
type ResolveListener interface {
	AddressResolved(accountID, address string, item *Item)
}

// Cache is the identity cache consumed by the resolution pipeline. All
// methods must be called from run loop tasks; completions are likewise
// delivered as loop tasks.
type Cache interface {
	// ResolveByAccount resolves an exact (accountID, address) pair. A non-nil
	// return is a synchronous hit; nil means the lookup continues
	// asynchronously and the listener will receive exactly one
	// AddressResolved callback for the pair, possibly with a nil item.
	ResolveByAccount(listener ResolveListener, accountID, address string) *Item

	// ResolveByPhone resolves a phone number by its minimized form. The
	// asynchronous completion may carry only the number (empty account id).
	ResolveByPhone(listener ResolveListener, number string) *Item

	// LookupPhone returns the best locally known match for a phone number,
	// or nil. It never triggers an asynchronous lookup.
	LookupPhone(number string) *Item

	// IsFavorite reports whether the contact is currently marked favorite.
	IsFavorite(contactID uuid.UUID) bool

	// Capabilities returns the contact's current address capability flags.
	Capabilities(contactID uuid.UUID) domain.Capabilities

	// UnregisterListener drops any pending completions for the listener.
	// Listeners must deregister on teardown.
	UnregisterListener(listener ResolveListener)
}
