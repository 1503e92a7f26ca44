// Package domain holds the core value types of the communication history
// engine: recipients, events, and their classification.
package domain

import (
	"strings"

	"commhistory_backend/platform/phone"

	"github.com/google/uuid"
)

// telephonyAccountPrefix marks accounts whose addresses are phone numbers.
// Addresses under any other account are matched verbatim.
const telephonyAccountPrefix = "tel/"

// IsPhoneAccount reports whether addresses of the given account are phone
// numbers and therefore compared by minimized number rather than exactly.
func IsPhoneAccount(accountID string) bool {
	return strings.HasPrefix(accountID, telephonyAccountPrefix)
}

// Capabilities is a bitset of address capabilities a contact can have.
type Capabilities uint8

const (
	CapPhoneNumber Capabilities = 1 << iota
	CapEmailAddress
	CapAccountURI
)

// HasAny reports whether at least one of the required capabilities is present.
func (c Capabilities) HasAny(required Capabilities) bool {
	return c&required != 0
}

// ParseCapabilities converts configuration strings into a capability bitset.
// Unknown values are ignored; config validation rejects them earlier.
func ParseCapabilities(names []string) Capabilities {
	var caps Capabilities
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "phone":
			caps |= CapPhoneNumber
		case "email":
			caps |= CapEmailAddress
		case "account":
			caps |= CapAccountURI
		}
	}
	return caps
}

// ResolutionState describes whether a recipient's contact is known.
type ResolutionState uint8

const (
	// ResolutionPending means no resolution has completed yet.
	ResolutionPending ResolutionState = iota
	// ResolutionNone means resolution completed and matched no contact.
	ResolutionNone
	// ResolutionContact means resolution completed with a contact match.
	ResolutionContact
)

// Key is the natural identity of a recipient. Equality and map hashing are
// defined over the key alone, independent of resolution state.
type Key struct {
	AccountID string
	Address   string
}

// Recipient is a raw communication address plus its resolved contact state.
// Instances are interned through a Registry so every event referencing the
// same address shares one value, and a single resolution settles all of them.
//
// Recipients are mutated only from run loop tasks.
type Recipient struct {
	accountID string
	address   string
	minimized string // minimized phone number, empty for non-phone addresses

	state     ResolutionState
	contactID uuid.UUID
}

func newRecipient(accountID, address string) *Recipient {
	r := &Recipient{
		accountID: accountID,
		address:   address,
	}
	if IsPhoneAccount(accountID) {
		r.minimized = phone.Minimize(address)
	}
	if accountID == "" || address == "" {
		// Can never match any contact.
		r.state = ResolutionNone
	}
	return r
}

// AccountID returns the local account the address belongs to.
func (r *Recipient) AccountID() string { return r.accountID }

// Address returns the raw remote address.
func (r *Recipient) Address() string { return r.address }

// Key returns the recipient's natural key.
func (r *Recipient) Key() Key {
	return Key{AccountID: r.accountID, Address: r.address}
}

// IsPhoneNumber reports whether the address is a phone number.
func (r *Recipient) IsPhoneNumber() bool { return r.minimized != "" }

// MinimizedNumber returns the minimized phone number form, or "" for
// non-phone addresses.
func (r *Recipient) MinimizedNumber() string { return r.minimized }

// MatchesPhoneNumber reports whether the recipient is a phone number whose
// minimized form equals the given minimized number.
func (r *Recipient) MatchesPhoneNumber(minimized string) bool {
	return r.minimized != "" && r.minimized == minimized
}

// IsResolved reports whether a resolution has completed, to a contact or to
// none.
func (r *Recipient) IsResolved() bool { return r.state != ResolutionPending }

// HasContact reports whether the recipient resolved to a contact.
func (r *Recipient) HasContact() bool { return r.state == ResolutionContact }

// ContactID returns the resolved contact id, or uuid.Nil when unresolved or
// resolved to none.
func (r *Recipient) ContactID() uuid.UUID {
	if r.state != ResolutionContact {
		return uuid.Nil
	}
	return r.contactID
}

// State returns the current resolution state.
func (r *Recipient) State() ResolutionState { return r.state }

// SetResolved records a completed resolution. A nil contact id marks the
// recipient as resolved to no contact.
func (r *Recipient) SetResolved(contactID uuid.UUID) {
	if contactID == uuid.Nil {
		r.state = ResolutionNone
		r.contactID = uuid.Nil
		return
	}
	r.state = ResolutionContact
	r.contactID = contactID
}

// ClearResolution returns the recipient to the pending state. Used when the
// identity graph changes and the previous resolution is no longer valid.
func (r *Recipient) ClearResolution() {
	// An empty key can still never resolve; keep it settled.
	if r.accountID == "" || r.address == "" {
		return
	}
	r.state = ResolutionPending
	r.contactID = uuid.Nil
}

// Registry interns recipients by key so that resolution state is shared by
// every event referencing the same address. Like the recipients themselves it
// must only be used from run loop tasks.
type Registry struct {
	entries map[Key]*Recipient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*Recipient)}
}

// Recipient returns the shared recipient for the given address, creating it
// on first use.
func (g *Registry) Recipient(accountID, address string) *Recipient {
	key := Key{AccountID: accountID, Address: address}
	if r, ok := g.entries[key]; ok {
		return r
	}
	r := newRecipient(accountID, address)
	g.entries[key] = r
	return r
}

// Lookup returns the shared recipient for the key, or nil if none has been
// created.
func (g *Registry) Lookup(key Key) *Recipient {
	return g.entries[key]
}

// ByContact returns all recipients currently resolved to the given contact.
func (g *Registry) ByContact(contactID uuid.UUID) []*Recipient {
	var out []*Recipient
	for _, r := range g.entries {
		if r.HasContact() && r.contactID == contactID {
			out = append(out, r)
		}
	}
	return out
}
