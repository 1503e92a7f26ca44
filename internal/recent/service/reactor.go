package service

import (
	"commhistory_backend/internal/contacts"
	busevents "commhistory_backend/internal/events"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/logger"

	"github.com/google/uuid"
)

// Reactor keeps the aggregator's collection consistent when the identity
// graph mutates independently of the event stream: address remaps,
// capability changes, and favorite changes drive removals only, never a
// re-merge. All methods must be called from run loop tasks.
type Reactor struct {
	agg      *Aggregator
	registry *domain.Registry
	cache    contacts.Cache
	opts     Options
	log      *logger.Logger
}

// NewReactor creates a reactor over the aggregator's collection.
func NewReactor(agg *Aggregator, registry *domain.Registry, cache contacts.Cache, opts Options, log *logger.Logger) *Reactor {
	return &Reactor{
		agg:      agg,
		registry: registry,
		cache:    cache,
		opts:     opts,
		log:      log.WithComponent("reactor"),
	}
}

// OnContactsChanged applies address-to-contact remaps: affected recipients
// are re-settled with their new resolution, then every row whose recipient
// no longer resolves to any contact is removed.
func (r *Reactor) OnContactsChanged(changes []busevents.AddressChange) {
	for _, change := range changes {
		key := domain.Key{AccountID: change.AccountID, Address: change.Address}
		if rcpt := r.registry.Lookup(key); rcpt != nil {
			rcpt.SetResolved(change.ContactID)
		}
	}

	rows := r.agg.Rows()
	for row := 0; row < len(rows); {
		if rows[row].Event.Recipient.HasContact() {
			row++
			continue
		}
		r.agg.DeleteEvent(rows[row].Event.ID)
		rows = r.agg.Rows()
	}
}

// OnContactInfoChanged re-checks the capability filter for the changed
// contacts and removes rows that no longer match. When favorites are
// excluded, favorite status is re-checked as well, since the same mutation
// batch can carry both.
func (r *Reactor) OnContactInfoChanged(contactIDs []uuid.UUID) {
	if r.opts.RequiredCapabilities != 0 {
		nonmatching := make(map[uuid.UUID]struct{})
		for _, id := range contactIDs {
			if !r.cache.Capabilities(id).HasAny(r.opts.RequiredCapabilities) {
				nonmatching[id] = struct{}{}
			}
		}
		r.removeContacts(nonmatching)
	}

	if r.opts.ExcludeFavorites {
		r.removeFavorites(contactIDs)
	}
}

// OnContactDetailsChanged removes rows whose contact has become a favorite,
// when favorites are excluded.
func (r *Reactor) OnContactDetailsChanged(contactIDs []uuid.UUID) {
	if r.opts.ExcludeFavorites {
		r.removeFavorites(contactIDs)
	}
}

func (r *Reactor) removeFavorites(contactIDs []uuid.UUID) {
	favorites := make(map[uuid.UUID]struct{})
	for _, id := range contactIDs {
		if r.cache.IsFavorite(id) {
			favorites[id] = struct{}{}
		}
	}
	r.removeContacts(favorites)
}

// removeContacts deletes the rows owned by the given contacts. At most one
// row exists per contact, so each hit shrinks the target set.
func (r *Reactor) removeContacts(contactIDs map[uuid.UUID]struct{}) {
	if len(contactIDs) == 0 {
		return
	}

	rows := r.agg.Rows()
	for row := 0; row < len(rows); {
		id := rows[row].ContactID
		if _, hit := contactIDs[id]; !hit {
			row++
			continue
		}
		r.agg.DeleteEvent(rows[row].Event.ID)
		rows = r.agg.Rows()

		delete(contactIDs, id)
		if len(contactIDs) == 0 {
			return
		}
	}
}
