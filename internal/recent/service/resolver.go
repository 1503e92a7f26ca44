// Package service implements the recent-contacts aggregation engine: the
// contact resolver, the bounded aggregator, and the identity-change reactor.
// Everything in this package runs on a single run loop; none of the state is
// safe to touch from other goroutines.
package service

import (
	"commhistory_backend/internal/contacts"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/phone"
	"commhistory_backend/platform/runloop"

	"github.com/google/uuid"
)

// Resolver drives asynchronous resolution of recipients against the contact
// cache. It deduplicates in-flight lookups by recipient key and guarantees
// exactly one finished notification per resolution episode, delivered
// asynchronously even when every lookup hits synchronously.
type Resolver struct {
	cache contacts.Cache
	loop  *runloop.Loop
	log   *logger.Logger

	pending        map[domain.Key]*domain.Recipient
	resolving      bool
	forceResolving bool
	onFinished     func()
}

// NewResolver creates a resolver using the given cache and run loop.
func NewResolver(cache contacts.Cache, loop *runloop.Loop, log *logger.Logger) *Resolver {
	return &Resolver{
		cache:   cache,
		loop:    loop,
		log:     log.WithComponent("resolver"),
		pending: make(map[domain.Key]*domain.Recipient),
	}
}

// OnFinished sets the callback invoked when a resolution episode completes.
func (r *Resolver) OnFinished(fn func()) {
	r.onFinished = fn
}

// ForceResolving returns whether already-resolved recipients are re-resolved.
func (r *Resolver) ForceResolving() bool {
	return r.forceResolving
}

// SetForceResolving makes Add re-resolve recipients that already have a
// settled resolution.
func (r *Resolver) SetForceResolving(enabled bool) {
	r.forceResolving = enabled
}

// IsResolving reports whether a resolution episode is in progress. It is
// true from the first Add until the pending set drains and the deferred
// finished-check has run.
func (r *Resolver) IsResolving() bool {
	return r.resolving
}

// PendingCount returns the number of recipients awaiting completion.
func (r *Resolver) PendingCount() int {
	return len(r.pending)
}

// Add submits recipients for resolution. Already-resolved recipients are
// skipped unless force-resolving is enabled; recipients equal to a pending
// entry are never re-submitted.
func (r *Resolver) Add(recipients ...*domain.Recipient) {
	for _, rcpt := range recipients {
		r.resolve(rcpt)
	}
	r.checkFinishedAsync()
}

func (r *Resolver) resolve(rcpt *domain.Recipient) {
	if !r.forceResolving && rcpt.IsResolved() {
		return
	}

	if rcpt.AccountID() == "" {
		// The identity source is required to always carry an account id;
		// treat this as a caller bug and settle the recipient.
		r.log.Error("recipient reached resolution without an account id", "address", rcpt.Address())
	}
	if rcpt.AccountID() == "" || rcpt.Address() == "" {
		rcpt.SetResolved(uuid.Nil)
		return
	}

	if _, inFlight := r.pending[rcpt.Key()]; inFlight {
		return
	}

	var item *contacts.Item
	if rcpt.IsPhoneNumber() {
		item = r.cache.ResolveByPhone(r, rcpt.Address())
	} else {
		item = r.cache.ResolveByAccount(r, rcpt.AccountID(), rcpt.Address())
	}

	if item != nil {
		applyItem(rcpt, item)
	} else {
		r.pending[rcpt.Key()] = rcpt
	}
}

// checkFinishedAsync opens a resolution episode and, when nothing went
// async, schedules the finished-check as a deferred task. Completion is
// never signalled from inside Add.
func (r *Resolver) checkFinishedAsync() {
	if r.resolving {
		return
	}
	r.resolving = true
	if len(r.pending) == 0 {
		r.loop.Post(func() { r.checkFinished() })
	}
}

// checkFinished is idempotent; it fires the finished callback only when an
// episode is open and the pending set has drained, and never twice for one
// episode.
func (r *Resolver) checkFinished() bool {
	if r.resolving && len(r.pending) == 0 {
		r.resolving = false
		if r.onFinished != nil {
			r.onFinished()
		}
		return true
	}
	return false
}

// AddressResolved implements contacts.ResolveListener.
//
// An empty account id signals a phone-number completion carrying only the
// number: every pending phone recipient on the same minimized number is then
// re-resolved individually to its own best match.
func (r *Resolver) AddressResolved(accountID, address string, item *contacts.Item) {
	if address == "" {
		r.log.Warn("resolution completion with empty address discarded", "account_id", accountID)
		return
	}

	if accountID == "" {
		minimized := phone.Minimize(address)
		for key, rcpt := range r.pending {
			if rcpt.MatchesPhoneNumber(minimized) {
				applyItem(rcpt, r.cache.LookupPhone(rcpt.Address()))
				delete(r.pending, key)
			}
		}
	} else {
		key := domain.Key{AccountID: accountID, Address: address}
		if rcpt, ok := r.pending[key]; ok {
			applyItem(rcpt, item)
			delete(r.pending, key)
		}
	}

	r.checkFinished()
}

// Close abandons the pending set and deregisters from the cache. No
// completion is delivered after Close.
func (r *Resolver) Close() {
	r.cache.UnregisterListener(r)
	r.pending = make(map[domain.Key]*domain.Recipient)
	r.resolving = false
}

func applyItem(rcpt *domain.Recipient, item *contacts.Item) {
	if item == nil {
		rcpt.SetResolved(uuid.Nil)
		return
	}
	rcpt.SetResolved(item.ContactID)
}
