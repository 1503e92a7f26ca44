package service

import (
	"context"
	"sort"

	"commhistory_backend/internal/contacts"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/apperr"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/runloop"

	"github.com/google/uuid"
)

// EventReader is the slice of the event store the aggregator depends on.
type EventReader interface {
	// LoadRecent returns the latest event per (account, address) pair inside
	// the category mask, newest first. A zero limit means no limit.
	LoadRecent(ctx context.Context, mask domain.Category, limit int) ([]domain.EventRecord, error)
}

// Options configures the aggregation.
type Options struct {
	// QueryLimit bounds the collection size; 0 means unlimited.
	QueryLimit int
	// ExcludeFavorites drops events whose contact is a favorite.
	ExcludeFavorites bool
	// RequiredCapabilities, when non-zero, keeps only contacts having at
	// least one of the required address capabilities.
	RequiredCapabilities domain.Capabilities
	// CategoryMask, when non-zero, keeps only events inside the mask.
	CategoryMask domain.Category
}

// Row is one entry of the aggregated collection: an event annotated with the
// contact it resolved to at insertion time.
type Row struct {
	Event     domain.Event
	ContactID uuid.UUID
}

// Aggregator maintains the bounded, per-contact-unique, end-time-descending
// collection of most recent contacts. Apart from Load, whose query runs on
// the caller's goroutine, all methods must be called from run loop tasks.
type Aggregator struct {
	opts     Options
	repo     EventReader
	cache    contacts.Cache
	registry *domain.Registry
	loop     *runloop.Loop
	log      *logger.Logger

	rows  []Row
	ready bool

	// mergeResolver settles the unresolved backlog one event at a time;
	// feedResolver settles whole batches arriving on the live update feed.
	mergeResolver *Resolver
	feedResolver  *Resolver

	// Merge pass state, accumulated across resolution round trips.
	unresolved       []domain.Event
	resolvedEvents   []domain.Event
	resolvedContacts map[uuid.UUID]struct{}
	merging          []domain.Event // events handed to mergeResolver
	feedQueue        []domain.Event // events handed to feedResolver

	observers     []Observer
	lastResolving bool
}

// NewAggregator creates an aggregator over the given store and cache.
func NewAggregator(repo EventReader, cache contacts.Cache, registry *domain.Registry, loop *runloop.Loop, opts Options, log *logger.Logger) *Aggregator {
	a := &Aggregator{
		opts:             opts,
		repo:             repo,
		cache:            cache,
		registry:         registry,
		loop:             loop,
		log:              log.WithComponent("aggregator"),
		resolvedContacts: make(map[uuid.UUID]struct{}),
	}
	a.mergeResolver = NewResolver(cache, loop, log)
	a.mergeResolver.OnFinished(a.mergeResolved)
	a.feedResolver = NewResolver(cache, loop, log)
	a.feedResolver.OnFinished(a.feedResolved)
	return a
}

// Resolving reports whether results are still settling: the initial load has
// not completed, or either resolver has an open episode.
func (a *Aggregator) Resolving() bool {
	return !a.ready || a.mergeResolver.IsResolving() || a.feedResolver.IsResolving()
}

// Ready reports whether the initial load has been merged.
func (a *Aggregator) Ready() bool {
	return a.ready
}

// Rows returns the live collection. Loop tasks only; callers must not
// mutate it.
func (a *Aggregator) Rows() []Row {
	return a.rows
}

// AddObserver registers an observer for structural deltas.
func (a *Aggregator) AddObserver(obs Observer) {
	a.observers = append(a.observers, obs)
}

// RemoveObserver deregisters a previously added observer.
func (a *Aggregator) RemoveObserver(obs Observer) {
	for i, o := range a.observers {
		if o == obs {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return
		}
	}
}

// Load fetches the recent-contact candidates from the store and schedules
// the merge. On query failure the collection is left untouched and the error
// is returned; no partial state is applied.
func (a *Aggregator) Load(ctx context.Context) error {
	limit := 0
	if a.opts.QueryLimit > 0 {
		// Over-fetch: several addresses may fold into one contact, and
		// favorites or capability filters can drop more.
		limit = 4 * a.opts.QueryLimit
	}

	records, err := a.repo.LoadRecent(ctx, a.opts.CategoryMask, limit)
	if err != nil {
		return apperr.Unavailable("load recent events failed", err).WithOp("recent.aggregator.load")
	}

	a.loop.Post(func() {
		a.reset()
		evts := a.hydrate(records)
		a.mergeEvents(evts)
		a.notifyResolvingChanged()
	})
	return nil
}

// OnEventsAdded merges a batch arriving from the live update feed, resolving
// its recipients first when needed. Loop tasks only.
func (a *Aggregator) OnEventsAdded(records []domain.EventRecord) {
	evts := a.hydrate(records)

	var pending []*domain.Recipient
	for _, ev := range evts {
		if !ev.IsResolved() {
			pending = append(pending, ev.Recipient)
		}
	}

	if len(pending) == 0 && !a.feedResolver.IsResolving() {
		a.mergeEvents(evts)
	} else {
		a.feedQueue = append(a.feedQueue, evts...)
		a.feedResolver.Add(pending...)
	}
	a.notifyResolvingChanged()
}

// OnEventsUpdated replaces matching rows in place. Loop tasks only.
func (a *Aggregator) OnEventsUpdated(records []domain.EventRecord) {
	for _, rec := range records {
		for i := range a.rows {
			if a.rows[i].Event.ID == rec.ID {
				ev := a.registry.Hydrate(rec)
				// The update can move the event to another address, so the
				// contact annotation is derived again from the new recipient.
				a.rows[i] = Row{Event: ev, ContactID: ev.ContactID()}
				a.notifyRowUpdated(i)
				break
			}
		}
	}
}

// OnEventDeleted removes the row holding the event, if present. Loop tasks
// only.
func (a *Aggregator) OnEventDeleted(eventID uuid.UUID) {
	a.DeleteEvent(eventID)
}

// DeleteEvent removes the row holding the given event id and reports whether
// a row was removed. Loop tasks only.
func (a *Aggregator) DeleteEvent(eventID uuid.UUID) bool {
	for i := range a.rows {
		if a.rows[i].Event.ID == eventID {
			a.rows = append(a.rows[:i], a.rows[i+1:]...)
			a.notifyRowsRemoved(i, i)
			return true
		}
	}
	return false
}

// Close tears down both resolvers.
func (a *Aggregator) Close() {
	a.mergeResolver.Close()
	a.feedResolver.Close()
}

func (a *Aggregator) hydrate(records []domain.EventRecord) []domain.Event {
	evts := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		evts = append(evts, a.registry.Hydrate(rec))
	}
	return evts
}

func (a *Aggregator) reset() {
	if n := len(a.rows); n > 0 {
		a.rows = nil
		a.notifyRowsRemoved(0, n-1)
	}
	a.ready = false
	a.unresolved = nil
	a.resolvedEvents = nil
	a.resolvedContacts = make(map[uuid.UUID]struct{})
	a.merging = nil
}

// mergeResolved re-enters the merge with the backlog event whose resolution
// just completed.
func (a *Aggregator) mergeResolved() {
	evts := a.merging
	a.merging = nil
	a.mergeEvents(evts)
}

// feedResolved merges the queued live-feed events once their batch settled.
func (a *Aggregator) feedResolved() {
	evts := a.feedQueue
	a.feedQueue = nil
	a.mergeEvents(evts)
}

// mergeEvents runs one merge pass. Batches are assumed pre-sorted by event
// end time descending; relative order is preserved. The pass either hands
// the next backlog event to the merge resolver and returns, or applies the
// accumulated structural change and settles.
func (a *Aggregator) mergeEvents(events []domain.Event) {
	for _, ev := range events {
		if !ev.MatchesCategory(a.opts.CategoryMask) {
			continue
		}

		if !ev.IsResolved() {
			a.unresolved = append(a.unresolved, ev)
			continue
		}

		contactID := ev.ContactID()
		if contactID == uuid.Nil {
			// Resolved to no contact; nothing to aggregate under.
			continue
		}
		if _, seen := a.resolvedContacts[contactID]; seen {
			// Batches are newest-first: the first event per contact wins.
			continue
		}
		if a.opts.ExcludeFavorites && a.cache.IsFavorite(contactID) {
			continue
		}
		if a.opts.RequiredCapabilities != 0 && !a.cache.Capabilities(contactID).HasAny(a.opts.RequiredCapabilities) {
			continue
		}

		a.resolvedContacts[contactID] = struct{}{}
		a.resolvedEvents = append(a.resolvedEvents, ev)

		if a.opts.QueryLimit > 0 && len(a.resolvedEvents) == a.opts.QueryLimit {
			break
		}
	}

	if len(a.unresolved) > 0 {
		if a.opts.QueryLimit == 0 || len(a.resolvedEvents) < a.opts.QueryLimit {
			next := a.unresolved[0]
			a.unresolved = a.unresolved[1:]
			a.merging = append(a.merging, next)
			a.mergeResolver.Add(next.Recipient)
			a.notifyResolvingChanged()
			return
		}

		// The limit is already met by better-ranked events; these could
		// never displace them.
		a.unresolved = nil
	}

	a.applyMerge()

	a.ready = true
	a.notifyResolvingChanged()
}

// applyMerge computes and applies the structural delta for the accumulated
// resolved events: rows superseded by a newer event for the same contact are
// removed, the oldest surviving rows are trimmed to keep the limit, removals
// are applied in maximal contiguous runs, and the new events are inserted at
// their time-sorted positions so the collection stays end-time descending.
func (a *Aggregator) applyMerge() {
	if len(a.resolvedEvents) == 0 {
		return
	}

	removeSet := make(map[int]struct{})
	rowCount := len(a.rows)
	for row := 0; row < rowCount; row++ {
		if _, seen := a.resolvedContacts[a.rows[row].ContactID]; seen {
			removeSet[row] = struct{}{}
		}
	}

	if a.opts.QueryLimit > 0 {
		// Only trim when the net effect would exceed the limit; a pass that
		// nets a size decrease legitimately trims nothing.
		trimCount := rowCount + len(a.resolvedEvents) - len(removeSet) - a.opts.QueryLimit
		removeIndex := rowCount - 1
		for trimCount > 0 {
			for removeIndex >= 0 {
				if _, marked := removeSet[removeIndex]; !marked {
					break
				}
				removeIndex--
			}
			if removeIndex < 0 {
				break
			}
			removeSet[removeIndex] = struct{}{}
			removeIndex--
			trimCount--
		}
	}

	indices := make([]int, 0, len(removeSet))
	for idx := range removeSet {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	// Remove from the tail inward so earlier indices stay valid, collapsing
	// consecutive indices into single runs.
	for len(indices) > 0 {
		end := indices[len(indices)-1]
		runLen := 1
		for len(indices)-runLen > 0 && indices[len(indices)-1-runLen] == end-runLen {
			runLen++
		}
		indices = indices[:len(indices)-runLen]

		start := end - runLen + 1
		a.rows = append(a.rows[:start], a.rows[end+1:]...)
		a.notifyRowsRemoved(start, end)
	}

	newRows := make([]Row, 0, len(a.resolvedEvents))
	for _, ev := range a.resolvedEvents {
		newRows = append(newRows, Row{Event: ev, ContactID: ev.ContactID()})
	}

	// Both sides are end-time descending, so inserting the new rows at their
	// sorted positions is a linear merge. Each run of consecutive new rows is
	// announced as one insertion; a new row precedes surviving rows with the
	// same end time.
	old := a.rows
	merged := make([]Row, 0, len(old)+len(newRows))
	var runs [][2]int
	i, j := 0, 0
	for i < len(newRows) || j < len(old) {
		if i >= len(newRows) || (j < len(old) && old[j].Event.EndedAt.After(newRows[i].Event.EndedAt)) {
			merged = append(merged, old[j])
			j++
			continue
		}
		start := len(merged)
		for i < len(newRows) && (j >= len(old) || !old[j].Event.EndedAt.After(newRows[i].Event.EndedAt)) {
			merged = append(merged, newRows[i])
			i++
		}
		runs = append(runs, [2]int{start, len(merged) - 1})
	}
	a.rows = merged
	for _, run := range runs {
		a.notifyRowsInserted(run[0], run[1])
	}

	a.resolvedEvents = nil
	a.resolvedContacts = make(map[uuid.UUID]struct{})
}

func (a *Aggregator) notifyRowsInserted(start, end int) {
	for _, obs := range a.observers {
		obs.RowsInserted(start, end)
	}
}

func (a *Aggregator) notifyRowsRemoved(start, end int) {
	for _, obs := range a.observers {
		obs.RowsRemoved(start, end)
	}
}

func (a *Aggregator) notifyRowUpdated(index int) {
	for _, obs := range a.observers {
		obs.RowUpdated(index)
	}
}

func (a *Aggregator) notifyResolvingChanged() {
	current := a.Resolving()
	if current == a.lastResolving {
		return
	}
	a.lastResolving = current
	for _, obs := range a.observers {
		obs.ResolvingChanged(current)
	}
}
