package service

import (
	"testing"

	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/phone"
	"commhistory_backend/platform/runloop"

	"github.com/google/uuid"
)

func newTestResolver() (*Resolver, *fakeCache, *runloop.Loop, *domain.Registry, *int) {
	loop := runloop.New()
	cache := newFakeCache(loop)
	res := NewResolver(cache, loop, testLogger())
	finished := 0
	res.OnFinished(func() { finished++ })
	return res, cache, loop, domain.NewRegistry(), &finished
}

func TestResolverSyncHitStillFinishesAsynchronously(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	it := item("alice")
	cache.addContact("jabber/account", "alice@example.org", it)
	rcpt := reg.Recipient("jabber/account", "alice@example.org")

	res.Add(rcpt)

	if rcpt.ContactID() != it.ContactID {
		t.Fatal("synchronous hit should settle the recipient immediately")
	}
	if !res.IsResolving() {
		t.Fatal("episode must stay open until the deferred check runs")
	}
	if *finished != 0 {
		t.Fatal("finished must never fire from inside Add")
	}

	loop.Flush()

	if *finished != 1 {
		t.Fatalf("expected exactly one finished notification, got %d", *finished)
	}
	if res.IsResolving() {
		t.Fatal("episode should be closed after the deferred check")
	}
}

func TestResolverAsyncCompletion(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	rcpt := reg.Recipient("jabber/account", "bob@example.org")
	res.Add(rcpt)
	loop.Flush()

	if !res.IsResolving() || *finished != 0 {
		t.Fatal("episode must stay open while a lookup is in flight")
	}
	if res.PendingCount() != 1 {
		t.Fatalf("expected 1 pending recipient, got %d", res.PendingCount())
	}

	it := item("bob")
	cache.completeNext(it)
	loop.Flush()

	if rcpt.ContactID() != it.ContactID {
		t.Fatal("completion should settle the recipient")
	}
	if *finished != 1 {
		t.Fatalf("expected exactly one finished notification, got %d", *finished)
	}
}

func TestResolverNoMatchCompletionSettlesToNone(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	rcpt := reg.Recipient("jabber/account", "ghost@example.org")
	res.Add(rcpt)

	cache.completeNext(nil)
	loop.Flush()

	if !rcpt.IsResolved() || rcpt.HasContact() {
		t.Fatal("nil completion should settle to resolved-none")
	}
	if *finished != 1 {
		t.Fatalf("expected exactly one finished notification, got %d", *finished)
	}
}

func TestResolverDeduplicatesInFlightLookups(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	rcpt := reg.Recipient("jabber/account", "carol@example.org")
	res.Add(rcpt)
	res.Add(rcpt)

	if cache.accountCalls != 1 {
		t.Fatalf("expected one cache lookup for a pending recipient, got %d", cache.accountCalls)
	}

	cache.completeNext(item("carol"))
	loop.Flush()

	if *finished != 1 {
		t.Fatalf("expected one finished notification for one episode, got %d", *finished)
	}
}

func TestResolverSkipsAlreadyResolvedUnlessForced(t *testing.T) {
	res, cache, loop, reg, _ := newTestResolver()

	rcpt := reg.Recipient("jabber/account", "dave@example.org")
	rcpt.SetResolved(uuid.New())

	res.Add(rcpt)
	loop.Flush()
	if cache.accountCalls != 0 {
		t.Fatal("resolved recipient must not be re-resolved")
	}

	res.SetForceResolving(true)
	res.Add(rcpt)
	loop.Flush()
	if cache.accountCalls == 0 {
		t.Fatal("force-resolving must re-resolve settled recipients")
	}
}

func TestResolverEmptyKeyFinishesImmediately(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	rcpt := reg.Recipient("", "nobody@example.org")
	res.Add(rcpt)
	loop.Flush()

	if cache.accountCalls != 0 || cache.phoneCalls != 0 {
		t.Fatal("empty-key recipients must not reach the cache")
	}
	if *finished != 1 {
		t.Fatalf("expected the episode to finish, got %d notifications", *finished)
	}
}

func TestResolverPhoneCompletionSettlesAllMatchingNumbers(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	// The same line stored under two different accounts and formats.
	first := reg.Recipient("tel/modem", "0612345678")
	second := reg.Recipient("tel/voip", "+31612345678")
	res.Add(first, second)

	if res.PendingCount() != 2 {
		t.Fatalf("expected 2 pending recipients, got %d", res.PendingCount())
	}

	it := item("erin")
	cache.phoneTable[phone.Minimize("0612345678")] = it

	// One number-only completion covers every matching pending recipient.
	loop.Post(func() { res.AddressResolved("", "0612345678", it) })
	loop.Flush()

	if first.ContactID() != it.ContactID || second.ContactID() != it.ContactID {
		t.Fatal("both recipients on the same line should settle from one completion")
	}
	if *finished != 1 {
		t.Fatalf("expected exactly one finished notification, got %d", *finished)
	}
}

func TestResolverPhoneCompletionLeavesOtherNumbersPending(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	matching := reg.Recipient("tel/modem", "0612345678")
	other := reg.Recipient("tel/modem", "0687654321")
	res.Add(matching, other)

	it := item("frank")
	cache.phoneTable[phone.Minimize("0612345678")] = it

	loop.Post(func() { res.AddressResolved("", "+31612345678", it) })
	loop.Flush()

	if matching.ContactID() != it.ContactID {
		t.Fatal("matching number should settle")
	}
	if other.IsResolved() {
		t.Fatal("other number must stay pending")
	}
	if *finished != 0 {
		t.Fatal("episode must stay open while a recipient is pending")
	}

	loop.Post(func() { res.AddressResolved("", "0687654321", nil) })
	loop.Flush()

	if !other.IsResolved() || *finished != 1 {
		t.Fatalf("expected episode to close after last completion, finished=%d", *finished)
	}
}

func TestResolverDiscardsCompletionWithEmptyAddress(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	rcpt := reg.Recipient("jabber/account", "grace@example.org")
	res.Add(rcpt)

	loop.Post(func() { res.AddressResolved("jabber/account", "", item("grace")) })
	loop.Flush()

	if rcpt.IsResolved() || *finished != 0 {
		t.Fatal("malformed completion must be discarded")
	}

	cache.completeNext(item("grace"))
	loop.Flush()
	if !rcpt.IsResolved() || *finished != 1 {
		t.Fatal("valid completion should still settle the episode")
	}
}

func TestResolverCloseAbandonsPending(t *testing.T) {
	res, cache, loop, reg, finished := newTestResolver()

	res.Add(reg.Recipient("jabber/account", "heidi@example.org"))
	res.Close()
	loop.Flush()

	if len(cache.unregistered) != 1 {
		t.Fatal("Close must deregister from the cache")
	}
	if res.IsResolving() || res.PendingCount() != 0 {
		t.Fatal("Close must abandon the pending set")
	}
	if *finished != 0 {
		t.Fatal("no completion may fire after Close")
	}
}
