package service

import (
	"testing"

	busevents "commhistory_backend/internal/events"
	"commhistory_backend/internal/recent/domain"

	"github.com/google/uuid"
)

type reactorFixture struct {
	*aggFixture
	reactor *Reactor
}

func newReactorFixture(t *testing.T, opts Options) *reactorFixture {
	t.Helper()
	f := newAggFixture(opts)

	alice := item("alice")
	bob := item("bob")
	f.cache.addContact("jabber/account", "alice@example.org", alice)
	f.cache.addContact("jabber/account", "bob@example.org", bob)
	f.cache.caps[alice.ContactID] = domain.CapPhoneNumber
	f.cache.caps[bob.ContactID] = domain.CapPhoneNumber

	f.repo.records = []domain.EventRecord{
		rec("jabber/account", "alice@example.org", domain.CategoryMessage, 1),
		rec("jabber/account", "bob@example.org", domain.CategoryMessage, 2),
	}
	f.load(t)

	if len(f.agg.Rows()) != 2 {
		t.Fatalf("fixture expected 2 rows, got %d", len(f.agg.Rows()))
	}

	return &reactorFixture{
		aggFixture: f,
		reactor:    NewReactor(f.agg, f.reg, f.cache, opts, testLogger()),
	}
}

func TestContactRemovalDropsItsRow(t *testing.T) {
	f := newReactorFixture(t, Options{})

	// Alice's address no longer resolves to any contact.
	f.reactor.OnContactsChanged([]busevents.AddressChange{
		{AccountID: "jabber/account", Address: "alice@example.org", ContactID: uuid.Nil},
	})

	rows := f.agg.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 remaining row, got %d", len(rows))
	}
	if rows[0].Event.Address != "bob@example.org" {
		t.Fatal("the unaffected contact should remain")
	}

	// The shared recipient itself is re-settled.
	rcpt := f.reg.Lookup(domain.Key{AccountID: "jabber/account", Address: "alice@example.org"})
	if rcpt == nil || rcpt.HasContact() {
		t.Fatal("the remapped recipient should no longer carry a contact")
	}
}

func TestAddressRemapToAnotherContactKeepsRow(t *testing.T) {
	f := newReactorFixture(t, Options{})

	other := uuid.New()
	f.reactor.OnContactsChanged([]busevents.AddressChange{
		{AccountID: "jabber/account", Address: "alice@example.org", ContactID: other},
	})

	if len(f.agg.Rows()) != 2 {
		t.Fatal("a remap to another contact must not drop the row")
	}
	rcpt := f.reg.Lookup(domain.Key{AccountID: "jabber/account", Address: "alice@example.org"})
	if rcpt.ContactID() != other {
		t.Fatal("the recipient should resolve to the new contact")
	}
}

func TestUnknownAddressChangeIsIgnored(t *testing.T) {
	f := newReactorFixture(t, Options{})

	f.reactor.OnContactsChanged([]busevents.AddressChange{
		{AccountID: "jabber/account", Address: "stranger@example.org", ContactID: uuid.Nil},
	})

	if len(f.agg.Rows()) != 2 {
		t.Fatal("changes for unknown addresses must not touch the collection")
	}
}

func TestFavoriteChangeRemovesRowWhenExcluded(t *testing.T) {
	f := newReactorFixture(t, Options{ExcludeFavorites: true})

	aliceID := f.agg.Rows()[0].ContactID
	f.cache.favorites[aliceID] = true
	f.reactor.OnContactDetailsChanged([]uuid.UUID{aliceID})

	rows := f.agg.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected the favorite's row removed, got %d rows", len(rows))
	}
	if rows[0].ContactID == aliceID {
		t.Fatal("the wrong row was removed")
	}
}

func TestFavoriteChangeIgnoredWhenNotExcluded(t *testing.T) {
	f := newReactorFixture(t, Options{})

	aliceID := f.agg.Rows()[0].ContactID
	f.cache.favorites[aliceID] = true
	f.reactor.OnContactDetailsChanged([]uuid.UUID{aliceID})

	if len(f.agg.Rows()) != 2 {
		t.Fatal("favorite changes are irrelevant without the exclusion filter")
	}
}

func TestCapabilityChangeRemovesNonMatchingRow(t *testing.T) {
	f := newReactorFixture(t, Options{RequiredCapabilities: domain.CapPhoneNumber})

	aliceID := f.agg.Rows()[0].ContactID
	bobID := f.agg.Rows()[1].ContactID

	f.cache.caps[aliceID] = domain.CapEmailAddress
	f.reactor.OnContactInfoChanged([]uuid.UUID{aliceID, bobID})

	rows := f.agg.Rows()
	if len(rows) != 1 || rows[0].ContactID != bobID {
		t.Fatalf("expected only the still-matching contact, got %v", contactIDs(rows))
	}
}

func TestInfoChangeChecksFavoritesToo(t *testing.T) {
	f := newReactorFixture(t, Options{ExcludeFavorites: true})

	aliceID := f.agg.Rows()[0].ContactID
	f.cache.favorites[aliceID] = true
	f.reactor.OnContactInfoChanged([]uuid.UUID{aliceID})

	if len(f.agg.Rows()) != 1 {
		t.Fatal("an info change batch can also carry a favorite flip")
	}
}
