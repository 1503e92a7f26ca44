package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestRegistryInternsByKey(t *testing.T) {
	reg := NewRegistry()

	a := reg.Recipient("tel/modem", "0612345678")
	b := reg.Recipient("tel/modem", "0612345678")
	if a != b {
		t.Fatal("same key must return the same recipient")
	}

	c := reg.Recipient("tel/modem", "0687654321")
	if a == c {
		t.Fatal("different addresses must not share a recipient")
	}

	contactID := uuid.New()
	a.SetResolved(contactID)
	if b.ContactID() != contactID {
		t.Fatal("resolution must be visible through every reference")
	}
}

func TestEmptyKeyIsSettledEagerly(t *testing.T) {
	reg := NewRegistry()

	cases := []Key{
		{AccountID: "", Address: "0612345678"},
		{AccountID: "tel/modem", Address: ""},
		{AccountID: "", Address: ""},
	}
	for _, key := range cases {
		r := reg.Recipient(key.AccountID, key.Address)
		if !r.IsResolved() {
			t.Fatalf("recipient %+v should be resolved to none immediately", key)
		}
		if r.HasContact() {
			t.Fatalf("recipient %+v should not have a contact", key)
		}

		// Identity changes cannot re-open an empty key.
		r.ClearResolution()
		if !r.IsResolved() {
			t.Fatalf("recipient %+v must stay settled after ClearResolution", key)
		}
	}
}

func TestPhoneRecipientsMatchByMinimizedNumber(t *testing.T) {
	reg := NewRegistry()

	national := reg.Recipient("tel/modem", "0612345678")
	international := reg.Recipient("tel/other", "+31612345678")

	if !national.IsPhoneNumber() {
		t.Fatal("telephony account address should be a phone number")
	}
	if !international.MatchesPhoneNumber(national.MinimizedNumber()) {
		t.Fatal("differently formatted forms of one number must match")
	}

	im := reg.Recipient("jabber/account", "someone@example.org")
	if im.IsPhoneNumber() {
		t.Fatal("non-telephony address must not be treated as a phone number")
	}
	if im.MatchesPhoneNumber(national.MinimizedNumber()) {
		t.Fatal("non-phone recipient must never match a number")
	}
}

func TestSetResolvedNilMeansNoContact(t *testing.T) {
	reg := NewRegistry()
	r := reg.Recipient("jabber/account", "someone@example.org")

	if r.IsResolved() {
		t.Fatal("fresh recipient should be pending")
	}

	r.SetResolved(uuid.Nil)
	if !r.IsResolved() || r.HasContact() {
		t.Fatal("nil contact id should settle to resolved-none")
	}

	contactID := uuid.New()
	r.SetResolved(contactID)
	if !r.HasContact() || r.ContactID() != contactID {
		t.Fatal("expected contact resolution")
	}

	r.ClearResolution()
	if r.IsResolved() || r.ContactID() != uuid.Nil {
		t.Fatal("ClearResolution should return to pending")
	}
}

func TestRegistryByContact(t *testing.T) {
	reg := NewRegistry()
	contactID := uuid.New()

	reg.Recipient("tel/modem", "0612345678").SetResolved(contactID)
	reg.Recipient("jabber/account", "someone@example.org").SetResolved(contactID)
	reg.Recipient("tel/modem", "0687654321").SetResolved(uuid.New())
	reg.Recipient("tel/modem", "0611111111")

	if got := len(reg.ByContact(contactID)); got != 2 {
		t.Fatalf("expected 2 recipients for contact, got %d", got)
	}
}

func TestParseCapabilities(t *testing.T) {
	caps := ParseCapabilities([]string{"phone", "EMAIL", " account "})
	if caps != CapPhoneNumber|CapEmailAddress|CapAccountURI {
		t.Fatalf("unexpected capability set %b", caps)
	}

	if ParseCapabilities([]string{"bogus"}) != 0 {
		t.Fatal("unknown names should parse to no capabilities")
	}

	if !(CapPhoneNumber | CapEmailAddress).HasAny(CapEmailAddress) {
		t.Fatal("HasAny should report present capability")
	}
	if (CapPhoneNumber).HasAny(CapAccountURI) {
		t.Fatal("HasAny should not report absent capability")
	}
}

func TestEventMatchesCategory(t *testing.T) {
	reg := NewRegistry()
	ev := reg.Hydrate(EventRecord{AccountID: "tel/modem", Address: "0612345678", Category: CategoryCall})

	if !ev.MatchesCategory(CategoryAny) {
		t.Fatal("zero mask must match everything")
	}
	if !ev.MatchesCategory(CategoryCall | CategoryVoicemail) {
		t.Fatal("expected call to match call|voicemail mask")
	}
	if ev.MatchesCategory(CategoryMessage) {
		t.Fatal("call must not match message-only mask")
	}
}

func TestHydrateSharesRecipients(t *testing.T) {
	reg := NewRegistry()

	first := reg.Hydrate(EventRecord{ID: uuid.New(), AccountID: "tel/modem", Address: "0612345678"})
	second := reg.Hydrate(EventRecord{ID: uuid.New(), AccountID: "tel/modem", Address: "0612345678"})

	if first.Recipient != second.Recipient {
		t.Fatal("events for the same address must share one recipient")
	}

	contactID := uuid.New()
	first.Recipient.SetResolved(contactID)
	if second.ContactID() != contactID {
		t.Fatal("resolving one event's recipient must resolve the other")
	}
}
