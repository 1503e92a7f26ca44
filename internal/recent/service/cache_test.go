package service

import (
	"io"
	"log/slog"

	"commhistory_backend/internal/contacts"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/phone"
	"commhistory_backend/platform/runloop"

	"github.com/google/uuid"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

type pendingLookup struct {
	listener  contacts.ResolveListener
	accountID string // empty for phone lookups
	address   string // raw number for phone lookups
}

// fakeCache is a scriptable identity cache. Entries in the sync maps are
// returned as synchronous hits; everything else parks in pending until the
// test completes it.
type fakeCache struct {
	loop *runloop.Loop

	syncByKey   map[domain.Key]*contacts.Item
	syncByPhone map[string]*contacts.Item // keyed by minimized number
	phoneTable  map[string]*contacts.Item // LookupPhone results

	favorites map[uuid.UUID]bool
	caps      map[uuid.UUID]domain.Capabilities

	pending      []pendingLookup
	unregistered []contacts.ResolveListener

	accountCalls int
	phoneCalls   int
}

func newFakeCache(loop *runloop.Loop) *fakeCache {
	return &fakeCache{
		loop:        loop,
		syncByKey:   make(map[domain.Key]*contacts.Item),
		syncByPhone: make(map[string]*contacts.Item),
		phoneTable:  make(map[string]*contacts.Item),
		favorites:   make(map[uuid.UUID]bool),
		caps:        make(map[uuid.UUID]domain.Capabilities),
	}
}

// addContact makes the address an instant hit for both lookup styles.
func (f *fakeCache) addContact(accountID, address string, item *contacts.Item) {
	f.syncByKey[domain.Key{AccountID: accountID, Address: address}] = item
	if domain.IsPhoneAccount(accountID) {
		min := phone.Minimize(address)
		f.syncByPhone[min] = item
		f.phoneTable[min] = item
	}
}

func (f *fakeCache) ResolveByAccount(listener contacts.ResolveListener, accountID, address string) *contacts.Item {
	f.accountCalls++
	if item, ok := f.syncByKey[domain.Key{AccountID: accountID, Address: address}]; ok {
		return item
	}
	f.pending = append(f.pending, pendingLookup{listener: listener, accountID: accountID, address: address})
	return nil
}

func (f *fakeCache) ResolveByPhone(listener contacts.ResolveListener, number string) *contacts.Item {
	f.phoneCalls++
	if item, ok := f.syncByPhone[phone.Minimize(number)]; ok {
		return item
	}
	f.pending = append(f.pending, pendingLookup{listener: listener, address: number})
	return nil
}

func (f *fakeCache) LookupPhone(number string) *contacts.Item {
	return f.phoneTable[phone.Minimize(number)]
}

func (f *fakeCache) IsFavorite(contactID uuid.UUID) bool {
	return f.favorites[contactID]
}

func (f *fakeCache) Capabilities(contactID uuid.UUID) domain.Capabilities {
	return f.caps[contactID]
}

func (f *fakeCache) UnregisterListener(listener contacts.ResolveListener) {
	f.unregistered = append(f.unregistered, listener)
}

// completeNext delivers the completion for the oldest pending lookup as a
// loop task, the way the real cache does.
func (f *fakeCache) completeNext(item *contacts.Item) {
	p := f.pending[0]
	f.pending = f.pending[1:]
	f.loop.Post(func() {
		p.listener.AddressResolved(p.accountID, p.address, item)
	})
}

func item(name string) *contacts.Item {
	return &contacts.Item{ContactID: uuid.New(), DisplayName: name}
}
