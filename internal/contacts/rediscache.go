package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	busevents "commhistory_backend/internal/events"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/phone"
	"commhistory_backend/platform/runloop"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	addrKeyPrefix  = "contact:addr:"
	phoneKeyPrefix = "contact:phone:"
	metaKeyPrefix  = "contact:meta:"

	// ChangeChannel is the redis pub/sub channel carrying identity graph
	// mutations (address remaps, favorite and capability changes).
	ChangeChannel = "contacts:changed"

	fetchTimeout = 5 * time.Second
)

func addrKey(accountID, address string) string {
	return addrKeyPrefix + accountID + "|" + address
}

func phoneKey(minimized string) string {
	return phoneKeyPrefix + minimized
}

func metaKey(contactID uuid.UUID) string {
	return metaKeyPrefix + contactID.String()
}

// ChangeMessage is the pub/sub payload describing one identity mutation.
type ChangeMessage struct {
	Kind         string `json:"kind"` // "address" | "favorite" | "capabilities" | "removed"
	AccountID    string `json:"accountId,omitempty"`
	Address      string `json:"address,omitempty"`
	ContactID    string `json:"contactId,omitempty"`
	Favorite     bool   `json:"favorite,omitempty"`
	Capabilities uint8  `json:"capabilities,omitempty"`
}

type pendingKey struct {
	accountID string // empty for phone lookups
	address   string // minimized number for phone lookups
}

// RedisCache is a Cache backed by redis, with a loop-owned local table for
// the synchronous fast path. Redis reads run off-loop; their results and all
// listener callbacks are posted back to the loop. The pub/sub change feed is
// republished onto the in-process event bus for the identity-change reactor.
type RedisCache struct {
	rdb  *redis.Client
	loop *runloop.Loop
	bus  busevents.Bus
	log  *logger.Logger

	// Loop-owned state below. uuid.Nil values mark addresses known to
	// resolve to no contact.
	items     map[uuid.UUID]*Item
	byAddress map[domain.Key]uuid.UUID
	byPhone   map[string]uuid.UUID
	pending   map[pendingKey][]ResolveListener
}

// NewRedisCache creates a redis-backed identity cache.
func NewRedisCache(rdb *redis.Client, loop *runloop.Loop, bus busevents.Bus, log *logger.Logger) *RedisCache {
	return &RedisCache{
		rdb:       rdb,
		loop:      loop,
		bus:       bus,
		log:       log.WithComponent("contact-cache"),
		items:     make(map[uuid.UUID]*Item),
		byAddress: make(map[domain.Key]uuid.UUID),
		byPhone:   make(map[string]uuid.UUID),
		pending:   make(map[pendingKey][]ResolveListener),
	}
}

// ResolveByAccount implements Cache.
func (c *RedisCache) ResolveByAccount(listener ResolveListener, accountID, address string) *Item {
	key := domain.Key{AccountID: accountID, Address: address}
	if id, ok := c.byAddress[key]; ok {
		if item := c.items[id]; item != nil {
			return item
		}
		// Known no-match still completes through the asynchronous contract.
		c.loop.Post(func() { listener.AddressResolved(accountID, address, nil) })
		return nil
	}

	pk := pendingKey{accountID: accountID, address: address}
	c.pending[pk] = append(c.pending[pk], listener)
	if len(c.pending[pk]) == 1 {
		go c.fetchAddress(accountID, address)
	}
	return nil
}

// ResolveByPhone implements Cache.
func (c *RedisCache) ResolveByPhone(listener ResolveListener, number string) *Item {
	minimized := phone.Minimize(number)
	if id, ok := c.byPhone[minimized]; ok {
		if item := c.items[id]; item != nil {
			return item
		}
		c.loop.Post(func() { listener.AddressResolved("", number, nil) })
		return nil
	}

	pk := pendingKey{address: minimized}
	c.pending[pk] = append(c.pending[pk], listener)
	if len(c.pending[pk]) == 1 {
		go c.fetchPhone(minimized)
	}
	return nil
}

// LookupPhone implements Cache.
func (c *RedisCache) LookupPhone(number string) *Item {
	id, ok := c.byPhone[phone.Minimize(number)]
	if !ok || id == uuid.Nil {
		return nil
	}
	return c.items[id]
}

// IsFavorite implements Cache.
func (c *RedisCache) IsFavorite(contactID uuid.UUID) bool {
	if item := c.items[contactID]; item != nil {
		return item.Favorite
	}
	return false
}

// Capabilities implements Cache.
func (c *RedisCache) Capabilities(contactID uuid.UUID) domain.Capabilities {
	if item := c.items[contactID]; item != nil {
		return item.Capabilities
	}
	return 0
}

// UnregisterListener implements Cache. In-flight redis fetches keep running;
// their results are still cached, only delivery to this listener stops.
func (c *RedisCache) UnregisterListener(listener ResolveListener) {
	for pk, listeners := range c.pending {
		kept := listeners[:0]
		for _, l := range listeners {
			if l != listener {
				kept = append(kept, l)
			}
		}
		c.pending[pk] = kept
	}
}

func (c *RedisCache) fetchAddress(accountID, address string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	key := domain.Key{AccountID: accountID, Address: address}
	pk := pendingKey{accountID: accountID, address: address}

	id, item, err := c.fetchMapping(ctx, addrKey(accountID, address))
	if err != nil {
		c.log.Warn("address lookup failed", "account_id", accountID, "address", address, "error", err)
	}

	c.loop.Post(func() {
		c.byAddress[key] = id
		if item != nil {
			c.items[id] = item
		}
		c.deliver(pk, accountID, address, item)
	})
}

func (c *RedisCache) fetchPhone(minimized string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	pk := pendingKey{address: minimized}

	id, item, err := c.fetchMapping(ctx, phoneKey(minimized))
	if err != nil {
		c.log.Warn("phone lookup failed", "number", minimized, "error", err)
	}

	c.loop.Post(func() {
		c.byPhone[minimized] = id
		if item != nil {
			c.items[id] = item
		}
		// Phone completions carry only the number; the listener picks the
		// best match per pending address.
		c.deliver(pk, "", minimized, item)
	})
}

// fetchMapping reads an address-to-contact key and, on a hit, the contact's
// meta hash. Lookup errors degrade to a no-match result.
func (c *RedisCache) fetchMapping(ctx context.Context, key string) (uuid.UUID, *Item, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, nil, nil
	}
	if err != nil {
		return uuid.Nil, nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, err
	}

	item, err := c.fetchItem(ctx, id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, item, nil
}

func (c *RedisCache) fetchItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	fields, err := c.rdb.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return nil, err
	}

	item := &Item{ContactID: id}
	item.DisplayName = fields["name"]
	item.Favorite = fields["favorite"] == "1"
	if raw := fields["caps"]; raw != "" {
		var caps uint8
		for _, r := range raw {
			if r < '0' || r > '9' {
				caps = 0
				break
			}
			caps = caps*10 + uint8(r-'0')
		}
		item.Capabilities = domain.Capabilities(caps)
	}
	return item, nil
}

func (c *RedisCache) deliver(pk pendingKey, accountID, address string, item *Item) {
	listeners := c.pending[pk]
	delete(c.pending, pk)
	for _, l := range listeners {
		l.AddressResolved(accountID, address, item)
	}
}

// Run consumes the redis pub/sub change feed until ctx is cancelled,
// applying mutations to the local table and republishing them on the bus.
func (c *RedisCache) Run(ctx context.Context) error {
	sub := c.rdb.Subscribe(ctx, ChangeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change ChangeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				c.log.Warn("malformed change message discarded", "error", err)
				continue
			}
			c.loop.Post(func() { c.applyChange(ctx, change) })
		}
	}
}

func (c *RedisCache) applyChange(ctx context.Context, m ChangeMessage) {
	id := uuid.Nil
	if m.ContactID != "" {
		parsed, err := uuid.Parse(m.ContactID)
		if err != nil {
			c.log.Warn("change message with invalid contact id discarded", "kind", m.Kind, "contact_id", m.ContactID)
			return
		}
		id = parsed
	}

	switch m.Kind {
	case "address":
		if m.Address == "" {
			c.log.Warn("address change with empty address discarded", "account_id", m.AccountID)
			return
		}
		key := domain.Key{AccountID: m.AccountID, Address: m.Address}
		c.byAddress[key] = id
		if domain.IsPhoneAccount(m.AccountID) {
			c.byPhone[phone.Minimize(m.Address)] = id
		}
		if id != uuid.Nil && c.items[id] == nil {
			go c.refreshItem(id)
		}
		c.bus.Publish(ctx, busevents.ContactsChanged{
			Changes: []busevents.AddressChange{{AccountID: m.AccountID, Address: m.Address, ContactID: id}},
		})

	case "favorite":
		item := c.ensureItem(id)
		item.Favorite = m.Favorite
		c.bus.Publish(ctx, busevents.ContactDetailsChanged{
			ContactIDs: []uuid.UUID{id},
		})

	case "capabilities":
		item := c.ensureItem(id)
		item.Capabilities = domain.Capabilities(m.Capabilities)
		c.bus.Publish(ctx, busevents.ContactInfoChanged{
			ContactIDs: []uuid.UUID{id},
		})

	case "removed":
		delete(c.items, id)
		var changes []busevents.AddressChange
		for key, mapped := range c.byAddress {
			if mapped == id {
				c.byAddress[key] = uuid.Nil
				changes = append(changes, busevents.AddressChange{AccountID: key.AccountID, Address: key.Address, ContactID: uuid.Nil})
			}
		}
		for minimized, mapped := range c.byPhone {
			if mapped == id {
				c.byPhone[minimized] = uuid.Nil
			}
		}
		if len(changes) > 0 {
			c.bus.Publish(ctx, busevents.ContactsChanged{Changes: changes})
		}

	default:
		c.log.Warn("change message with unknown kind discarded", "kind", m.Kind)
	}
}

func (c *RedisCache) ensureItem(id uuid.UUID) *Item {
	if item := c.items[id]; item != nil {
		return item
	}
	item := &Item{ContactID: id}
	c.items[id] = item
	return item
}

func (c *RedisCache) refreshItem(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	item, err := c.fetchItem(ctx, id)
	if err != nil {
		c.log.Warn("contact meta refresh failed", "contact_id", id, "error", err)
		return
	}
	c.loop.Post(func() {
		c.items[id] = item
	})
}
