// Package recent provides the recent-contacts bounded context module.
package recent

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"commhistory_backend/internal/contacts"
	busevents "commhistory_backend/internal/events"
	apphttp "commhistory_backend/internal/http"
	"commhistory_backend/internal/recent/domain"
	"commhistory_backend/internal/recent/handler"
	"commhistory_backend/internal/recent/repository"
	"commhistory_backend/internal/recent/service"
	"commhistory_backend/platform/config"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/runloop"
	"commhistory_backend/platform/validator"
)

// Module is the recent-contacts bounded context module implementing
// http.Module. It owns the aggregation engine and keeps it consistent with
// stored events and contact changes arriving over the event bus.
type Module struct {
	handler  *handler.Handler
	agg      *service.Aggregator
	reactor  *service.Reactor
	writer   *service.Writer
	repo     *repository.Repository
	registry *domain.Registry
	loop     *runloop.Loop
	log      *logger.Logger
}

// NewModule creates and initializes the recent-contacts module. The loop is
// the single goroutine all aggregation state is confined to; bus handlers
// post their work onto it.
func NewModule(pool *pgxpool.Pool, cache contacts.Cache, bus busevents.Bus, loop *runloop.Loop, val *validator.Validator, cfg config.RecentConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	registry := domain.NewRegistry()

	opts := service.Options{
		QueryLimit:           cfg.GetQueryLimit(),
		ExcludeFavorites:     cfg.GetExcludeFavorites(),
		RequiredCapabilities: domain.ParseCapabilities(cfg.GetRequiredCapabilities()),
		CategoryMask:         domain.Category(cfg.GetCategoryMask()),
	}

	agg := service.NewAggregator(repo, cache, registry, loop, opts, log)
	reactor := service.NewReactor(agg, registry, cache, opts, log)
	writer := service.NewWriter(repo, bus, log)
	h := handler.New(agg, writer, loop, val, log.WithComponent("recent-http"))

	m := &Module{
		handler:  h,
		agg:      agg,
		reactor:  reactor,
		writer:   writer,
		repo:     repo,
		registry: registry,
		loop:     loop,
		log:      log.WithComponent("recent"),
	}

	bus.Subscribe(busevents.EventsAdded{}.EventName(), m)
	bus.Subscribe(busevents.EventsUpdated{}.EventName(), m)
	bus.Subscribe(busevents.EventDeleted{}.EventName(), m)
	bus.Subscribe(busevents.ContactsChanged{}.EventName(), m)
	bus.Subscribe(busevents.ContactInfoChanged{}.EventName(), m)
	bus.Subscribe(busevents.ContactDetailsChanged{}.EventName(), m)

	return m
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "recent"
}

// Start runs the initial load of the aggregated collection.
func (m *Module) Start(ctx context.Context) error {
	return m.agg.Load(ctx)
}

// RegisterRoutes mounts the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rc := ctx.V1.Group("/recent-contacts")
	rc.GET("", m.handler.List)
	rc.GET("/stream", m.handler.Stream)

	ev := ctx.V1.Group("/events")
	ev.POST("", m.handler.Create)
	ev.DELETE("/:id", m.handler.Delete)
}

// Handle dispatches bus events onto the run loop. Bus handlers run on
// arbitrary goroutines; every mutation of aggregation state is posted so it
// executes on the loop.
func (m *Module) Handle(ctx context.Context, event busevents.Event) error {
	switch e := event.(type) {
	case busevents.EventsAdded:
		m.loop.Post(func() { m.agg.OnEventsAdded(e.Events) })
	case busevents.EventsUpdated:
		m.loop.Post(func() { m.agg.OnEventsUpdated(e.Events) })
	case busevents.EventDeleted:
		m.loop.Post(func() { m.agg.OnEventDeleted(e.EventID) })
	case busevents.ContactsChanged:
		m.loop.Post(func() { m.reactor.OnContactsChanged(e.Changes) })
	case busevents.ContactInfoChanged:
		m.loop.Post(func() { m.reactor.OnContactInfoChanged(e.ContactIDs) })
	case busevents.ContactDetailsChanged:
		m.loop.Post(func() { m.reactor.OnContactDetailsChanged(e.ContactIDs) })
	default:
		m.log.Warn("unexpected event type", "event", event.EventName())
	}
	return nil
}

// Close releases the module's run-loop resources.
func (m *Module) Close() {
	m.loop.Post(m.agg.Close)
}
