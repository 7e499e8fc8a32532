package cmd

import (
	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/cache"
	"example.com/backstage/services/charity/internal/database"
	"example.com/backstage/services/charity/internal/messaging"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/payment"
	"example.com/backstage/services/charity/internal/repositories"
	"example.com/backstage/services/charity/internal/search"
	"example.com/backstage/services/charity/internal/services"
	"example.com/backstage/services/charity/internal/storage"
	"example.com/backstage/services/charity/internal/tracing"

	"github.com/rs/zerolog/log"
)

// app holds the wired services and what must be released on exit
type app struct {
	deps     services.Dependencies
	services *services.Services
	closers  []func()
}

// Close releases connections in reverse order of creation
func (r *app) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// bootstrap connects to every backing service. Optional collaborators
// (cache, search, tracing, storage) degrade to no-ops when unavailable.
func bootstrap(cfg config.Config, clientType string) (*app, error) {
	rt := &app{}
	m := metrics.NewMetrics()

	db, readOnlyDB, err := database.Connect(cfg.DB, m)
	if err != nil {
		m.SetHealth("database", false)
		return nil, err
	}
	m.SetHealth("database", true)

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.NewNoopTracer()
	}
	rt.closers = append(rt.closers, tracer.Close)

	deps := services.Dependencies{
		Repos:   repositories.New(db, readOnlyDB),
		Tracer:  tracer,
		Metrics: m,
		Config:  cfg,
		Gateway: payment.NewSandboxGateway(),
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		m.SetHealth("redis", false)
	} else {
		deps.Cache = redisCache
		if redisCache.Enabled() {
			m.SetHealth("redis", true)
			rt.closers = append(rt.closers, func() {
				if err := redisCache.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close Redis client")
				}
			})
		}
	}

	indexer, err := search.NewIndexer(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search projection")
		indexer = search.NoopIndexer{}
	}
	deps.Indexer = indexer

	files, err := storage.NewFileStore(cfg.Storage)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize file storage, uploads will not be persisted")
		files = storage.NoopStore{}
	}
	deps.Files = files

	bus, err := messaging.NewServiceBusClient(cfg.Azure, clientType)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus client")
		}
	})
	deps.Notifier = messaging.NewQueueNotifier(bus, cfg.Lifecycle.MailFrom)

	rt.deps = deps
	rt.services = services.New(deps)
	return rt, nil
}
