package services

import (
	"context"
	"time"

	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/cache"
	"example.com/backstage/services/charity/internal/messaging"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/payment"
	"example.com/backstage/services/charity/internal/repositories"
	"example.com/backstage/services/charity/internal/search"
	"example.com/backstage/services/charity/internal/storage"
	"example.com/backstage/services/charity/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
	CityID  uint
}

// Anonymous reports whether no user is attached
func (a Actor) Anonymous() bool {
	return a.UserID == uuid.Nil
}

// Dependencies carries the collaborators shared by the services
type Dependencies struct {
	Repos    *repositories.Repositories
	Cache    cache.Cache
	Indexer  search.Indexer
	Notifier messaging.Notifier
	Files    storage.FileStore
	Gateway  payment.Gateway
	Tracer   tracing.Tracer
	Metrics  *metrics.Metrics
	Config   config.Config
	Now      func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Services groups every domain service
type Services struct {
	Events     *EventService
	Demands    *DemandService
	Responses  *ResponseService
	Tokens     *TokenService
	Lifecycle  *LifecycleService
	Search     *SearchService
	Engagement *EngagementService
	Media      *MediaService
	Payments   *PaymentService
}

// New wires all services over the same dependencies
func New(deps Dependencies) *Services {
	if deps.Tracer == nil {
		deps.Tracer = tracing.NewNoopTracer()
	}
	if deps.Indexer == nil {
		deps.Indexer = search.NoopIndexer{}
	}
	if deps.Files == nil {
		deps.Files = storage.NoopStore{}
	}
	if deps.Gateway == nil {
		deps.Gateway = payment.NewSandboxGateway()
	}
	tokens := NewTokenService(deps)
	lifecycle := NewLifecycleService(deps)
	return &Services{
		Events:     NewEventService(deps, lifecycle),
		Demands:    NewDemandService(deps),
		Responses:  NewResponseService(deps, tokens),
		Tokens:     tokens,
		Lifecycle:  lifecycle,
		Search:     NewSearchService(deps),
		Engagement: NewEngagementService(deps),
		Media:      NewMediaService(deps),
		Payments:   NewPaymentService(deps),
	}
}

// loadOwnedEvent loads an event and checks the actor may edit it. Admins may
// edit any event when allowAdmin is set.
func loadOwnedEvent(ctx context.Context, repo repositories.EventRepository, eventID uuid.UUID, actor Actor, allowAdmin bool) (*models.Event, error) {
	event, err := repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, domainError(err, "failed to load event")
	}
	if event.UserID == actor.UserID && !actor.Anonymous() {
		return event, nil
	}
	if allowAdmin && actor.IsAdmin {
		return event, nil
	}
	return nil, ErrForbidden
}

// reindex refreshes the search projection of an event. Failures are logged;
// the relational store stays the source of truth.
func reindex(ctx context.Context, deps Dependencies, eventID uuid.UUID) {
	if deps.Indexer == nil {
		return
	}
	event, err := deps.Repos.Events.GetByID(ctx, eventID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Failed to load event for indexing")
		return
	}
	if err := deps.Indexer.IndexEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Failed to index event")
	}
	bumpSearchVersion(ctx, deps)
}

// bumpSearchVersion invalidates cached search pages
func bumpSearchVersion(ctx context.Context, deps Dependencies) {
	if deps.Cache == nil || !deps.Cache.Enabled() {
		return
	}
	if _, err := deps.Cache.Incr(ctx, cache.SearchVersionKey); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate search cache")
	}
}
