package services

import (
	"context"
	"time"

	"example.com/backstage/services/charity/internal/cache"
	"example.com/backstage/services/charity/internal/messaging"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	viewMarkerTTL    = 30 * 24 * time.Hour
	reindexBatchSize = 100
)

// LifecycleService runs the scheduled event jobs and records views
type LifecycleService struct {
	deps      Dependencies
	events    repositories.EventRepository
	lookups   repositories.LookupRepository
	views     repositories.ViewRepository
	responses repositories.ResponseRepository
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(deps Dependencies) *LifecycleService {
	return &LifecycleService{
		deps:      deps,
		events:    deps.Repos.Events,
		lookups:   deps.Repos.Lookups,
		views:     deps.Repos.Views,
		responses: deps.Repos.Responses,
	}
}

// AutoCloseExpiredEvents closes every event whose finish date is on or
// before today and notifies its owner. Each event is handled on its own, so
// one failure does not stop the batch. Returns how many events this run closed.
func (s *LifecycleService) AutoCloseExpiredEvents(ctx context.Context, today time.Time) (int, error) {
	txn := s.deps.Tracer.StartTransaction("auto-close-expired-events")
	defer s.deps.Tracer.EndTransaction(txn)

	closedStatus, err := s.lookups.StatusByName(ctx, models.StatusClosed)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to load closed status")
	}

	expired, err := s.events.ListExpired(ctx, today, closedStatus.ID)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to list expired events")
	}

	closed := 0
	for i := range expired {
		event := &expired[i]

		changed, err := s.events.CloseIfOpen(ctx, event.ID, closedStatus.ID)
		if err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to close event")
			continue
		}
		if !changed {
			continue
		}
		closed++
		s.deps.Metrics.IncrementCounter(metrics.EventsClosed)

		payload := map[string]interface{}{
			"event_id": event.ID.String(),
			"title":    event.Title,
		}
		if err := s.deps.Notifier.Notify(ctx, event.UserID, messaging.TemplateEventClosed, payload); err != nil {
			s.deps.Metrics.IncrementCounter(metrics.NotificationsFailed)
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to notify owner about closed event")
		}

		reindex(ctx, s.deps, event.ID)
	}

	log.Info().
		Int("expired", len(expired)).
		Int("closed", closed).
		Str("date", today.Format(dateLayout)).
		Msg("Auto-close run finished")
	return closed, nil
}

// RecordView stores that the user opened the event. A user counts once per
// event; later calls are no-ops. Reports whether a view was added.
func (s *LifecycleService) RecordView(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}

	marker := cache.ViewMarkerKey(eventID, userID)
	marked := false
	if s.deps.Cache != nil && s.deps.Cache.Enabled() {
		fresh, err := s.deps.Cache.SetNX(ctx, marker, viewMarkerTTL)
		if err != nil {
			log.Warn().Err(err).Msg("View marker unavailable, falling back to database")
		} else if !fresh {
			return false, nil
		}
		marked = fresh
	}

	created, err := s.views.Record(ctx, eventID, userID)
	if err != nil {
		// the marker must not outlive a view that was never stored
		if marked {
			if derr := s.deps.Cache.Delete(ctx, marker); derr != nil {
				log.Warn().Err(derr).Str("event_id", eventID.String()).Msg("Failed to drop view marker")
			}
		}
		return false, domainError(err, "failed to record view")
	}
	if created {
		bumpSearchVersion(ctx, s.deps)
	}
	return created, nil
}

// SendVolunteerReminders notifies volunteers of events that finish within
// the reminder window. Returns how many reminders went out.
func (s *LifecycleService) SendVolunteerReminders(ctx context.Context, today time.Time) (int, error) {
	txn := s.deps.Tracer.StartTransaction("send-volunteer-reminders")
	defer s.deps.Tracer.EndTransaction(txn)

	closedStatus, err := s.lookups.StatusByName(ctx, models.StatusClosed)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to load closed status")
	}

	days := s.deps.Config.Lifecycle.ReminderDays
	if days <= 0 {
		days = 2
	}
	until := today.AddDate(0, 0, days)

	targets, err := s.responses.VolunteerReminderTargets(ctx, until, closedStatus.ID)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to list reminder targets")
	}

	sent := 0
	for _, target := range targets {
		payload := map[string]interface{}{
			"event_id":    target.EventID.String(),
			"title":       target.EventTitle,
			"slot":        target.SlotName,
			"finish_date": target.FinishDate.Format(dateLayout),
		}
		if err := s.deps.Notifier.Notify(ctx, target.UserID, messaging.TemplateVolunteerRemind, payload); err != nil {
			s.deps.Metrics.IncrementCounter(metrics.NotificationsFailed)
			log.Error().Err(err).Str("response_id", target.ResponseID.String()).Msg("Failed to send volunteer reminder")
			continue
		}
		sent++
		s.deps.Metrics.IncrementCounter(metrics.RemindersSent)
	}

	log.Info().Int("targets", len(targets)).Int("sent", sent).Msg("Volunteer reminders sent")
	return sent, nil
}

// SendNewEventsDigest broadcasts the approved events updated since the start
// of the previous day. Nothing is sent when there are none.
func (s *LifecycleService) SendNewEventsDigest(ctx context.Context, now time.Time) (int, error) {
	txn := s.deps.Tracer.StartTransaction("send-new-events-digest")
	defer s.deps.Tracer.EndTransaction(txn)

	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)

	events, err := s.events.ListApprovedUpdatedBetween(ctx, from, now)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to list updated events")
	}
	if len(events) == 0 {
		log.Debug().Msg("No new events for digest")
		return 0, nil
	}

	items := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		item := map[string]interface{}{
			"event_id":    event.ID.String(),
			"title":       event.Title,
			"short_story": event.ShortStory,
		}
		if len(event.Images) > 0 {
			item["image"] = event.Images[0].URL
		}
		items = append(items, item)
	}

	payload := map[string]interface{}{"events": items}
	if err := s.deps.Notifier.Broadcast(ctx, messaging.AudienceNewsletter, messaging.TemplateNewEventsDigest, payload); err != nil {
		s.deps.Metrics.IncrementCounter(metrics.NotificationsFailed)
		s.deps.Tracer.RecordError(txn, err)
		return 0, errors.Wrap(err, "failed to broadcast digest")
	}

	log.Info().Int("events", len(events)).Msg("New events digest sent")
	return len(events), nil
}

// ReindexEvents pushes every approved event into the search projection
func (s *LifecycleService) ReindexEvents(ctx context.Context) (int, error) {
	txn := s.deps.Tracer.StartTransaction("reindex-events")
	defer s.deps.Tracer.EndTransaction(txn)

	indexed := 0
	for offset := 0; ; offset += reindexBatchSize {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}

		batch, err := s.events.ListApproved(ctx, offset, reindexBatchSize)
		if err != nil {
			s.deps.Tracer.RecordError(txn, err)
			return indexed, errors.Wrap(err, "failed to list approved events")
		}

		for i := range batch {
			if err := s.deps.Indexer.IndexEvent(ctx, &batch[i]); err != nil {
				log.Warn().Err(err).Str("event_id", batch[i].ID.String()).Msg("Failed to index event")
				continue
			}
			indexed++
		}

		if len(batch) < reindexBatchSize {
			break
		}
	}

	log.Info().Int("indexed", indexed).Msg("Search projection rebuilt")
	return indexed, nil
}
