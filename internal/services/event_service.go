package services

import (
	"context"
	"time"

	"example.com/backstage/services/charity/internal/messaging"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// EventInput carries the editable fields of an event
type EventInput struct {
	Title             string `json:"title" validate:"required,not_blank,min=3,max=255"`
	Story             string `json:"story" validate:"required,min=10"`
	ShortStory        string `json:"short_story" validate:"required,min=3,max=255"`
	Address           string `json:"address" validate:"required,min=3,max=255"`
	TypeDestinationID uint   `json:"type_destination_id" validate:"required"`
	PurposeID         uint   `json:"purpose_id" validate:"required"`
	ReligionID        uint   `json:"religion_id" validate:"required"`
	CountryID         uint   `json:"country_id" validate:"required"`
	StateID           uint   `json:"state_id" validate:"required"`
	CityID            uint   `json:"city_id" validate:"required"`
	FinishDate        string `json:"finish_date" validate:"required,datetime=2006-01-02"`
	IsSubmit          bool   `json:"is_submit"`
}

// EventService handles the event lifecycle commands
type EventService struct {
	deps      Dependencies
	events    repositories.EventRepository
	lookups   repositories.LookupRepository
	lifecycle *LifecycleService
}

// NewEventService creates a new event service
func NewEventService(deps Dependencies, lifecycle *LifecycleService) *EventService {
	return &EventService{
		deps:      deps,
		events:    deps.Repos.Events,
		lookups:   deps.Repos.Lookups,
		lifecycle: lifecycle,
	}
}

// Create stores a new draft event owned by the actor
func (s *EventService) Create(ctx context.Context, actor Actor, in EventInput) (*models.Event, error) {
	txn := s.deps.Tracer.StartTransaction("create-event")
	defer s.deps.Tracer.EndTransaction(txn)

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	status, err := s.lookups.StatusByName(ctx, models.StatusOpen)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to load open status")
	}

	event := &models.Event{
		UserID:        actor.UserID,
		EventStatusID: status.ID,
		IsApproved:    false,
	}
	if err := applyEventInput(event, in); err != nil {
		return nil, err
	}

	span := s.deps.Tracer.StartSpan("insert-event", txn)
	err = s.events.Create(ctx, event)
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to create event")
	}
	event.Status = *status

	log.Info().
		Str("event_id", event.ID.String()).
		Str("user_id", actor.UserID.String()).
		Msg("Event created")

	reindex(ctx, s.deps, event.ID)
	return event, nil
}

// Update rewrites the event's fields. Only the owner may update.
func (s *EventService) Update(ctx context.Context, eventID uuid.UUID, actor Actor, in EventInput) (*models.Event, error) {
	txn := s.deps.Tracer.StartTransaction("update-event")
	defer s.deps.Tracer.EndTransaction(txn)

	if err := validate(in); err != nil {
		return nil, err
	}

	event, err := loadOwnedEvent(ctx, s.events, eventID, actor, false)
	if err != nil {
		return nil, err
	}
	if err := applyEventInput(event, in); err != nil {
		return nil, err
	}

	span := s.deps.Tracer.StartSpan("save-event", txn)
	err = s.events.Update(ctx, event)
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to update event")
	}

	log.Info().Str("event_id", event.ID.String()).Msg("Event updated")
	reindex(ctx, s.deps, event.ID)
	return event, nil
}

// Delete removes the event with everything it owns. The owner or an admin may delete.
func (s *EventService) Delete(ctx context.Context, eventID uuid.UUID, actor Actor) error {
	txn := s.deps.Tracer.StartTransaction("delete-event")
	defer s.deps.Tracer.EndTransaction(txn)

	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, true); err != nil {
		return err
	}

	span := s.deps.Tracer.StartSpan("cascade-delete", txn)
	imageURLs, err := s.events.DeleteCascade(ctx, eventID)
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return domainError(err, "failed to delete event")
	}

	for _, url := range imageURLs {
		if err := s.deps.Files.Delete(ctx, url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("Failed to delete event image file")
		}
	}
	if err := s.deps.Indexer.DeleteEvent(ctx, eventID); err != nil {
		log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Failed to remove event from search index")
	}
	bumpSearchVersion(ctx, s.deps)

	log.Info().
		Str("event_id", eventID.String()).
		Int("images", len(imageURLs)).
		Msg("Event deleted")
	return nil
}

// Approve publishes the event. Admin only.
func (s *EventService) Approve(ctx context.Context, eventID uuid.UUID, actor Actor) (*models.Event, error) {
	txn := s.deps.Tracer.StartTransaction("approve-event")
	defer s.deps.Tracer.EndTransaction(txn)

	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	if err := s.events.SetApproved(ctx, eventID, true); err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to approve event")
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, domainError(err, "failed to load event")
	}

	payload := map[string]interface{}{
		"event_id": event.ID.String(),
		"title":    event.Title,
	}
	if err := s.deps.Notifier.Notify(ctx, event.UserID, messaging.TemplateEventApproved, payload); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to notify owner about approval")
	}

	reindex(ctx, s.deps, event.ID)
	return event, nil
}

// Show returns the event with its demand and approved responses, recording
// a view for signed-in viewers. Unapproved events are visible to their owner
// and admins only.
func (s *EventService) Show(ctx context.Context, eventID uuid.UUID, viewer Actor) (*models.Event, error) {
	txn := s.deps.Tracer.StartTransaction("show-event")
	defer s.deps.Tracer.EndTransaction(txn)

	event, err := s.events.GetDetail(ctx, eventID)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to load event")
	}

	isOwner := !viewer.Anonymous() && viewer.UserID == event.UserID
	if !event.IsApproved && !isOwner && !viewer.IsAdmin {
		return nil, ErrNotFound
	}
	withRemaining(event.Demands)

	if !viewer.Anonymous() && s.lifecycle != nil {
		if _, err := s.lifecycle.RecordView(ctx, eventID, viewer.UserID); err != nil {
			log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Failed to record event view")
		}
	}
	return event, nil
}

func applyEventInput(event *models.Event, in EventInput) error {
	finish, err := time.Parse(dateLayout, in.FinishDate)
	if err != nil {
		return fieldError("finish_date", "must be a date in YYYY-MM-DD format")
	}

	event.Title = in.Title
	event.Story = in.Story
	event.ShortStory = in.ShortStory
	event.Address = in.Address
	event.TypeDestinationID = in.TypeDestinationID
	event.PurposeID = in.PurposeID
	event.ReligionID = in.ReligionID
	event.CountryID = in.CountryID
	event.StateID = in.StateID
	event.CityID = in.CityID
	event.FinishDate = &finish
	event.IsSubmit = in.IsSubmit
	return nil
}
