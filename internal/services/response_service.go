package services

import (
	"context"

	"example.com/backstage/services/charity/internal/ledger"
	"example.com/backstage/services/charity/internal/messaging"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Per-item outcomes of a supply response
const (
	SupplyCreated          = "created"
	SupplyDuplicate        = "duplicate"
	SupplyCapacityExceeded = "capacity_exceeded"
	SupplyNotFound         = "not_found"
)

// RespondVolunteerInput is a volunteer pledge against one slot
type RespondVolunteerInput struct {
	Count int `json:"count" validate:"gte=0,lte=1000"`
}

// SupplyPledge is one lot of a supply response
type SupplyPledge struct {
	LotID uuid.UUID `json:"lot_id" validate:"required"`
	Count int       `json:"count" validate:"gte=0,lte=1000000"`
}

// RespondSupplyInput pledges supplies against several lots of an event
type RespondSupplyInput struct {
	Items []SupplyPledge `json:"items" validate:"required,min=1,dive"`
}

// SupplyResult is the outcome for one pledged lot
type SupplyResult struct {
	LotID      uuid.UUID  `json:"lot_id"`
	Status     string     `json:"status"`
	ResponseID *uuid.UUID `json:"response_id,omitempty"`
}

// ResponseService runs the response workflow: pledge, confirm by token,
// creator approval and parcel tracking.
type ResponseService struct {
	deps      Dependencies
	events    repositories.EventRepository
	demands   repositories.DemandRepository
	responses repositories.ResponseRepository
	tokens    *TokenService
}

// NewResponseService creates a new response service
func NewResponseService(deps Dependencies, tokens *TokenService) *ResponseService {
	return &ResponseService{
		deps:      deps,
		events:    deps.Repos.Events,
		demands:   deps.Repos.Demands,
		responses: deps.Repos.Responses,
		tokens:    tokens,
	}
}

// RespondVolunteer pledges the actor to a volunteer slot of the event
func (s *ResponseService) RespondVolunteer(ctx context.Context, eventID, slotID uuid.UUID, actor Actor, in RespondVolunteerInput) (*models.VolunteerResponse, error) {
	txn := s.deps.Tracer.StartTransaction("respond-volunteer")
	defer s.deps.Tracer.EndTransaction(txn)

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	count := in.Count
	if count == 0 {
		count = 1
	}

	event, err := s.openEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	slot, err := s.demands.GetVolunteerSlot(ctx, slotID)
	if err != nil {
		return nil, domainError(err, "failed to load volunteer slot")
	}
	if slot.Demand == nil || slot.Demand.EventID != event.ID {
		return nil, ErrNotFound
	}

	exists, err := s.responses.HasVolunteerResponse(ctx, slotID, actor.UserID)
	if err != nil {
		return nil, domainError(err, "failed to check volunteer response")
	}
	if exists {
		s.deps.Metrics.IncrementCounter(metrics.ResponsesRejected)
		return nil, ErrDuplicateResponse
	}

	approved, err := s.responses.ApprovedVolunteerCount(ctx, slotID)
	if err != nil {
		return nil, domainError(err, "failed to count approved volunteers")
	}
	if !ledger.CanAccept(slot.Count, approved, count) {
		s.deps.Metrics.IncrementCounter(metrics.ResponsesRejected)
		return nil, ErrCapacityExceeded
	}

	response := &models.VolunteerResponse{
		VolunteerSlotID: slotID,
		UserID:          actor.UserID,
		Count:           count,
	}
	span := s.deps.Tracer.StartSpan("insert-volunteer-response", txn)
	err = s.responses.CreateVolunteer(ctx, response)
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to create volunteer response")
	}
	s.deps.Metrics.IncrementCounter(metrics.ResponsesCreated)

	log.Info().
		Str("event_id", eventID.String()).
		Str("slot_id", slotID.String()).
		Str("user_id", actor.UserID.String()).
		Int("count", count).
		Msg("Volunteer response created")

	s.sendConfirmation(ctx, event, actor.UserID, PurposeVolunteerConfirm, messaging.TemplateVolunteerConfirm)
	return response, nil
}

// RespondSupply pledges supplies against lots of the event. Each item is
// handled on its own; one failing item does not undo the others.
func (s *ResponseService) RespondSupply(ctx context.Context, eventID uuid.UUID, actor Actor, in RespondSupplyInput) ([]SupplyResult, error) {
	txn := s.deps.Tracer.StartTransaction("respond-supply")
	defer s.deps.Tracer.EndTransaction(txn)

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	event, err := s.openEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	results := make([]SupplyResult, 0, len(in.Items))
	created := 0
	for _, item := range in.Items {
		result, err := s.respondSupplyItem(ctx, event.ID, actor.UserID, item)
		if err != nil {
			s.deps.Tracer.RecordError(txn, err)
			return nil, err
		}
		if result.Status == SupplyCreated {
			created++
		}
		results = append(results, result)
	}

	log.Info().
		Str("event_id", eventID.String()).
		Str("user_id", actor.UserID.String()).
		Int("items", len(in.Items)).
		Int("created", created).
		Msg("Supply response handled")

	if created > 0 {
		s.sendConfirmation(ctx, event, actor.UserID, PurposeSupplyConfirm, messaging.TemplateSupplyConfirm)
	}
	return results, nil
}

func (s *ResponseService) respondSupplyItem(ctx context.Context, eventID, userID uuid.UUID, item SupplyPledge) (SupplyResult, error) {
	result := SupplyResult{LotID: item.LotID}
	count := item.Count
	if count == 0 {
		count = 1
	}

	lot, err := s.demands.GetSupplyLot(ctx, item.LotID)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && (lot.Demand == nil || lot.Demand.EventID != eventID)) {
		result.Status = SupplyNotFound
		return result, nil
	}
	if err != nil {
		return result, errors.Wrap(err, "failed to load supply lot")
	}

	exists, err := s.responses.HasSupplyResponse(ctx, lot.ID, userID)
	if err != nil {
		return result, errors.Wrap(err, "failed to check supply response")
	}
	if exists {
		s.deps.Metrics.IncrementCounter(metrics.ResponsesRejected)
		result.Status = SupplyDuplicate
		return result, nil
	}

	approved, err := s.responses.ApprovedSupplyCount(ctx, lot.ID)
	if err != nil {
		return result, errors.Wrap(err, "failed to count approved supplies")
	}
	if !ledger.CanAccept(lot.Count, approved, count) {
		s.deps.Metrics.IncrementCounter(metrics.ResponsesRejected)
		result.Status = SupplyCapacityExceeded
		return result, nil
	}

	response := &models.SupplyResponse{
		SupplyLotID:  lot.ID,
		UserID:       userID,
		Count:        count,
		ParcelStatus: models.ParcelPending,
	}
	if err := s.responses.CreateSupply(ctx, response); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			result.Status = SupplyDuplicate
			return result, nil
		}
		return result, errors.Wrap(err, "failed to create supply response")
	}
	s.deps.Metrics.IncrementCounter(metrics.ResponsesCreated)

	result.Status = SupplyCreated
	result.ResponseID = &response.ID
	return result, nil
}

// ConfirmResponse resolves a confirmation token and marks the user's
// pending responses on the event as confirmed.
func (s *ResponseService) ConfirmResponse(ctx context.Context, eventID uuid.UUID, token, purpose string) (int, error) {
	txn := s.deps.Tracer.StartTransaction("confirm-response")
	defer s.deps.Tracer.EndTransaction(txn)

	if purpose != PurposeVolunteerConfirm && purpose != PurposeSupplyConfirm {
		return 0, ErrInvalidToken
	}

	userID, err := s.tokens.Resolve(ctx, token, purpose)
	if err != nil {
		return 0, err
	}

	if purpose == PurposeVolunteerConfirm {
		confirmed, err := s.responses.ConfirmVolunteers(ctx, eventID, userID)
		if err != nil {
			s.deps.Tracer.RecordError(txn, err)
			return 0, domainError(err, "failed to confirm volunteer responses")
		}
		if confirmed == 0 {
			return 0, ErrNoMatchingResponse
		}
		log.Info().
			Str("event_id", eventID.String()).
			Str("user_id", userID.String()).
			Int64("confirmed", confirmed).
			Msg("Volunteer responses confirmed")
		return int(confirmed), nil
	}

	pending, err := s.responses.PendingSupplies(ctx, eventID, userID)
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return 0, domainError(err, "failed to list pending supply responses")
	}
	if len(pending) == 0 {
		return 0, ErrNoMatchingResponse
	}

	confirmed := 0
	for _, response := range pending {
		err := s.responses.ConfirmSupply(ctx, response.ID)
		switch {
		case err == nil:
			confirmed++
			s.deps.Metrics.IncrementCounter(metrics.ApprovalsGranted)
		case errors.Is(err, repositories.ErrCapacityExceeded):
			s.deps.Metrics.IncrementCounter(metrics.ApprovalsOverCap)
			log.Warn().
				Str("response_id", response.ID.String()).
				Msg("Supply confirmation rejected, lot is full")
		default:
			s.deps.Tracer.RecordError(txn, err)
			return confirmed, domainError(err, "failed to confirm supply response")
		}
	}
	if confirmed == 0 {
		return 0, ErrCapacityExceeded
	}

	log.Info().
		Str("event_id", eventID.String()).
		Str("user_id", userID.String()).
		Int("confirmed", confirmed).
		Int("pending", len(pending)).
		Msg("Supply responses confirmed")
	return confirmed, nil
}

// ApproveResponse is the event owner accepting a volunteer response. The
// approval is refused when it would take the slot over its count.
func (s *ResponseService) ApproveResponse(ctx context.Context, responseID uuid.UUID, actor Actor) error {
	txn := s.deps.Tracer.StartTransaction("approve-response")
	defer s.deps.Tracer.EndTransaction(txn)

	response, err := s.responses.GetVolunteer(ctx, responseID)
	if err != nil {
		return domainError(err, "failed to load volunteer response")
	}
	if response.VolunteerSlot == nil || response.VolunteerSlot.Demand == nil {
		return ErrNotFound
	}
	if _, err := loadOwnedEvent(ctx, s.events, response.VolunteerSlot.Demand.EventID, actor, false); err != nil {
		return err
	}

	span := s.deps.Tracer.StartSpan("conditional-approve", txn)
	err = s.responses.ApproveVolunteer(ctx, responseID)
	span.End()
	if err != nil {
		if errors.Is(err, repositories.ErrCapacityExceeded) {
			s.deps.Metrics.IncrementCounter(metrics.ApprovalsOverCap)
		} else {
			s.deps.Tracer.RecordError(txn, err)
		}
		return domainError(err, "failed to approve volunteer response")
	}
	s.deps.Metrics.IncrementCounter(metrics.ApprovalsGranted)

	log.Info().
		Str("response_id", responseID.String()).
		Str("slot_id", response.VolunteerSlotID.String()).
		Msg("Volunteer response approved")
	return nil
}

// MarkParcelSent records that the responding user shipped their supplies
func (s *ResponseService) MarkParcelSent(ctx context.Context, responseID uuid.UUID, actor Actor) error {
	txn := s.deps.Tracer.StartTransaction("mark-parcel-sent")
	defer s.deps.Tracer.EndTransaction(txn)

	response, err := s.responses.GetSupply(ctx, responseID)
	if err != nil {
		return domainError(err, "failed to load supply response")
	}
	if actor.Anonymous() || response.UserID != actor.UserID {
		return ErrForbidden
	}

	if err := s.responses.MarkSupplySent(ctx, responseID); err != nil {
		if errors.Is(err, repositories.ErrCapacityExceeded) {
			s.deps.Metrics.IncrementCounter(metrics.ApprovalsOverCap)
		} else {
			s.deps.Tracer.RecordError(txn, err)
		}
		return domainError(err, "failed to mark parcel sent")
	}

	log.Info().Str("response_id", responseID.String()).Msg("Parcel marked sent")
	return nil
}

// MarkParcelReceived is the event owner acknowledging a delivered parcel
func (s *ResponseService) MarkParcelReceived(ctx context.Context, responseID uuid.UUID, actor Actor) error {
	txn := s.deps.Tracer.StartTransaction("mark-parcel-received")
	defer s.deps.Tracer.EndTransaction(txn)

	response, err := s.responses.GetSupply(ctx, responseID)
	if err != nil {
		return domainError(err, "failed to load supply response")
	}
	if response.SupplyLot == nil || response.SupplyLot.Demand == nil {
		return ErrNotFound
	}
	if _, err := loadOwnedEvent(ctx, s.events, response.SupplyLot.Demand.EventID, actor, false); err != nil {
		return err
	}

	if err := s.responses.MarkSupplyReceived(ctx, responseID); err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return domainError(err, "failed to mark parcel received")
	}

	log.Info().Str("response_id", responseID.String()).Msg("Parcel marked received")
	return nil
}

// openEvent loads an event that still accepts responses
func (s *ResponseService) openEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, domainError(err, "failed to load event")
	}
	if event.IsClosed() {
		return nil, ErrStateConflict
	}
	return event, nil
}

// sendConfirmation issues a token and mails the confirmation link. Failures
// are logged; the response itself is already stored.
func (s *ResponseService) sendConfirmation(ctx context.Context, event *models.Event, userID uuid.UUID, purpose, template string) {
	token, err := s.tokens.Issue(ctx, userID, purpose)
	if err != nil {
		s.deps.Metrics.IncrementCounter(metrics.NotificationsFailed)
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to issue confirmation token")
		return
	}

	payload := map[string]interface{}{
		"event_id": event.ID.String(),
		"title":    event.Title,
		"token":    token,
		"purpose":  purpose,
	}
	if err := s.deps.Notifier.Notify(ctx, userID, template, payload); err != nil {
		s.deps.Metrics.IncrementCounter(metrics.NotificationsFailed)
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to send confirmation")
	}
}
