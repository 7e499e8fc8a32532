package services

import (
	"context"

	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	commentsPageSize = 10
	updatesPageSize  = 20
)

// CommentInput is the body of a new comment
type CommentInput struct {
	Content string `json:"content" validate:"required,not_blank,min=3,max=1000"`
}

// UpdateInput is the body of an event news post
type UpdateInput struct {
	Title        string `json:"title" validate:"required,not_blank,min=3,max=255"`
	Content      string `json:"content" validate:"required,min=3,max=1500"`
	DemandTypeID *uint  `json:"demand_type_id"`
}

// CommentPage is one page of comments, newest first
type CommentPage struct {
	Data    []models.EventComment `json:"data"`
	Total   int64                 `json:"total"`
	Page    int                   `json:"page"`
	PerPage int                   `json:"per_page"`
}

// UpdatePage is one page of news posts, newest first
type UpdatePage struct {
	Data    []models.EventUpdate `json:"data"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"per_page"`
}

// EngagementService handles comments, likes and event news posts
type EngagementService struct {
	deps   Dependencies
	events repositories.EventRepository
	repo   repositories.EngagementRepository
}

// NewEngagementService creates a new engagement service
func NewEngagementService(deps Dependencies) *EngagementService {
	return &EngagementService{
		deps:   deps,
		events: deps.Repos.Events,
		repo:   deps.Repos.Engagement,
	}
}

// AddComment posts a comment on an event
func (s *EngagementService) AddComment(ctx context.Context, eventID uuid.UUID, actor Actor, in CommentInput) (*models.EventComment, error) {
	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, domainError(err, "failed to load event")
	}

	comment := &models.EventComment{
		EventID: eventID,
		UserID:  actor.UserID,
		Content: in.Content,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, domainError(err, "failed to create comment")
	}
	bumpSearchVersion(ctx, s.deps)
	return comment, nil
}

// ListComments returns a page of comments with their like counts
func (s *EngagementService) ListComments(ctx context.Context, eventID uuid.UUID, page int) (*CommentPage, error) {
	if page < 1 {
		page = 1
	}
	comments, total, err := s.repo.ListComments(ctx, eventID, (page-1)*commentsPageSize, commentsPageSize)
	if err != nil {
		return nil, domainError(err, "failed to list comments")
	}
	return &CommentPage{Data: comments, Total: total, Page: page, PerPage: commentsPageSize}, nil
}

// DeleteComment removes a comment and its likes. The author, the event
// owner and admins may delete.
func (s *EngagementService) DeleteComment(ctx context.Context, eventID, commentID uuid.UUID, actor Actor) error {
	if actor.Anonymous() {
		return ErrForbidden
	}
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return domainError(err, "failed to load comment")
	}
	if comment.EventID != eventID {
		return ErrNotFound
	}
	if comment.UserID != actor.UserID {
		if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, true); err != nil {
			return err
		}
	}

	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return domainError(err, "failed to delete comment")
	}
	log.Info().Str("comment_id", commentID.String()).Msg("Comment deleted")
	bumpSearchVersion(ctx, s.deps)
	return nil
}

// ToggleLike likes the comment, or removes the like if the actor already
// liked it. Reports whether the comment is now liked.
func (s *EngagementService) ToggleLike(ctx context.Context, commentID uuid.UUID, actor Actor) (bool, error) {
	if actor.Anonymous() {
		return false, ErrForbidden
	}
	if _, err := s.repo.GetComment(ctx, commentID); err != nil {
		return false, domainError(err, "failed to load comment")
	}
	liked, err := s.repo.ToggleLike(ctx, commentID, actor.UserID)
	if err != nil {
		return false, domainError(err, "failed to toggle like")
	}
	return liked, nil
}

// CreateUpdate publishes a news post on the event. Owner or admin only.
func (s *EngagementService) CreateUpdate(ctx context.Context, eventID uuid.UUID, actor Actor, in UpdateInput) (*models.EventUpdate, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, true); err != nil {
		return nil, err
	}

	update := &models.EventUpdate{
		EventID:      eventID,
		Title:        in.Title,
		Content:      in.Content,
		DemandTypeID: in.DemandTypeID,
	}
	if err := s.repo.CreateUpdate(ctx, update); err != nil {
		return nil, domainError(err, "failed to create event update")
	}
	log.Info().Str("event_id", eventID.String()).Str("update_id", update.ID.String()).Msg("Event update published")
	return update, nil
}

// ListUpdates returns a page of the event's news posts
func (s *EngagementService) ListUpdates(ctx context.Context, eventID uuid.UUID, page int) (*UpdatePage, error) {
	if page < 1 {
		page = 1
	}
	updates, total, err := s.repo.ListUpdates(ctx, eventID, (page-1)*updatesPageSize, updatesPageSize)
	if err != nil {
		return nil, domainError(err, "failed to list event updates")
	}
	return &UpdatePage{Data: updates, Total: total, Page: page, PerPage: updatesPageSize}, nil
}

// GetUpdate returns one news post of the event
func (s *EngagementService) GetUpdate(ctx context.Context, eventID, updateID uuid.UUID) (*models.EventUpdate, error) {
	update, err := s.repo.GetUpdate(ctx, eventID, updateID)
	if err != nil {
		return nil, domainError(err, "failed to load event update")
	}
	return update, nil
}

// EditUpdate rewrites a news post. Owner or admin only.
func (s *EngagementService) EditUpdate(ctx context.Context, eventID, updateID uuid.UUID, actor Actor, in UpdateInput) (*models.EventUpdate, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, true); err != nil {
		return nil, err
	}

	update, err := s.repo.GetUpdate(ctx, eventID, updateID)
	if err != nil {
		return nil, domainError(err, "failed to load event update")
	}
	update.Title = in.Title
	update.Content = in.Content
	update.DemandTypeID = in.DemandTypeID

	if err := s.repo.SaveUpdate(ctx, update); err != nil {
		return nil, domainError(err, "failed to save event update")
	}
	return update, nil
}

// DeleteUpdate removes a news post. Owner or admin only.
func (s *EngagementService) DeleteUpdate(ctx context.Context, eventID, updateID uuid.UUID, actor Actor) error {
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, true); err != nil {
		return err
	}
	if err := s.repo.DeleteUpdate(ctx, eventID, updateID); err != nil {
		return domainError(err, "failed to delete event update")
	}
	log.Info().Str("update_id", updateID.String()).Msg("Event update deleted")
	return nil
}
