package repositories

import (
	"context"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EngagementRepository persists comments, likes and event news posts
type EngagementRepository interface {
	CreateComment(ctx context.Context, comment *models.EventComment) error
	GetComment(ctx context.Context, id uuid.UUID) (*models.EventComment, error)
	ListComments(ctx context.Context, eventID uuid.UUID, offset, limit int) ([]models.EventComment, int64, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (bool, error)

	CreateUpdate(ctx context.Context, update *models.EventUpdate) error
	GetUpdate(ctx context.Context, eventID, id uuid.UUID) (*models.EventUpdate, error)
	ListUpdates(ctx context.Context, eventID uuid.UUID, offset, limit int) ([]models.EventUpdate, int64, error)
	SaveUpdate(ctx context.Context, update *models.EventUpdate) error
	DeleteUpdate(ctx context.Context, eventID, id uuid.UUID) error
}

type engagementRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(db, readOnlyDB *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *engagementRepository) CreateComment(ctx context.Context, comment *models.EventComment) error {
	return translate(r.db.WithContext(ctx).Omit("Likes").Create(comment).Error, "failed to create comment")
}

func (r *engagementRepository) GetComment(ctx context.Context, id uuid.UUID) (*models.EventComment, error) {
	var comment models.EventComment
	if err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to get comment")
	}
	return &comment, nil
}

// ListComments returns a page of comments, newest first, with like counts
func (r *engagementRepository) ListComments(ctx context.Context, eventID uuid.UUID, offset, limit int) ([]models.EventComment, int64, error) {
	db := r.readOnlyDB.WithContext(ctx)

	var total int64
	if err := db.Model(&models.EventComment{}).Where("event_id = ?", eventID).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "failed to count comments")
	}

	var comments []models.EventComment
	err := db.Where("event_id = ?", eventID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, 0, translate(err, "failed to list comments")
	}
	if len(comments) == 0 {
		return comments, total, nil
	}

	ids := make([]uuid.UUID, len(comments))
	for i := range comments {
		ids[i] = comments[i].ID
	}
	var likes []struct {
		CommentID uuid.UUID
		Total     int64
	}
	err = db.Model(&models.CommentLike{}).
		Select("comment_id, COUNT(*) AS total").
		Where("comment_id IN ?", ids).
		Group("comment_id").
		Scan(&likes).Error
	if err != nil {
		return nil, 0, translate(err, "failed to count likes")
	}

	counts := make(map[uuid.UUID]int64, len(likes))
	for _, l := range likes {
		counts[l.CommentID] = l.Total
	}
	for i := range comments {
		comments[i].LikeCount = counts[comments[i].ID]
	}
	return comments, total, nil
}

// DeleteComment removes a comment and its likes
func (r *engagementRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("comment_id = ?", id).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.EventComment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return translate(err, "failed to delete comment")
}

// ToggleLike removes the user's like if present, otherwise adds it.
// It reports whether the comment is liked afterwards.
func (r *engagementRepository) ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (bool, error) {
	liked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&models.CommentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Create(&models.CommentLike{CommentID: commentID, UserID: userID}).Error
	})
	if err != nil {
		return false, translate(err, "failed to toggle like")
	}
	return liked, nil
}

func (r *engagementRepository) CreateUpdate(ctx context.Context, update *models.EventUpdate) error {
	return translate(r.db.WithContext(ctx).Omit("DemandType").Create(update).Error, "failed to create event update")
}

func (r *engagementRepository) GetUpdate(ctx context.Context, eventID, id uuid.UUID) (*models.EventUpdate, error) {
	var update models.EventUpdate
	err := r.readOnlyDB.WithContext(ctx).
		Preload("DemandType").
		First(&update, "id = ? AND event_id = ?", id, eventID).Error
	if err != nil {
		return nil, translate(err, "failed to get event update")
	}
	return &update, nil
}

// ListUpdates returns a page of news posts, newest first
func (r *engagementRepository) ListUpdates(ctx context.Context, eventID uuid.UUID, offset, limit int) ([]models.EventUpdate, int64, error) {
	db := r.readOnlyDB.WithContext(ctx)

	var total int64
	if err := db.Model(&models.EventUpdate{}).Where("event_id = ?", eventID).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "failed to count event updates")
	}

	var updates []models.EventUpdate
	err := db.Preload("DemandType").
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&updates).Error
	if err != nil {
		return nil, 0, translate(err, "failed to list event updates")
	}
	return updates, total, nil
}

func (r *engagementRepository) SaveUpdate(ctx context.Context, update *models.EventUpdate) error {
	return translate(r.db.WithContext(ctx).Omit("DemandType").Save(update).Error, "failed to save event update")
}

func (r *engagementRepository) DeleteUpdate(ctx context.Context, eventID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ? AND event_id = ?", id, eventID).Delete(&models.EventUpdate{})
	return affectedOne(res, "failed to delete event update")
}
