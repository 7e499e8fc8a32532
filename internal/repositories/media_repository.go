package repositories

import (
	"context"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaRepository persists event images
type MediaRepository interface {
	CreateImage(ctx context.Context, image *models.EventImage) error
	GetImage(ctx context.Context, eventID, id uuid.UUID) (*models.EventImage, error)
	SetPreview(ctx context.Context, eventID, id uuid.UUID) error
	DeleteImage(ctx context.Context, eventID, id uuid.UUID) error
}

type mediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) CreateImage(ctx context.Context, image *models.EventImage) error {
	return translate(r.db.WithContext(ctx).Create(image).Error, "failed to create event image")
}

func (r *mediaRepository) GetImage(ctx context.Context, eventID, id uuid.UUID) (*models.EventImage, error) {
	var image models.EventImage
	if err := r.db.WithContext(ctx).First(&image, "id = ? AND event_id = ?", id, eventID).Error; err != nil {
		return nil, translate(err, "failed to get event image")
	}
	return &image, nil
}

// SetPreview makes the image the only preview of its event
func (r *mediaRepository) SetPreview(ctx context.Context, eventID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EventImage{}).
			Where("event_id = ? AND is_preview = ?", eventID, true).
			Update("is_preview", false).Error; err != nil {
			return err
		}
		res := tx.Model(&models.EventImage{}).
			Where("id = ? AND event_id = ?", id, eventID).
			Update("is_preview", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return translate(err, "failed to set preview image")
}

func (r *mediaRepository) DeleteImage(ctx context.Context, eventID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ? AND event_id = ?", id, eventID).Delete(&models.EventImage{})
	return affectedOne(res, "failed to delete event image")
}
