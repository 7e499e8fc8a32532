package repositories

import (
	"context"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ViewRepository records event views, one per (event, user)
type ViewRepository interface {
	Record(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error)
}

type viewRepository struct {
	db *gorm.DB
}

// NewViewRepository creates a new view repository
func NewViewRepository(db *gorm.DB) ViewRepository {
	return &viewRepository{db: db}
}

// Record inserts the view unless one exists and reports whether it inserted
func (r *viewRepository) Record(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	view := models.EventView{EventID: eventID, UserID: userID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&view)
	if res.Error != nil {
		return false, translate(res.Error, "failed to record event view")
	}
	return res.RowsAffected == 1, nil
}

func (r *viewRepository) CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EventView{}).Where("event_id = ?", eventID).Count(&count).Error
	return count, translate(err, "failed to count event views")
}
