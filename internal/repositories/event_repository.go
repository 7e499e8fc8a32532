package repositories

import (
	"context"
	"time"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository defines persistence for events
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.Event, error)
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) error
	DeleteCascade(ctx context.Context, id uuid.UUID) ([]string, error)
	CloseIfOpen(ctx context.Context, id uuid.UUID, closedStatusID uint) (bool, error)
	ListExpired(ctx context.Context, today time.Time, closedStatusID uint) ([]models.Event, error)
	ListApprovedUpdatedBetween(ctx context.Context, from, to time.Time) ([]models.Event, error)
	ListApproved(ctx context.Context, offset, limit int) ([]models.Event, error)
}

// eventRepository implements EventRepository
type eventRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db, readOnlyDB *gorm.DB) EventRepository {
	return &eventRepository{db: db, readOnlyDB: readOnlyDB}
}

// Create inserts an event without touching its associations
func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(event).Error
	return translate(err, "failed to create event")
}

// editableColumns are the event columns an owner edit may write. Status
// and approval belong to the close job and to admins.
var editableColumns = []string{
	"title", "story", "short_story", "address",
	"type_destination_id", "purpose_id", "religion_id",
	"country_id", "state_id", "city_id",
	"finish_date", "is_submit",
}

// Update writes the owner-editable columns of the event
func (r *eventRepository) Update(ctx context.Context, event *models.Event) error {
	res := r.db.WithContext(ctx).Model(event).Select(editableColumns).Updates(event)
	if res.Error != nil {
		return translate(res.Error, "failed to update event")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID gets an event with its status. Reads go to the write pool so
// ownership checks never see replica lag.
func (r *eventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).Preload("Status").First(&event, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get event by ID")
	}
	return &event, nil
}

// GetDetail loads the event with taxonomy, media, demand items and only the
// approved responses of each item.
func (r *eventRepository) GetDetail(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Status").
		Preload("TypeDestination").
		Preload("Purpose").
		Preload("Religion").
		Preload("Country").
		Preload("State").
		Preload("City").
		Preload("Images").
		Preload("Demands.DemandType").
		Preload("Demands.Money").
		Preload("Demands.Volunteers").
		Preload("Demands.Volunteers.Responses", "creator_approved = ?", true).
		Preload("Demands.Supplies").
		Preload("Demands.Supplies.Responses", "user_approved = ?", true).
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get event detail")
	}
	return &event, nil
}

// SetApproved sets the admin approval flag
func (r *eventRepository) SetApproved(ctx context.Context, id uuid.UUID, approved bool) error {
	res := r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Update("is_approved", approved)
	if res.Error != nil {
		return translate(res.Error, "failed to approve event")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCascade removes the event and everything it owns in one transaction.
// It returns the image URLs so the caller can remove the stored files.
func (r *eventRepository) DeleteCascade(ctx context.Context, id uuid.UUID) ([]string, error) {
	var imageURLs []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, "id = ?", id).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.EventImage{}).Where("event_id = ?", id).Pluck("url", &imageURLs).Error; err != nil {
			return err
		}

		demandIDs := tx.Model(&models.Demand{}).Select("id").Where("event_id = ?", id)
		slotIDs := tx.Model(&models.VolunteerSlot{}).Select("id").Where("demand_id IN (?)", demandIDs)
		lotIDs := tx.Model(&models.SupplyLot{}).Select("id").Where("demand_id IN (?)", demandIDs)
		commentIDs := tx.Model(&models.EventComment{}).Select("id").Where("event_id = ?", id)
		accountIDs := tx.Model(&models.PaymentAccount{}).Select("id").Where("event_id = ?", id)

		steps := []struct {
			model interface{}
			query string
			arg   interface{}
		}{
			{&models.CommentLike{}, "comment_id IN (?)", commentIDs},
			{&models.EventComment{}, "event_id = ?", id},
			{&models.EventImage{}, "event_id = ?", id},
			{&models.EventVideo{}, "event_id = ?", id},
			{&models.EventUpdate{}, "event_id = ?", id},
			{&models.EventView{}, "event_id = ?", id},
			{&models.VolunteerResponse{}, "volunteer_slot_id IN (?)", slotIDs},
			{&models.SupplyResponse{}, "supply_lot_id IN (?)", lotIDs},
			{&models.VolunteerSlot{}, "demand_id IN (?)", demandIDs},
			{&models.SupplyLot{}, "demand_id IN (?)", demandIDs},
			{&models.EventPayment{}, "payment_account_id IN (?)", accountIDs},
			{&models.PaymentAccount{}, "event_id = ?", id},
			{&models.MoneyGoal{}, "demand_id IN (?)", demandIDs},
			{&models.Demand{}, "event_id = ?", id},
		}
		for _, step := range steps {
			if err := tx.Where(step.query, step.arg).Delete(step.model).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&event).Error
	})
	if err != nil {
		return nil, translate(err, "failed to delete event")
	}
	return imageURLs, nil
}

// CloseIfOpen moves the event to the closed status unless it already is.
// It reports whether this call performed the transition.
func (r *eventRepository) CloseIfOpen(ctx context.Context, id uuid.UUID, closedStatusID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND event_status_id <> ?", id, closedStatusID).
		Update("event_status_id", closedStatusID)
	if res.Error != nil {
		return false, translate(res.Error, "failed to close event")
	}
	return res.RowsAffected == 1, nil
}

// ListExpired lists events whose finish date is on or before today and that are not closed
func (r *eventRepository) ListExpired(ctx context.Context, today time.Time, closedStatusID uint) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("finish_date <= ? AND event_status_id <> ?", today.Format("2006-01-02"), closedStatusID).
		Order("finish_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, translate(err, "failed to list expired events")
	}
	return events, nil
}

// ListApprovedUpdatedBetween lists approved events updated in (from, to]
func (r *eventRepository) ListApprovedUpdatedBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	var events []models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Images", "is_preview = ?", true).
		Where("is_approved = ? AND updated_at > ? AND updated_at <= ?", true, from, to).
		Order("updated_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, translate(err, "failed to list updated events")
	}
	return events, nil
}

// ListApproved pages through approved events
func (r *eventRepository) ListApproved(ctx context.Context, offset, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Status").
		Where("is_approved = ?", true).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, translate(err, "failed to list approved events")
	}
	return events, nil
}
