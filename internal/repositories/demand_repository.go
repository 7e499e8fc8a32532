package repositories

import (
	"context"
	"fmt"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DemandRepository persists demands and their typed items
type DemandRepository interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo DemandRepository) error) error

	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Demand, error)
	FindOrCreate(ctx context.Context, eventID uuid.UUID, demandTypeID uint) (*models.Demand, error)

	AddVolunteerSlots(ctx context.Context, slots []models.VolunteerSlot) error
	AddSupplyLots(ctx context.Context, lots []models.SupplyLot) error
	AddMoneyGoals(ctx context.Context, goals []models.MoneyGoal) error

	RemoveVolunteerSlots(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error
	RemoveSupplyLots(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error
	RemoveMoneyGoals(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error
	ClearMoneyGoals(ctx context.Context, demandID uuid.UUID) error

	UpdateVolunteerSlot(ctx context.Context, demandID, id uuid.UUID, name string, count int) error
	UpdateSupplyLot(ctx context.Context, demandID, id uuid.UUID, name string, count int) error
	UpdateMoneyGoal(ctx context.Context, demandID, id uuid.UUID, summ float64) error

	GetVolunteerSlot(ctx context.Context, id uuid.UUID) (*models.VolunteerSlot, error)
	GetSupplyLot(ctx context.Context, id uuid.UUID) (*models.SupplyLot, error)
}

type demandRepository struct {
	db *gorm.DB
}

// NewDemandRepository creates a new demand repository
func NewDemandRepository(db *gorm.DB) DemandRepository {
	return &demandRepository{db: db}
}

// WithTransaction executes the given function within a database transaction
func (r *demandRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo DemandRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &demandRepository{db: tx})
	})
}

func (r *demandRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Demand, error) {
	var demands []models.Demand
	err := r.db.WithContext(ctx).
		Preload("DemandType").
		Preload("Volunteers").
		Preload("Volunteers.Responses", "creator_approved = ?", true).
		Preload("Supplies").
		Preload("Supplies.Responses", "user_approved = ?", true).
		Preload("Money").
		Where("event_id = ?", eventID).
		Find(&demands).Error
	if err != nil {
		return nil, translate(err, "failed to list demands")
	}
	return demands, nil
}

// FindOrCreate returns the event's demand of the given type, creating it on first use
func (r *demandRepository) FindOrCreate(ctx context.Context, eventID uuid.UUID, demandTypeID uint) (*models.Demand, error) {
	demand := models.Demand{EventID: eventID, DemandTypeID: demandTypeID}
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND demand_type_id = ?", eventID, demandTypeID).
		FirstOrCreate(&demand).Error
	if err != nil {
		return nil, translate(err, "failed to find or create demand")
	}
	return &demand, nil
}

func (r *demandRepository) AddVolunteerSlots(ctx context.Context, slots []models.VolunteerSlot) error {
	if len(slots) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&slots).Error, "failed to add volunteer slots")
}

func (r *demandRepository) AddSupplyLots(ctx context.Context, lots []models.SupplyLot) error {
	if len(lots) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&lots).Error, "failed to add supply lots")
}

func (r *demandRepository) AddMoneyGoals(ctx context.Context, goals []models.MoneyGoal) error {
	if len(goals) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&goals).Error, "failed to add money goals")
}

// RemoveVolunteerSlots deletes slots of the demand together with their responses
func (r *demandRepository) RemoveVolunteerSlots(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	owned := db.Model(&models.VolunteerSlot{}).Select("id").Where("demand_id = ? AND id IN ?", demandID, ids)
	if err := db.Where("volunteer_slot_id IN (?)", owned).Delete(&models.VolunteerResponse{}).Error; err != nil {
		return translate(err, "failed to remove volunteer responses")
	}
	err := db.Where("demand_id = ? AND id IN ?", demandID, ids).Delete(&models.VolunteerSlot{}).Error
	return translate(err, "failed to remove volunteer slots")
}

// RemoveSupplyLots deletes lots of the demand together with their responses
func (r *demandRepository) RemoveSupplyLots(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	owned := db.Model(&models.SupplyLot{}).Select("id").Where("demand_id = ? AND id IN ?", demandID, ids)
	if err := db.Where("supply_lot_id IN (?)", owned).Delete(&models.SupplyResponse{}).Error; err != nil {
		return translate(err, "failed to remove supply responses")
	}
	err := db.Where("demand_id = ? AND id IN ?", demandID, ids).Delete(&models.SupplyLot{}).Error
	return translate(err, "failed to remove supply lots")
}

func (r *demandRepository) RemoveMoneyGoals(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Where("demand_id = ? AND id IN ?", demandID, ids).Delete(&models.MoneyGoal{}).Error
	return translate(err, "failed to remove money goals")
}

// ClearMoneyGoals drops every money goal of the demand
func (r *demandRepository) ClearMoneyGoals(ctx context.Context, demandID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("demand_id = ?", demandID).Delete(&models.MoneyGoal{}).Error
	return translate(err, "failed to clear money goals")
}

// UpdateVolunteerSlot sets name and count. A count below the already
// approved headcount fails with ErrCapacityExceeded.
func (r *demandRepository) UpdateVolunteerSlot(ctx context.Context, demandID, id uuid.UUID, name string, count int) error {
	return r.updateGuarded(ctx, &models.VolunteerSlot{}, volunteerGuard, demandID, id, name, count)
}

// UpdateSupplyLot sets name and count. A count below the already approved
// quantity fails with ErrCapacityExceeded.
func (r *demandRepository) UpdateSupplyLot(ctx context.Context, demandID, id uuid.UUID, name string, count int) error {
	return r.updateGuarded(ctx, &models.SupplyLot{}, supplyGuard, demandID, id, name, count)
}

func (r *demandRepository) updateGuarded(ctx context.Context, model interface{}, g capacityGuard, demandID, id uuid.UUID, name string, count int) error {
	db := r.db.WithContext(ctx)
	approved := fmt.Sprintf(
		"? >= (SELECT COALESCE(SUM(r.count), 0) FROM %s r WHERE r.%s = %s.id AND r.%s = true)",
		g.responseTable, g.foreignKey, g.itemTable, g.flag)

	res := db.Model(model).
		Where("id = ? AND demand_id = ?", id, demandID).
		Where(approved, count).
		Updates(map[string]interface{}{"name": name, "count": count})
	if res.Error != nil {
		return translate(res.Error, "failed to update "+g.itemTable)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var exists int64
	if err := db.Model(model).Where("id = ? AND demand_id = ?", id, demandID).Count(&exists).Error; err != nil {
		return translate(err, "failed to update "+g.itemTable)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrCapacityExceeded
}

func (r *demandRepository) UpdateMoneyGoal(ctx context.Context, demandID, id uuid.UUID, summ float64) error {
	res := r.db.WithContext(ctx).Model(&models.MoneyGoal{}).
		Where("id = ? AND demand_id = ?", id, demandID).
		Update("summ", summ)
	return affectedOne(res, "failed to update money goal")
}

// GetVolunteerSlot gets a slot with its parent demand
func (r *demandRepository) GetVolunteerSlot(ctx context.Context, id uuid.UUID) (*models.VolunteerSlot, error) {
	var slot models.VolunteerSlot
	if err := r.db.WithContext(ctx).Preload("Demand").First(&slot, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to get volunteer slot")
	}
	return &slot, nil
}

// GetSupplyLot gets a lot with its parent demand
func (r *demandRepository) GetSupplyLot(ctx context.Context, id uuid.UUID) (*models.SupplyLot, error) {
	var lot models.SupplyLot
	if err := r.db.WithContext(ctx).Preload("Demand").First(&lot, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to get supply lot")
	}
	return &lot, nil
}

// affectedOne turns a write that matched no row into ErrNotFound
func affectedOne(res *gorm.DB, msg string) error {
	if res.Error != nil {
		return translate(res.Error, msg)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
