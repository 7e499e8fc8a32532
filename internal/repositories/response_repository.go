package repositories

import (
	"context"
	"fmt"
	"time"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReminderTarget is a volunteer response on an event that finishes soon
type ReminderTarget struct {
	ResponseID uuid.UUID
	UserID     uuid.UUID
	EventID    uuid.UUID
	EventTitle string
	SlotName   string
	FinishDate time.Time
}

// ResponseRepository persists volunteer and supply responses and guards
// the capacity of their slots and lots.
type ResponseRepository interface {
	ApprovedVolunteerCount(ctx context.Context, slotID uuid.UUID) (int, error)
	ApprovedSupplyCount(ctx context.Context, lotID uuid.UUID) (int, error)

	CreateVolunteer(ctx context.Context, response *models.VolunteerResponse) error
	CreateSupply(ctx context.Context, response *models.SupplyResponse) error
	HasVolunteerResponse(ctx context.Context, slotID, userID uuid.UUID) (bool, error)
	HasSupplyResponse(ctx context.Context, lotID, userID uuid.UUID) (bool, error)

	GetVolunteer(ctx context.Context, id uuid.UUID) (*models.VolunteerResponse, error)
	GetSupply(ctx context.Context, id uuid.UUID) (*models.SupplyResponse, error)

	ApproveVolunteer(ctx context.Context, id uuid.UUID) error
	ConfirmVolunteers(ctx context.Context, eventID, userID uuid.UUID) (int64, error)

	PendingSupplies(ctx context.Context, eventID, userID uuid.UUID) ([]models.SupplyResponse, error)
	ConfirmSupply(ctx context.Context, id uuid.UUID) error
	MarkSupplySent(ctx context.Context, id uuid.UUID) error
	MarkSupplyReceived(ctx context.Context, id uuid.UUID) error

	VolunteerReminderTargets(ctx context.Context, until time.Time, closedStatusID uint) ([]ReminderTarget, error)
}

// capacityGuard describes a response table whose approval flag is counted
// against the count of the parent item.
type capacityGuard struct {
	itemTable     string
	responseTable string
	foreignKey    string
	flag          string
}

var (
	volunteerGuard = capacityGuard{
		itemTable:     "volunteer_slots",
		responseTable: "volunteer_responses",
		foreignKey:    "volunteer_slot_id",
		flag:          "creator_approved",
	}
	supplyGuard = capacityGuard{
		itemTable:     "supply_lots",
		responseTable: "supply_responses",
		foreignKey:    "supply_lot_id",
		flag:          "user_approved",
	}
)

// approveSQL sets the flag on one response only if the approved sum of its
// item plus the response's own count stays within the item's count.
// Arguments: updated_at, response id, item id, item id.
func (g capacityGuard) approveSQL(extraSet string) string {
	return fmt.Sprintf(
		`UPDATE %[2]s SET %[4]s = true%[5]s, updated_at = ? `+
			`WHERE %[2]s.id = ? AND %[2]s.%[4]s = false `+
			`AND (SELECT COALESCE(SUM(r.count), 0) FROM %[2]s r WHERE r.%[3]s = ? AND r.%[4]s = true) + %[2]s.count `+
			`<= (SELECT i.count FROM %[1]s i WHERE i.id = ?)`,
		g.itemTable, g.responseTable, g.foreignKey, g.flag, extraSet)
}

func (g capacityGuard) approvedSum(db *gorm.DB, itemID uuid.UUID) (int, error) {
	var total int
	err := db.Table(g.responseTable).
		Select("COALESCE(SUM(count), 0)").
		Where(g.foreignKey+" = ? AND "+g.flag+" = ?", itemID, true).
		Scan(&total).Error
	return total, err
}

type responseRepository struct {
	db *gorm.DB
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &responseRepository{db: db}
}

func (r *responseRepository) ApprovedVolunteerCount(ctx context.Context, slotID uuid.UUID) (int, error) {
	total, err := volunteerGuard.approvedSum(r.db.WithContext(ctx), slotID)
	return total, translate(err, "failed to sum approved volunteers")
}

func (r *responseRepository) ApprovedSupplyCount(ctx context.Context, lotID uuid.UUID) (int, error) {
	total, err := supplyGuard.approvedSum(r.db.WithContext(ctx), lotID)
	return total, translate(err, "failed to sum approved supplies")
}

// CreateVolunteer inserts a response; a second response by the same user on
// the same slot fails with ErrDuplicateKey.
func (r *responseRepository) CreateVolunteer(ctx context.Context, response *models.VolunteerResponse) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(response).Error
	return translate(err, "failed to create volunteer response")
}

// CreateSupply inserts a response; a second response by the same user on
// the same lot fails with ErrDuplicateKey.
func (r *responseRepository) CreateSupply(ctx context.Context, response *models.SupplyResponse) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(response).Error
	return translate(err, "failed to create supply response")
}

func (r *responseRepository) HasVolunteerResponse(ctx context.Context, slotID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.VolunteerResponse{}).
		Where("volunteer_slot_id = ? AND user_id = ?", slotID, userID).
		Count(&count).Error
	return count > 0, translate(err, "failed to check volunteer response")
}

func (r *responseRepository) HasSupplyResponse(ctx context.Context, lotID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SupplyResponse{}).
		Where("supply_lot_id = ? AND user_id = ?", lotID, userID).
		Count(&count).Error
	return count > 0, translate(err, "failed to check supply response")
}

// GetVolunteer gets a response with its slot and the slot's demand
func (r *responseRepository) GetVolunteer(ctx context.Context, id uuid.UUID) (*models.VolunteerResponse, error) {
	var response models.VolunteerResponse
	err := r.db.WithContext(ctx).
		Preload("VolunteerSlot.Demand").
		First(&response, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get volunteer response")
	}
	return &response, nil
}

// GetSupply gets a response with its lot and the lot's demand
func (r *responseRepository) GetSupply(ctx context.Context, id uuid.UUID) (*models.SupplyResponse, error) {
	var response models.SupplyResponse
	err := r.db.WithContext(ctx).
		Preload("SupplyLot.Demand").
		First(&response, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get supply response")
	}
	return &response, nil
}

// ApproveVolunteer sets creator_approved under a lock on the slot. Approving
// an already approved response is a no-op.
func (r *responseRepository) ApproveVolunteer(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var response models.VolunteerResponse
		if err := tx.First(&response, "id = ?", id).Error; err != nil {
			return err
		}

		var slot models.VolunteerSlot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&slot, "id = ?", response.VolunteerSlotID).Error; err != nil {
			return err
		}

		if err := tx.First(&response, "id = ?", id).Error; err != nil {
			return err
		}
		if response.CreatorApproved {
			return nil
		}

		res := tx.Exec(volunteerGuard.approveSQL(""), time.Now(), id, slot.ID, slot.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCapacityExceeded
		}
		return nil
	})
	return translate(err, "failed to approve volunteer response")
}

// ConfirmVolunteers marks every unconfirmed volunteer response of the user
// under the event as user-confirmed and returns how many changed.
func (r *responseRepository) ConfirmVolunteers(ctx context.Context, eventID, userID uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	slots := db.Table("volunteer_slots").
		Select("volunteer_slots.id").
		Joins("JOIN demands ON demands.id = volunteer_slots.demand_id").
		Where("demands.event_id = ?", eventID)

	res := db.Model(&models.VolunteerResponse{}).
		Where("user_id = ? AND user_approved = ? AND volunteer_slot_id IN (?)", userID, false, slots).
		Update("user_approved", true)
	if res.Error != nil {
		return 0, translate(res.Error, "failed to confirm volunteer responses")
	}
	return res.RowsAffected, nil
}

// PendingSupplies lists the user's unconfirmed supply responses under the event
func (r *responseRepository) PendingSupplies(ctx context.Context, eventID, userID uuid.UUID) ([]models.SupplyResponse, error) {
	var responses []models.SupplyResponse
	err := r.db.WithContext(ctx).
		Joins("JOIN supply_lots ON supply_lots.id = supply_responses.supply_lot_id").
		Joins("JOIN demands ON demands.id = supply_lots.demand_id").
		Where("demands.event_id = ? AND supply_responses.user_id = ? AND supply_responses.user_approved = ?", eventID, userID, false).
		Order("supply_responses.created_at ASC").
		Find(&responses).Error
	if err != nil {
		return nil, translate(err, "failed to list pending supply responses")
	}
	return responses, nil
}

// ConfirmSupply sets user_approved under a lock on the lot
func (r *responseRepository) ConfirmSupply(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		response, err := lockSupply(tx, id)
		if err != nil {
			return err
		}
		if response.UserApproved {
			return nil
		}

		res := tx.Exec(supplyGuard.approveSQL(""), time.Now(), id, response.SupplyLotID, response.SupplyLotID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCapacityExceeded
		}
		return nil
	})
	return translate(err, "failed to confirm supply response")
}

// MarkSupplySent moves a response to sent and forces user_approved. A
// response that is not yet approved passes the capacity check first.
func (r *responseRepository) MarkSupplySent(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		response, err := lockSupply(tx, id)
		if err != nil {
			return err
		}
		if response.ParcelStatus == models.ParcelReceived {
			return ErrStateConflict
		}

		if response.UserApproved {
			return tx.Model(&models.SupplyResponse{}).
				Where("id = ?", id).
				Update("parcel_status", models.ParcelSent).Error
		}

		extra := fmt.Sprintf(", parcel_status = '%s'", models.ParcelSent)
		res := tx.Exec(supplyGuard.approveSQL(extra), time.Now(), id, response.SupplyLotID, response.SupplyLotID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCapacityExceeded
		}
		return nil
	})
	return translate(err, "failed to mark supply response sent")
}

// MarkSupplyReceived moves a response to received
func (r *responseRepository) MarkSupplyReceived(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.SupplyResponse{}).
		Where("id = ?", id).
		Update("parcel_status", models.ParcelReceived)
	return affectedOne(res, "failed to mark supply response received")
}

// lockSupply locks the response's lot and returns the response as seen
// after the lock was taken.
func lockSupply(tx *gorm.DB, id uuid.UUID) (*models.SupplyResponse, error) {
	var response models.SupplyResponse
	if err := tx.First(&response, "id = ?", id).Error; err != nil {
		return nil, err
	}

	var lot models.SupplyLot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, "id = ?", response.SupplyLotID).Error; err != nil {
		return nil, err
	}

	if err := tx.First(&response, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

// VolunteerReminderTargets lists volunteer responses on open events that
// finish on or before until.
func (r *responseRepository) VolunteerReminderTargets(ctx context.Context, until time.Time, closedStatusID uint) ([]ReminderTarget, error) {
	var targets []ReminderTarget
	err := r.db.WithContext(ctx).
		Table("volunteer_responses").
		Select(`volunteer_responses.id AS response_id, volunteer_responses.user_id AS user_id,
			events.id AS event_id, events.title AS event_title,
			volunteer_slots.name AS slot_name, events.finish_date AS finish_date`).
		Joins("JOIN volunteer_slots ON volunteer_slots.id = volunteer_responses.volunteer_slot_id").
		Joins("JOIN demands ON demands.id = volunteer_slots.demand_id").
		Joins("JOIN events ON events.id = demands.event_id").
		Where("events.finish_date IS NOT NULL AND events.finish_date <= ? AND events.event_status_id <> ?", until.Format("2006-01-02"), closedStatusID).
		Order("events.finish_date ASC").
		Scan(&targets).Error
	if err != nil {
		return nil, translate(err, "failed to list reminder targets")
	}
	return targets, nil
}
