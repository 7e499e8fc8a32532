package models

import (
	"github.com/google/uuid"
)

// DemandCategory tags a demand with the kind of need it declares
type DemandCategory string

const (
	CategoryMoney      DemandCategory = "money"
	CategoryVolunteers DemandCategory = "volunteers"
	CategorySupplies   DemandCategory = "supplies"
)

// CategoryRules describes how a demand category behaves
type CategoryRules struct {
	Category DemandCategory
	// ReplaceOnAdd drops existing items before new ones are inserted,
	// so the category holds at most the latest batch.
	ReplaceOnAdd bool
	// HasCapacity means items carry a count that responses are reconciled against.
	HasCapacity bool
}

// Categories maps each demand category to its behavior. Iteration order is
// given by CategoryOrder.
var Categories = map[DemandCategory]CategoryRules{
	CategoryMoney:      {Category: CategoryMoney, ReplaceOnAdd: true, HasCapacity: false},
	CategoryVolunteers: {Category: CategoryVolunteers, ReplaceOnAdd: false, HasCapacity: true},
	CategorySupplies:   {Category: CategorySupplies, ReplaceOnAdd: false, HasCapacity: true},
}

// CategoryOrder is the order categories are applied in
var CategoryOrder = []DemandCategory{CategoryVolunteers, CategorySupplies, CategoryMoney}

// ParseCategory returns the category for a demand type name
func ParseCategory(name string) (DemandCategory, bool) {
	c := DemandCategory(name)
	_, ok := Categories[c]
	return c, ok
}

// DemandType is the persisted name of a demand category
type DemandType struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

// DeliveryOption is a way a pledged supply can reach the event
type DeliveryOption struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

// Demand is one need category declared by an event
type Demand struct {
	Base
	EventID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"event_id"`
	DemandTypeID uint            `gorm:"not null;index" json:"demand_type_id"`
	DemandType   DemandType      `gorm:"foreignKey:DemandTypeID" json:"demand_type"`
	Volunteers   []VolunteerSlot `gorm:"foreignKey:DemandID" json:"volunteers,omitempty"`
	Supplies     []SupplyLot     `gorm:"foreignKey:DemandID" json:"supplies,omitempty"`
	Money        []MoneyGoal     `gorm:"foreignKey:DemandID" json:"money,omitempty"`
}

// VolunteerSlot is a volunteer role with a requested headcount
type VolunteerSlot struct {
	Base
	DemandID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"demand_id"`
	Name          string              `gorm:"not null" json:"name"`
	Count         int                 `gorm:"not null" json:"count"`
	Remaining     *int                `gorm:"-" json:"remaining,omitempty"`
	SpecialSkills bool                `gorm:"not null;default:false" json:"special_skills"`
	Description   string              `json:"description"`
	Demand        *Demand             `gorm:"foreignKey:DemandID" json:"-"`
	Responses     []VolunteerResponse `gorm:"foreignKey:VolunteerSlotID" json:"responses,omitempty"`
}

// SupplyLot is a requested quantity of one supply item
type SupplyLot struct {
	Base
	DemandID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"demand_id"`
	Name             string           `gorm:"not null" json:"name"`
	Count            int              `gorm:"not null" json:"count"`
	Remaining        *int             `gorm:"-" json:"remaining,omitempty"`
	DeliveryOptionID *uint            `json:"delivery_option_id"`
	Description      string           `json:"description"`
	Demand           *Demand          `gorm:"foreignKey:DemandID" json:"-"`
	Responses        []SupplyResponse `gorm:"foreignKey:SupplyLotID" json:"responses,omitempty"`
}

// MoneyGoal is a fundraising target; fulfillment is tracked through payments
type MoneyGoal struct {
	Base
	DemandID         uuid.UUID `gorm:"type:uuid;not null;index" json:"demand_id"`
	Summ             float64   `gorm:"type:numeric(14,2);not null" json:"summ"`
	PaymentFrequency string    `json:"payment_frequency"`
	Account          string    `json:"account"`
}

// ParcelStatus is the shipping state of a supply response
type ParcelStatus string

const (
	ParcelPending  ParcelStatus = "pending"
	ParcelSent     ParcelStatus = "sent"
	ParcelReceived ParcelStatus = "received"
)

// VolunteerResponse is a user's pledge to fill a volunteer slot.
// Counted against capacity once CreatorApproved is set.
type VolunteerResponse struct {
	Base
	VolunteerSlotID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_volunteer_responses_user_slot" json:"volunteer_slot_id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_volunteer_responses_user_slot" json:"user_id"`
	Count           int            `gorm:"not null;default:1" json:"count"`
	UserApproved    bool           `gorm:"not null;default:false" json:"user_approved"`
	CreatorApproved bool           `gorm:"not null;default:false" json:"creator_approved"`
	VolunteerSlot   *VolunteerSlot `gorm:"foreignKey:VolunteerSlotID" json:"-"`
}

// SupplyResponse is a user's pledge to send part of a supply lot.
// Counted against capacity once UserApproved is set.
type SupplyResponse struct {
	Base
	SupplyLotID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_supply_responses_user_lot" json:"supply_lot_id"`
	UserID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_supply_responses_user_lot" json:"user_id"`
	Count        int          `gorm:"not null;default:1" json:"count"`
	UserApproved bool         `gorm:"not null;default:false" json:"user_approved"`
	ParcelStatus ParcelStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"parcel_status"`
	SupplyLot    *SupplyLot   `gorm:"foreignKey:SupplyLotID" json:"-"`
}
