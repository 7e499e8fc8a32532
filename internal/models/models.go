package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event status names. Statuses live in their own table and are matched by name.
const (
	StatusOpen     = "open"
	StatusFeatured = "featured"
	StatusTrending = "trending"
	StatusClosed   = "closed"
)

// Base holds the identity and timestamps shared by domain entities
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// EventStatus is a named event state (open, featured, trending, closed)
type EventStatus struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

// TypeDestination is the beneficiary category of an event
type TypeDestination struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

// Purpose is the cause category of an event
type Purpose struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

// Religion is the optional faith category of an event
type Religion struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

// Country represents a country with its ISO short name
type Country struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	SortName string `gorm:"column:sortname;size:3" json:"sortname"`
}

// State represents a region inside a country
type State struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	CountryID uint   `gorm:"index" json:"country_id"`
}

// City represents a city with its coordinates
type City struct {
	ID      uint    `gorm:"primaryKey" json:"id"`
	Name    string  `gorm:"not null" json:"name"`
	StateID uint    `gorm:"index" json:"state_id"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Event is a fundraising or volunteering campaign created by a user
type Event struct {
	Base
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Title             string          `gorm:"not null" json:"title"`
	Story             string          `gorm:"type:text" json:"story"`
	ShortStory        string          `json:"short_story"`
	Address           string          `json:"address"`
	TypeDestinationID uint            `gorm:"index" json:"type_destination_id"`
	PurposeID         uint            `gorm:"index" json:"purpose_id"`
	ReligionID        uint            `gorm:"index" json:"religion_id"`
	CountryID         uint            `gorm:"index" json:"country_id"`
	StateID           uint            `gorm:"index" json:"state_id"`
	CityID            uint            `gorm:"index" json:"city_id"`
	EventStatusID     uint            `gorm:"index" json:"event_status_id"`
	IsApproved        bool            `gorm:"not null;default:false;index" json:"is_approved"`
	IsSubmit          bool            `gorm:"not null;default:false" json:"is_submit"`
	FinishDate        *time.Time      `gorm:"type:date;index" json:"finish_date"`
	Status            EventStatus     `gorm:"foreignKey:EventStatusID" json:"status"`
	TypeDestination   TypeDestination `gorm:"foreignKey:TypeDestinationID" json:"type_destination"`
	Purpose           Purpose         `gorm:"foreignKey:PurposeID" json:"purpose"`
	Religion          Religion        `gorm:"foreignKey:ReligionID" json:"religion"`
	Country           Country         `gorm:"foreignKey:CountryID" json:"country"`
	State             State           `gorm:"foreignKey:StateID" json:"state"`
	City              City            `gorm:"foreignKey:CityID" json:"city"`
	Demands           []Demand        `gorm:"foreignKey:EventID" json:"demands,omitempty"`
	Images            []EventImage    `gorm:"foreignKey:EventID" json:"images,omitempty"`
}

// IsClosed reports whether the event carries the closed status
func (e *Event) IsClosed() bool {
	return e.Status.Name == StatusClosed
}

// ConfirmationToken is a single-use key mailed to a user to confirm a response
type ConfirmationToken struct {
	Token      string     `gorm:"primaryKey;size:64" json:"-"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Purpose    string     `gorm:"not null;index" json:"purpose"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// EventView marks that a user has opened an event; one row per (event, user)
type EventView struct {
	Base
	EventID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_views_event_user" json:"event_id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_views_event_user" json:"user_id"`
}

// EventComment is a user comment on an event
type EventComment struct {
	Base
	EventID   uuid.UUID     `gorm:"type:uuid;not null;index" json:"event_id"`
	UserID    uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Content   string        `gorm:"type:text;not null" json:"content"`
	Likes     []CommentLike `gorm:"foreignKey:CommentID" json:"-"`
	LikeCount int64         `gorm:"-" json:"like_count"`
}

// CommentLike is one user's like on a comment
type CommentLike struct {
	Base
	CommentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_comment_likes_comment_user" json:"comment_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_comment_likes_comment_user" json:"user_id"`
}

// EventUpdate is a news post the owner publishes on an event
type EventUpdate struct {
	Base
	EventID      uuid.UUID   `gorm:"type:uuid;not null;index" json:"event_id"`
	Title        string      `gorm:"not null" json:"title"`
	Content      string      `gorm:"type:text;not null" json:"content"`
	DemandTypeID *uint       `json:"demand_type_id"`
	DemandType   *DemandType `gorm:"foreignKey:DemandTypeID" json:"demand_type,omitempty"`
}

// EventImage is an uploaded image attached to an event
type EventImage struct {
	Base
	EventID   uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	URL       string    `gorm:"not null" json:"url"`
	Title     string    `json:"title"`
	IsPreview bool      `gorm:"not null;default:false" json:"is_preview"`
}

// EventVideo is an external video link attached to an event
type EventVideo struct {
	Base
	EventID uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	URL     string    `gorm:"not null" json:"url"`
	Title   string    `json:"title"`
}

// PaymentAccount binds an event's money goal to a connected gateway account
type PaymentAccount struct {
	Base
	EventID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"event_id"`
	MoneyGoalID      *uuid.UUID `gorm:"type:uuid" json:"money_goal_id"`
	GatewayAccountID string     `gorm:"not null" json:"gateway_account_id"`
	Email            string     `json:"email"`
}

// EventPayment is a recorded charge; all amounts are in cents
type EventPayment struct {
	Base
	PaymentAccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"payment_account_id"`
	EventID          uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	PlatformFee      int64     `gorm:"not null" json:"platform_fee"`
	GatewayFee       int64     `gorm:"not null" json:"gateway_fee"`
	AmountResult     int64     `gorm:"not null" json:"amount_result"`
	ChargeID         string    `gorm:"not null" json:"charge_id"`
}

// AllModels returns every persisted type in migration order
func AllModels() []interface{} {
	return []interface{}{
		&EventStatus{},
		&DemandType{},
		&DeliveryOption{},
		&TypeDestination{},
		&Purpose{},
		&Religion{},
		&Country{},
		&State{},
		&City{},
		&Event{},
		&Demand{},
		&VolunteerSlot{},
		&SupplyLot{},
		&MoneyGoal{},
		&VolunteerResponse{},
		&SupplyResponse{},
		&ConfirmationToken{},
		&EventView{},
		&EventComment{},
		&CommentLike{},
		&EventUpdate{},
		&EventImage{},
		&EventVideo{},
		&PaymentAccount{},
		&EventPayment{},
	}
}
