package repositories

import (
	"context"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRepository persists gateway accounts and recorded charges
type PaymentRepository interface {
	GetAccount(ctx context.Context, eventID uuid.UUID) (*models.PaymentAccount, error)
	CreateAccount(ctx context.Context, account *models.PaymentAccount) error
	MoneyGoalForEvent(ctx context.Context, eventID uuid.UUID) (*models.MoneyGoal, error)
	CreatePayment(ctx context.Context, payment *models.EventPayment) error
	ListPayments(ctx context.Context, eventID uuid.UUID) ([]models.EventPayment, error)
	SumResult(ctx context.Context, eventID uuid.UUID) (int64, error)
}

type paymentRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db, readOnlyDB *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *paymentRepository) GetAccount(ctx context.Context, eventID uuid.UUID) (*models.PaymentAccount, error) {
	var account models.PaymentAccount
	if err := r.db.WithContext(ctx).First(&account, "event_id = ?", eventID).Error; err != nil {
		return nil, translate(err, "failed to get payment account")
	}
	return &account, nil
}

func (r *paymentRepository) CreateAccount(ctx context.Context, account *models.PaymentAccount) error {
	return translate(r.db.WithContext(ctx).Create(account).Error, "failed to create payment account")
}

// MoneyGoalForEvent returns the event's money goal
func (r *paymentRepository) MoneyGoalForEvent(ctx context.Context, eventID uuid.UUID) (*models.MoneyGoal, error) {
	var goal models.MoneyGoal
	err := r.db.WithContext(ctx).
		Joins("JOIN demands ON demands.id = money_goals.demand_id").
		Where("demands.event_id = ?", eventID).
		Order("money_goals.created_at DESC").
		First(&goal).Error
	if err != nil {
		return nil, translate(err, "failed to get money goal")
	}
	return &goal, nil
}

func (r *paymentRepository) CreatePayment(ctx context.Context, payment *models.EventPayment) error {
	return translate(r.db.WithContext(ctx).Create(payment).Error, "failed to record payment")
}

func (r *paymentRepository) ListPayments(ctx context.Context, eventID uuid.UUID) ([]models.EventPayment, error) {
	var payments []models.EventPayment
	err := r.readOnlyDB.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at DESC").Find(&payments).Error
	if err != nil {
		return nil, translate(err, "failed to list payments")
	}
	return payments, nil
}

// SumResult totals the net amount received by the event, in cents
func (r *paymentRepository) SumResult(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var total int64
	err := r.readOnlyDB.WithContext(ctx).Model(&models.EventPayment{}).
		Select("COALESCE(SUM(amount_result), 0)").
		Where("event_id = ?", eventID).
		Scan(&total).Error
	return total, translate(err, "failed to sum payments")
}
