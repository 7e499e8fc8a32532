package services

import (
	"context"
	"strings"

	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/payment"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConnectedAccountInput binds an event to a payout account at the gateway
type ConnectedAccountInput struct {
	Country         string `json:"country" validate:"required,len=2"`
	Email           string `json:"email" validate:"required,email"`
	ExternalAccount string `json:"external_account" validate:"required"`
}

// PaymentInput is a donation to an event, amount in cents
type PaymentInput struct {
	Amount      int64  `json:"amount" validate:"required,gte=100,lte=99999999"`
	SourceToken string `json:"source_token" validate:"required"`
}

// PaymentList is the event's recorded payments with their net total
type PaymentList struct {
	Data  []models.EventPayment `json:"data"`
	Total float64               `json:"total"`
}

// PaymentService collects donations for events through the gateway
type PaymentService struct {
	deps     Dependencies
	events   repositories.EventRepository
	payments repositories.PaymentRepository
}

// NewPaymentService creates a new payment service
func NewPaymentService(deps Dependencies) *PaymentService {
	return &PaymentService{
		deps:     deps,
		events:   deps.Repos.Events,
		payments: deps.Repos.Payments,
	}
}

// CreateConnectedAccount opens a gateway account for the event. Owner only;
// an event has at most one account.
func (s *PaymentService) CreateConnectedAccount(ctx context.Context, eventID uuid.UUID, actor Actor, in ConnectedAccountInput) (*models.PaymentAccount, error) {
	txn := s.deps.Tracer.StartTransaction("create-connected-account")
	defer s.deps.Tracer.EndTransaction(txn)

	if err := validate(in); err != nil {
		return nil, err
	}
	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, false); err != nil {
		return nil, err
	}

	if _, err := s.payments.GetAccount(ctx, eventID); err == nil {
		return nil, fieldError("event_id", "already has a payment account")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, domainError(err, "failed to check payment account")
	}

	account := &models.PaymentAccount{
		EventID: eventID,
		Email:   in.Email,
	}
	goal, err := s.payments.MoneyGoalForEvent(ctx, eventID)
	switch {
	case err == nil:
		account.MoneyGoalID = &goal.ID
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, domainError(err, "failed to load money goal")
	}

	span := s.deps.Tracer.StartSpan("gateway-create-account", txn)
	gatewayID, err := s.deps.Gateway.CreateConnectedAccount(ctx, payment.AccountRequest{
		Country:         strings.ToUpper(in.Country),
		Email:           in.Email,
		ExternalAccount: in.ExternalAccount,
	})
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		log.Error().Err(err).Str("event_id", eventID.String()).Msg("Gateway refused connected account")
		return nil, ErrPaymentFailed
	}
	account.GatewayAccountID = gatewayID

	if err := s.payments.CreateAccount(ctx, account); err != nil {
		return nil, domainError(err, "failed to save payment account")
	}

	log.Info().Str("event_id", eventID.String()).Msg("Payment account connected")
	return account, nil
}

// CreatePayment charges a donation into the event's account and records
// the fee breakdown.
func (s *PaymentService) CreatePayment(ctx context.Context, eventID uuid.UUID, in PaymentInput) (*models.EventPayment, error) {
	txn := s.deps.Tracer.StartTransaction("create-payment")
	defer s.deps.Tracer.EndTransaction(txn)

	if err := validate(in); err != nil {
		return nil, err
	}

	account, err := s.payments.GetAccount(ctx, eventID)
	if err != nil {
		return nil, domainError(err, "failed to load payment account")
	}

	fees := payment.Fees(in.Amount, s.deps.Config.Payment)
	if fees.AmountResult <= 0 {
		return nil, fieldError("amount", "does not cover the fees")
	}

	span := s.deps.Tracer.StartSpan("gateway-charge", txn)
	receipt, err := s.deps.Gateway.Charge(ctx, payment.ChargeRequest{
		AccountID:      account.GatewayAccountID,
		AmountCents:    in.Amount,
		ApplicationFee: fees.PlatformFee,
		Currency:       s.deps.Config.Payment.Currency,
		SourceToken:    in.SourceToken,
	})
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Charge failed")
		return nil, ErrPaymentFailed
	}

	record := &models.EventPayment{
		PaymentAccountID: account.ID,
		EventID:          eventID,
		Amount:           fees.Amount,
		PlatformFee:      fees.PlatformFee,
		GatewayFee:       fees.GatewayFee,
		AmountResult:     fees.AmountResult,
		ChargeID:         receipt.ChargeID,
	}
	if err := s.payments.CreatePayment(ctx, record); err != nil {
		log.Error().Err(err).Str("charge_id", receipt.ChargeID).Msg("Charge succeeded but was not recorded")
		return nil, domainError(err, "failed to record payment")
	}

	log.Info().
		Str("event_id", eventID.String()).
		Int64("amount", fees.Amount).
		Int64("amount_result", fees.AmountResult).
		Msg("Payment recorded")
	bumpSearchVersion(ctx, s.deps)
	return record, nil
}

// ListPayments returns the event's payments, newest first
func (s *PaymentService) ListPayments(ctx context.Context, eventID uuid.UUID) (*PaymentList, error) {
	payments, err := s.payments.ListPayments(ctx, eventID)
	if err != nil {
		return nil, domainError(err, "failed to list payments")
	}
	var total int64
	for _, p := range payments {
		total += p.AmountResult
	}
	return &PaymentList{Data: payments, Total: centsToUnits(total)}, nil
}

// Total is the net amount the event has received, in currency units
func (s *PaymentService) Total(ctx context.Context, eventID uuid.UUID) (float64, error) {
	cents, err := s.payments.SumResult(ctx, eventID)
	if err != nil {
		return 0, domainError(err, "failed to sum payments")
	}
	return centsToUnits(cents), nil
}
