package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"
	"example.com/backstage/services/charity/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Confirmation token purposes
const (
	PurposeVolunteerConfirm = "volunteer_response_confirm"
	PurposeSupplyConfirm    = "supply_response_confirm"
)

// TokenService issues and resolves single-use confirmation tokens
type TokenService struct {
	repo    repositories.TokenRepository
	ttl     time.Duration
	now     func() time.Time
	tracer  tracing.Tracer
	metrics *metrics.Metrics
}

// NewTokenService creates a new token service
func NewTokenService(deps Dependencies) *TokenService {
	return &TokenService{
		repo:    deps.Repos.Tokens,
		ttl:     deps.Config.Tokens.TTL,
		now:     deps.now,
		tracer:  deps.Tracer,
		metrics: deps.Metrics,
	}
}

// Issue stores a new token bound to the user and purpose
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID, purpose string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}

	ttl := s.ttl
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	token := &models.ConfirmationToken{
		Token:     hex.EncodeToString(raw),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return "", errors.Wrap(err, "failed to store token")
	}
	return token.Token, nil
}

// Resolve consumes the token and returns its user. A token resolves once.
func (s *TokenService) Resolve(ctx context.Context, token, purpose string) (uuid.UUID, error) {
	txn := s.tracer.StartTransaction("resolve-confirmation-token")
	defer s.tracer.EndTransaction(txn)

	if token == "" {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := s.repo.Consume(ctx, token, purpose, s.now())
	if err != nil {
		s.tracer.RecordError(txn, err)
		return uuid.Nil, domainError(err, "failed to resolve token")
	}

	s.metrics.IncrementCounter(metrics.TokensConsumed)
	return userID, nil
}
