package repositories

import (
	"context"
	"time"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenRepository stores single-use confirmation tokens
type TokenRepository interface {
	Create(ctx context.Context, token *models.ConfirmationToken) error
	Consume(ctx context.Context, token, purpose string, now time.Time) (uuid.UUID, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *models.ConfirmationToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error, "failed to create confirmation token")
}

// Consume marks the token used and returns its user. Only one caller can
// consume a token; later calls and expired tokens get ErrTokenInvalid.
func (r *tokenRepository) Consume(ctx context.Context, token, purpose string, now time.Time) (uuid.UUID, error) {
	var row struct {
		UserID uuid.UUID
	}
	res := r.db.WithContext(ctx).Raw(
		`UPDATE confirmation_tokens SET consumed_at = ?
		WHERE token = ? AND purpose = ? AND consumed_at IS NULL AND expires_at > ?
		RETURNING user_id`,
		now, token, purpose, now,
	).Scan(&row)
	if res.Error != nil {
		return uuid.Nil, translate(res.Error, "failed to consume confirmation token")
	}
	if res.RowsAffected == 0 || row.UserID == uuid.Nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return row.UserID, nil
}
