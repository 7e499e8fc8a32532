package payment

import (
	"context"
	"math"
	"strings"
	"sync"

	"example.com/backstage/services/charity/config"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrDeclined       = errors.New("charge declined")
	ErrUnknownAccount = errors.New("unknown gateway account")
)

// AccountRequest describes a connected account to create for an event
type AccountRequest struct {
	Country         string
	Email           string
	ExternalAccount string
}

// ChargeRequest is a charge against a connected account; amounts are in cents
type ChargeRequest struct {
	AccountID      string
	AmountCents    int64
	ApplicationFee int64
	Currency       string
	SourceToken    string
}

// Receipt is the gateway's record of a successful charge
type Receipt struct {
	ChargeID    string
	AmountCents int64
}

// Gateway charges payments into connected accounts
type Gateway interface {
	CreateConnectedAccount(ctx context.Context, req AccountRequest) (string, error)
	Charge(ctx context.Context, req ChargeRequest) (*Receipt, error)
}

// Breakdown splits a charge into fees and the amount the event receives
type Breakdown struct {
	Amount       int64
	PlatformFee  int64
	GatewayFee   int64
	AmountResult int64
}

// Fees computes the breakdown of an amount in cents. The platform takes
// ProfitPercent; the gateway takes GatewayPercent plus a fixed fee.
func Fees(amount int64, cfg config.PaymentConfig) Breakdown {
	platform := percentOf(amount, cfg.ProfitPercent)
	gateway := percentOf(amount, cfg.GatewayPercent) + cfg.GatewayFixedCents
	return Breakdown{
		Amount:       amount,
		PlatformFee:  platform,
		GatewayFee:   gateway,
		AmountResult: amount - platform - gateway,
	}
}

func percentOf(amount int64, percent float64) int64 {
	return int64(math.Round(float64(amount) * percent / 100))
}

// SandboxGateway is an in-process gateway for development and tests.
// Source tokens must start with "tok_"; "tok_chargeDeclined" is refused.
type SandboxGateway struct {
	mu       sync.Mutex
	accounts map[string]AccountRequest
}

// NewSandboxGateway creates a sandbox gateway
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{accounts: make(map[string]AccountRequest)}
}

func (g *SandboxGateway) CreateConnectedAccount(ctx context.Context, req AccountRequest) (string, error) {
	if req.Email == "" || req.ExternalAccount == "" {
		return "", errors.New("email and external account are required")
	}

	id := "acct_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[id] = req
	return id, nil
}

func (g *SandboxGateway) Charge(ctx context.Context, req ChargeRequest) (*Receipt, error) {
	g.mu.Lock()
	_, known := g.accounts[req.AccountID]
	g.mu.Unlock()

	switch {
	case !known:
		return nil, ErrUnknownAccount
	case req.AmountCents <= 0:
		return nil, errors.New("amount must be positive")
	case !strings.HasPrefix(req.SourceToken, "tok_"), req.SourceToken == "tok_chargeDeclined":
		return nil, ErrDeclined
	}

	return &Receipt{
		ChargeID:    "ch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
		AmountCents: req.AmountCents,
	}, nil
}
