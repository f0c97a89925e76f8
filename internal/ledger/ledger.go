// Package ledger is the credit-metered transform service: user accounts,
// credit balances, usage logs and the HTTP endpoints clients call.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/errors"
)

// Tiers.
const (
	TierFree  = "free"
	TierTrial = "trial"
	TierPaid  = "paid"
)

// APIKeyPrefix marks keys issued by this service.
const APIKeyPrefix = "gw_"

// DefaultInitialCredits is granted to new users when no amount is given.
const DefaultInitialCredits = 100

// Service owns the ledger database.
type Service struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewService wraps an initialized ledger database (see db.InitLedger).
func NewService(database *sql.DB) *Service {
	return &Service{
		db:      database,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Service) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// GenerateAPIKey returns "gw_" followed by 32 hex characters.
func GenerateAPIKey() string {
	id := uuid.New()
	return APIKeyPrefix + hex.EncodeToString(id[:])
}

// UserByAPIKey resolves a bearer key. Unknown keys are UNAUTHENTICATED.
func (s *Service) UserByAPIKey(ctx context.Context, apiKey string) (*db.User, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.NewUnauthenticated("Missing or invalid API key")
	}
	u, err := db.GetUserByAPIKey(ctx, s.db, apiKey)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.NewUnauthenticated("Invalid API key")
	}
	return u, err
}

// HasEnoughCredits reports whether userID can pay n credits.
func (s *Service) HasEnoughCredits(ctx context.Context, userID string, n int) (bool, error) {
	balance, err := db.GetCreditBalance(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	return balance >= n, nil
}

// Balance returns the remaining credits.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return db.GetCreditBalance(ctx, s.db, userID)
}

// DeductCredits debits n credits. It never drives a balance negative:
// an insufficient balance yields INSUFFICIENT_CREDITS and no change.
func (s *Service) DeductCredits(ctx context.Context, userID string, n int) error {
	ok, err := db.DeductCredits(ctx, s.db, userID, n)
	if err != nil {
		return err
	}
	if !ok {
		balance, err := db.GetCreditBalance(ctx, s.db, userID)
		if err != nil {
			return err
		}
		return errors.NewInsufficientCredits(balance)
	}
	return nil
}

// LogUsage records a usage row without touching the balance.
func (s *Service) LogUsage(ctx context.Context, userID, action string, textLength, creditsUsed int) error {
	return db.InsertUsageLog(ctx, s.db, &db.UsageLog{
		ID:          s.newID(),
		UserID:      userID,
		Action:      action,
		TextLength:  textLength,
		CreditsUsed: creditsUsed,
		CreatedAt:   s.now().Unix(),
	})
}

// CreateUser issues a trial account with a fresh API key.
func (s *Service) CreateUser(ctx context.Context, email string, initialCredits int) (*db.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.NewInvalidRequest("email is required")
	}
	if initialCredits < 0 {
		return nil, errors.NewInvalidRequest("initial credits must be >= 0")
	}
	now := s.now().Unix()
	u := &db.User{
		ID:               s.newID(),
		Email:            email,
		APIKey:           GenerateAPIKey(),
		Tier:             TierTrial,
		CreditsRemaining: initialCredits,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := db.InsertUser(ctx, s.db, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateTier changes the tier and adds creditsToAdd.
func (s *Service) UpdateTier(ctx context.Context, userID, tier string, creditsToAdd int) (*db.User, error) {
	switch tier {
	case TierFree, TierTrial, TierPaid:
	default:
		return nil, errors.NewInvalidRequest("tier must be one of free, trial, paid")
	}
	if creditsToAdd < 0 {
		return nil, errors.NewInvalidRequest("credits to add must be >= 0")
	}
	if err := db.UpdateUserTier(ctx, s.db, userID, tier, creditsToAdd); err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, s.db, userID)
}

// Usage lists a user's most recent charges.
func (s *Service) Usage(ctx context.Context, userID string, limit int) ([]db.UsageLog, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.ListUsage(ctx, s.db, userID, limit)
}
