package ledger

import (
	"context"
	"database/sql"

	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/errors"
)

// ChargeInput describes one completed transform to bill.
type ChargeInput struct {
	UserID     string
	Action     string
	TextLength int
	Credits    int
	Provider   string
	Result     string
	// RequestID is the client's Idempotency-Key. Empty disables replay detection.
	RequestID string
}

// ChargeResult is the state after a charge.
type ChargeResult struct {
	CreditsRemaining int
	Result           string
	Provider         string
	// Replayed is true when RequestID had already been charged.
	Replayed bool
}

// Lookup returns the recorded outcome of an earlier charge with the same
// request id, or nil when there is none.
func (s *Service) Lookup(ctx context.Context, userID, requestID string) (*ChargeResult, error) {
	if requestID == "" {
		return nil, nil
	}
	return lookup(ctx, s.db, userID, requestID)
}

func lookup(ctx context.Context, q db.Querier, userID, requestID string) (*ChargeResult, error) {
	prev, err := db.GetUsageByRequestID(ctx, q, userID, requestID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	balance, err := db.GetCreditBalance(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	res := &ChargeResult{CreditsRemaining: balance, Replayed: true}
	if prev.Result != nil {
		res.Result = *prev.Result
	}
	if prev.Provider != nil {
		res.Provider = *prev.Provider
	}
	return res, nil
}

// Charge debits the credits and records usage in one transaction. A request
// id that was already charged is not debited again; its recorded result is
// returned instead.
func (s *Service) Charge(ctx context.Context, in ChargeInput) (*ChargeResult, error) {
	if in.Credits <= 0 {
		in.Credits = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if in.RequestID != "" {
		prev, err := lookup(ctx, tx, in.UserID, in.RequestID)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			return prev, nil
		}
	}

	ok, err := db.DeductCredits(ctx, tx, in.UserID, in.Credits)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance, err := db.GetCreditBalance(ctx, tx, in.UserID)
		if err != nil {
			return nil, err
		}
		return nil, errors.NewInsufficientCredits(balance)
	}

	entry := &db.UsageLog{
		ID:          s.newID(),
		UserID:      in.UserID,
		Action:      in.Action,
		TextLength:  in.TextLength,
		CreditsUsed: in.Credits,
		Provider:    optional(in.Provider),
		RequestID:   optional(in.RequestID),
		Result:      optional(in.Result),
		CreatedAt:   s.now().Unix(),
	}
	if err := db.InsertUsageLog(ctx, tx, entry); err != nil {
		if err == db.ErrUniqueConstraint {
			// A concurrent request with the same id committed first.
			_ = tx.Rollback()
			return s.Lookup(ctx, in.UserID, in.RequestID)
		}
		return nil, err
	}

	balance, err := db.GetCreditBalance(ctx, tx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &ChargeResult{
		CreditsRemaining: balance,
		Result:           in.Result,
		Provider:         in.Provider,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ db.Querier = (*sql.Tx)(nil)
