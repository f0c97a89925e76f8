package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/ghostwrite/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.GhostError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// User is a ledger account.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	APIKey           string `json:"-"`
	Tier             string `json:"tier"`
	CreditsRemaining int    `json:"credits_remaining"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

// UsageLog records one charged transform.
type UsageLog struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Action      string  `json:"action"`
	TextLength  int     `json:"text_length"`
	CreditsUsed int     `json:"credits_used"`
	Provider    *string `json:"provider,omitempty"`
	RequestID   *string `json:"request_id,omitempty"`
	Result      *string `json:"-"`
	CreatedAt   int64   `json:"created_at"`
}

const userColumns = `id, email, api_key, tier, credits_remaining, created_at, updated_at`

// InsertUser stores a new user.
func InsertUser(ctx context.Context, q Querier, u *User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.APIKey, u.Tier, u.CreditsRemaining, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetUserByAPIKey looks a user up by API key.
func GetUserByAPIKey(ctx context.Context, q Querier, apiKey string) (*User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE api_key = ?`, apiKey)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("api key")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

// GetUserByID looks a user up by ID.
func GetUserByID(ctx context.Context, q Querier, id string) (*User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

// GetCreditBalance returns a user's remaining credits.
func GetCreditBalance(ctx context.Context, q Querier, userID string) (int, error) {
	var credits int
	err := q.QueryRowContext(ctx, `SELECT credits_remaining FROM users WHERE id = ?`, userID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, errors.NewNotFound(userID)
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return credits, nil
}

// DeductCredits subtracts n credits in a single conditional UPDATE.
// Returns false without changing anything when the balance is below n.
func DeductCredits(ctx context.Context, q Querier, userID string, n int) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET credits_remaining = credits_remaining - ?, updated_at = ?
		WHERE id = ? AND credits_remaining >= ?
	`, n, time.Now().Unix(), userID, n)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return affected == 1, nil
}

// UpdateUserTier sets the tier and adds creditsToAdd (may be zero) atomically.
func UpdateUserTier(ctx context.Context, q Querier, userID, tier string, creditsToAdd int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET tier = ?, credits_remaining = credits_remaining + ?, updated_at = ?
		WHERE id = ?
	`, tier, creditsToAdd, time.Now().Unix(), userID)
	if err != nil {
		return errors.NewInternal(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound(userID)
	}
	return nil
}

// InsertUsageLog records a charge.
func InsertUsageLog(ctx context.Context, q Querier, l *UsageLog) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO usage_logs (
			id, user_id, action, text_length, credits_used,
			provider, request_id, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.UserID, l.Action, l.TextLength, l.CreditsUsed,
		toNullString(l.Provider), toNullString(l.RequestID), toNullString(l.Result), l.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetUsageByRequestID finds a previous charge for the same client request.
func GetUsageByRequestID(ctx context.Context, q Querier, userID, requestID string) (*UsageLog, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, action, text_length, credits_used, provider, request_id, result, created_at
		FROM usage_logs
		WHERE user_id = ? AND request_id = ?
	`, userID, requestID)
	l, err := scanUsage(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(requestID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return l, nil
}

// ListUsage returns a user's most recent charges, newest first.
func ListUsage(ctx context.Context, q Querier, userID string, limit int) ([]UsageLog, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, action, text_length, credits_used, provider, request_id, result, created_at
		FROM usage_logs
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	logs := make([]UsageLog, 0)
	for rows.Next() {
		l, err := scanUsage(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		logs = append(logs, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return logs, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	if err := s.Scan(&u.ID, &u.Email, &u.APIKey, &u.Tier, &u.CreditsRemaining, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUsage(s scanner) (*UsageLog, error) {
	var l UsageLog
	var provider, requestID, result sql.NullString
	if err := s.Scan(&l.ID, &l.UserID, &l.Action, &l.TextLength, &l.CreditsUsed,
		&provider, &requestID, &result, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Provider = fromNullString(provider)
	l.RequestID = fromNullString(requestID)
	l.Result = fromNullString(result)
	return &l, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
