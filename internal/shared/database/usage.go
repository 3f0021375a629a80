package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

// Counters returns the usage row for a user and period, zero if absent
func (db *DB) Counters(ctx context.Context, key usage.PeriodKey) (models.Counters, error) {
	query := db.q(`
		SELECT searches, exports, prompt_input_tokens, prompt_output_tokens, prompt_dollars
		FROM usage_periods
		WHERE user_id = ? AND period_start = ?
	`)

	var c models.Counters
	err := db.conn.QueryRowContext(ctx, query, key.UserID, key.Date()).Scan(
		&c.Searches,
		&c.Exports,
		&c.PromptInputTokens,
		&c.PromptOutputTokens,
		&c.PromptDollars,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Counters{}, nil
	}
	if err != nil {
		return models.Counters{}, fmt.Errorf("read usage: %w", err)
	}
	return c, nil
}

// Increment adds delta to one counter in a single upsert statement and
// returns the new value. The row is created on first use in a period.
func (db *DB) Increment(ctx context.Context, key usage.PeriodKey, field usage.Field, delta float64) (float64, error) {
	col, err := field.Column()
	if err != nil {
		return 0, err
	}

	query := db.q(fmt.Sprintf(`
		INSERT INTO usage_periods (user_id, period_start, %[1]s) VALUES (?, ?, ?)
		ON CONFLICT (user_id, period_start) DO UPDATE
		SET %[1]s = usage_periods.%[1]s + excluded.%[1]s, updated_at = CURRENT_TIMESTAMP
		RETURNING %[1]s
	`, col))

	var value float64
	if err := db.conn.QueryRowContext(ctx, query, key.UserID, key.Date(), field.Arg(delta)).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment %s: %w", col, err)
	}
	return value, nil
}

// IncrementIfBelow adds one to a counter only while it is below limit.
// The comparison and the write are one statement, so concurrent callers
// can never push the counter past the limit.
func (db *DB) IncrementIfBelow(ctx context.Context, key usage.PeriodKey, field usage.Field, limit int64) (int64, bool, error) {
	col, err := field.Column()
	if err != nil {
		return 0, false, err
	}
	if limit <= 0 {
		return 0, false, nil
	}

	query := db.q(fmt.Sprintf(`
		INSERT INTO usage_periods (user_id, period_start, %[1]s) VALUES (?, ?, 1)
		ON CONFLICT (user_id, period_start) DO UPDATE
		SET %[1]s = usage_periods.%[1]s + 1, updated_at = CURRENT_TIMESTAMP
		WHERE usage_periods.%[1]s < ?
		RETURNING %[1]s
	`, col))

	var value int64
	err = db.conn.QueryRowContext(ctx, query, key.UserID, key.Date(), limit).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("conditional increment %s: %w", col, err)
	}
	return value, true, nil
}

// DecrementIfPositive takes one off a counter only while it is above zero.
// ok is false when there was nothing to take back.
func (db *DB) DecrementIfPositive(ctx context.Context, key usage.PeriodKey, field usage.Field) (int64, bool, error) {
	col, err := field.Column()
	if err != nil {
		return 0, false, err
	}

	query := db.q(fmt.Sprintf(`
		UPDATE usage_periods
		SET %[1]s = %[1]s - 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND period_start = ? AND %[1]s > 0
		RETURNING %[1]s
	`, col))

	var value int64
	err = db.conn.QueryRowContext(ctx, query, key.UserID, key.Date()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("conditional decrement %s: %w", col, err)
	}
	return value, true, nil
}

// Set overwrites one counter. Not safe against concurrent writers; only the
// degraded accounting path uses it.
func (db *DB) Set(ctx context.Context, key usage.PeriodKey, field usage.Field, value float64) error {
	col, err := field.Column()
	if err != nil {
		return err
	}

	query := db.q(fmt.Sprintf(`
		INSERT INTO usage_periods (user_id, period_start, %[1]s) VALUES (?, ?, ?)
		ON CONFLICT (user_id, period_start) DO UPDATE
		SET %[1]s = excluded.%[1]s, updated_at = CURRENT_TIMESTAMP
	`, col))

	if _, err := db.conn.ExecContext(ctx, query, key.UserID, key.Date(), field.Arg(value)); err != nil {
		return fmt.Errorf("set %s: %w", col, err)
	}
	return nil
}

// Account returns the billing account of a user
func (db *DB) Account(ctx context.Context, userID string) (models.Account, error) {
	query := db.q(`SELECT user_id, plan, signup_at, created_at FROM accounts WHERE user_id = ?`)

	var acct models.Account
	var signup, created dbTime
	err := db.conn.QueryRowContext(ctx, query, userID).Scan(&acct.UserID, &acct.Plan, &signup, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("database error: %w", err)
	}

	acct.SignupAt = signup.Time
	acct.CreatedAt = created.Time
	return acct, nil
}

// UpsertAccount creates an account or changes its plan. The signup time of
// an existing account is kept; it anchors the billing periods.
func (db *DB) UpsertAccount(ctx context.Context, acct models.Account) error {
	if acct.SignupAt.IsZero() {
		acct.SignupAt = time.Now().UTC()
	}

	query := db.q(`
		INSERT INTO accounts (user_id, plan, signup_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET plan = excluded.plan
	`)
	if _, err := db.conn.ExecContext(ctx, query, acct.UserID, acct.Plan, db.timeArg(acct.SignupAt)); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// timeArg stores text on SQLite so values read back parse the same way
func (db *DB) timeArg(t time.Time) any {
	if db.dialect == dialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}
