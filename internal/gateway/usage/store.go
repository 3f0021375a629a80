package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/plans"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

// ErrUnknownField is returned for a counter name outside the usage row
var ErrUnknownField = errors.New("unknown usage field")

// Field names one counter column of a usage period row
type Field string

const (
	FieldSearches           Field = "searches"
	FieldExports            Field = "exports"
	FieldPromptInputTokens  Field = "prompt_input_tokens"
	FieldPromptOutputTokens Field = "prompt_output_tokens"
	FieldPromptDollars      Field = "prompt_dollars"
)

// Column returns the column name for the field. Stores build SQL from this
// value only, never from caller input.
func (f Field) Column() (string, error) {
	switch f {
	case FieldSearches, FieldExports, FieldPromptInputTokens, FieldPromptOutputTokens, FieldPromptDollars:
		return string(f), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, string(f))
}

// Value reads the field out of a counters row
func (f Field) Value(c models.Counters) float64 {
	switch f {
	case FieldSearches:
		return float64(c.Searches)
	case FieldExports:
		return float64(c.Exports)
	case FieldPromptInputTokens:
		return float64(c.PromptInputTokens)
	case FieldPromptOutputTokens:
		return float64(c.PromptOutputTokens)
	case FieldPromptDollars:
		return c.PromptDollars
	}
	return 0
}

// PeriodKey identifies a usage row: one user, one billing period
type PeriodKey struct {
	UserID      string
	PeriodStart time.Time
}

// Date is the period start as stored, YYYY-MM-DD
func (k PeriodKey) Date() string {
	return k.PeriodStart.Format(time.DateOnly)
}

// Store is the persistence behind the accountant. Increment must be a single
// indivisible operation on the backing store.
type Store interface {
	// Counters returns the row for key, zero-valued if it does not exist yet.
	Counters(ctx context.Context, key PeriodKey) (models.Counters, error)
	// Increment adds delta to field and returns the new value.
	Increment(ctx context.Context, key PeriodKey, field Field, delta float64) (float64, error)
	// Set overwrites field. Used only by the degraded read-modify-write path.
	Set(ctx context.Context, key PeriodKey, field Field, value float64) error
}

// ConditionalIncrementer is implemented by stores that can add one to a
// counter only while it is below limit, in a single operation. ok is false
// when the counter was already at or above the limit.
type ConditionalIncrementer interface {
	IncrementIfBelow(ctx context.Context, key PeriodKey, field Field, limit int64) (value int64, ok bool, err error)
}

// ConditionalDecrementer is implemented by stores that can take one off a
// counter only while it is positive, in a single operation.
type ConditionalDecrementer interface {
	DecrementIfPositive(ctx context.Context, key PeriodKey, field Field) (value int64, ok bool, err error)
}

// AccountSource resolves a user's plan and signup anchor
type AccountSource interface {
	Account(ctx context.Context, userID string) (models.Account, error)
}

// PlanSource resolves a plan name to its limits
type PlanSource interface {
	Limits(plan string) (plans.Limits, error)
}

// Integral reports whether the field holds a whole-number count
func (f Field) Integral() bool {
	return f != FieldPromptDollars
}

// Arg converts a value to the argument type the column expects
func (f Field) Arg(v float64) any {
	if f.Integral() {
		return int64(math.Round(v))
	}
	return v
}
