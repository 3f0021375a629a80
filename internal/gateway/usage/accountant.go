// Package usage meters searches, exports and agent token spend per user and
// billing period, and enforces the plan quotas.
package usage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/plans"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

var (
	// ErrQuotaExceeded is returned when a countable action is over its plan limit.
	// Nothing is written when it is returned.
	ErrQuotaExceeded = errors.New("usage quota exceeded")

	// ErrPersistenceUnavailable is returned when a quota could not be checked.
	// Pre-checked actions are denied in that case.
	ErrPersistenceUnavailable = errors.New("usage store unavailable")
)

// Accounting paths, as reported in logs under "accounting_path"
const (
	PathAtomic   = "atomic"
	PathDegraded = "degraded"
	PathDropped  = "dropped"
)

// Action is a countable, quota-limited action
type Action string

const (
	ActionSearch Action = "search"
	ActionExport Action = "export"
)

func (a Action) field() Field {
	if a == ActionExport {
		return FieldExports
	}
	return FieldSearches
}

func (a Action) limit(l plans.Limits) int64 {
	if a == ActionExport {
		return l.ExportsPerMonth
	}
	return l.SearchesPerMonth
}

// Decision is the outcome of a quota check. Remaining is nil when the
// plan is unlimited for the action.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Remaining *int64 `json:"remaining"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
}

// ChatDecision is the outcome of the dollar-budget check before an agent turn
type ChatDecision struct {
	Allowed          bool     `json:"allowed"`
	RemainingDollars *float64 `json:"remaining_dollars"`
	SpentDollars     float64  `json:"spent_dollars"`
	LimitDollars     float64  `json:"limit_dollars"`
}

// TokenUsage is what one completed agent turn consumed
type TokenUsage struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	Model        string `json:"model"`
}

// PathStats counts how cost increments were applied
type PathStats struct {
	Atomic   int64 `json:"atomic"`
	Degraded int64 `json:"degraded"`
	Dropped  int64 `json:"dropped"`
}

// Status is a user's usage in the current period
type Status struct {
	UserID            string          `json:"user_id"`
	Plan              string          `json:"plan"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	Counters          models.Counters `json:"counters"`
	Limits            plans.Limits    `json:"limits"`
	SearchesRemaining *int64          `json:"searches_remaining"`
	ExportsRemaining  *int64          `json:"exports_remaining"`
	DollarsRemaining  *float64        `json:"dollars_remaining"`
}

// Options tunes an Accountant
type Options struct {
	// Fallback defaults to ReadModifyWrite over the store
	Fallback Fallback
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

// Accountant checks quotas and applies usage increments
type Accountant struct {
	store    Store
	accounts AccountSource
	plans    PlanSource
	pricing  *Pricing
	fallback Fallback
	log      logrus.FieldLogger
	now      func() time.Time

	atomicWrites   atomic.Int64
	degradedWrites atomic.Int64
	droppedWrites  atomic.Int64
}

// NewAccountant creates an accountant
func NewAccountant(store Store, accounts AccountSource, planSource PlanSource, pricing *Pricing, opts Options) *Accountant {
	if opts.Fallback == nil {
		opts.Fallback = NewReadModifyWrite(store)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pricing == nil {
		pricing = NewPricing(nil, 1)
	}

	return &Accountant{
		store:    store,
		accounts: accounts,
		plans:    planSource,
		pricing:  pricing,
		fallback: opts.Fallback,
		log:      opts.Logger,
		now:      opts.Now,
	}
}

// Pricing returns the pricing table used for chat turns
func (a *Accountant) Pricing() *Pricing {
	return a.pricing
}

// EnsureSearchAllowedAndIncrement admits and counts one search
func (a *Accountant) EnsureSearchAllowedAndIncrement(ctx context.Context, userID string) (Decision, error) {
	return a.ensure(ctx, userID, ActionSearch)
}

// EnsureExportAllowedAndIncrement admits and counts one export
func (a *Accountant) EnsureExportAllowedAndIncrement(ctx context.Context, userID string) (Decision, error) {
	return a.ensure(ctx, userID, ActionExport)
}

// ensure runs pre-check then increment for a countable action.
// Any store failure denies the action.
func (a *Accountant) ensure(ctx context.Context, userID string, action Action) (Decision, error) {
	logger := a.log.WithFields(logrus.Fields{"user_id": userID, "action": string(action)})

	acct, limits, key, err := a.resolve(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("[USAGE] could not resolve account, denying")
		return Decision{}, err
	}

	field := action.field()
	limit := action.limit(limits)

	if plans.IsUnlimited(limit) {
		value, err := a.store.Increment(ctx, key, field, 1)
		if err != nil {
			logger.WithError(err).Error("[USAGE] increment failed, denying")
			return Decision{}, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
		}
		return Decision{Allowed: true, Used: int64(value), Limit: limit}, nil
	}

	counters, err := a.store.Counters(ctx, key)
	if err != nil {
		logger.WithError(err).Error("[USAGE] could not read counters, denying")
		return Decision{}, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}

	used := int64(field.Value(counters))
	if used >= limit {
		logger.WithFields(logrus.Fields{"plan": acct.Plan, "used": used, "limit": limit}).
			Info("[USAGE] quota exceeded")
		return denied(used, limit), ErrQuotaExceeded
	}

	value, ok, err := a.incrementBelow(ctx, key, field, limit)
	if err != nil {
		logger.WithError(err).Error("[USAGE] increment failed, denying")
		return Decision{}, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	if !ok {
		// Another request took the last unit between our read and our write
		logger.WithFields(logrus.Fields{"plan": acct.Plan, "limit": limit}).
			Info("[USAGE] quota exhausted by a concurrent request")
		return denied(limit, limit), ErrQuotaExceeded
	}

	remaining := max(0, limit-value)
	return Decision{Allowed: true, Remaining: &remaining, Used: value, Limit: limit}, nil
}

// incrementBelow prefers the store's conditional increment. Without it a
// plain increment is used and concurrent admissions may overshoot the limit
// by the number of requests that passed the pre-check together.
func (a *Accountant) incrementBelow(ctx context.Context, key PeriodKey, field Field, limit int64) (int64, bool, error) {
	if ci, ok := a.store.(ConditionalIncrementer); ok {
		return ci.IncrementIfBelow(ctx, key, field, limit)
	}
	value, err := a.store.Increment(ctx, key, field, 1)
	if err != nil {
		return 0, false, err
	}
	return int64(value), true, nil
}

func denied(used, limit int64) Decision {
	var zero int64
	return Decision{Allowed: false, Remaining: &zero, Used: used, Limit: limit}
}

// Refund takes back one unit of an admitted action whose work then failed
func (a *Accountant) Refund(ctx context.Context, userID string, action Action) error {
	_, _, key, err := a.resolve(ctx, userID)
	if err != nil {
		return err
	}
	logger := a.log.WithFields(logrus.Fields{"user_id": userID, "action": string(action)})

	// Counters never go below zero, e.g. when the period rolled over in between.
	refunded, err := a.decrementPositive(ctx, key, action.field())
	if err != nil {
		logger.WithError(err).Error("[USAGE] refund failed")
		return fmt.Errorf("refund %s: %w", action, err)
	}
	if !refunded {
		logger.Debug("[USAGE] refund skipped, counter already at zero")
	}
	return nil
}

// decrementPositive prefers the store's conditional decrement. Without it
// the zero check and the decrement are separate calls, and concurrent
// refunds may take the counter below zero.
func (a *Accountant) decrementPositive(ctx context.Context, key PeriodKey, field Field) (bool, error) {
	if cd, ok := a.store.(ConditionalDecrementer); ok {
		_, ok, err := cd.DecrementIfPositive(ctx, key, field)
		return ok, err
	}
	counters, err := a.store.Counters(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read counters: %w", err)
	}
	if field.Value(counters) <= 0 {
		return false, nil
	}
	if _, err := a.store.Increment(ctx, key, field, -1); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureChatAllowed checks the prompt dollar budget before an agent turn.
// Turn cost is only known afterwards, so a turn that starts under budget
// may end over it; the next check then denies.
func (a *Accountant) EnsureChatAllowed(ctx context.Context, userID string) (ChatDecision, error) {
	logger := a.log.WithField("user_id", userID)

	_, limits, key, err := a.resolve(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("[USAGE] could not resolve account, denying chat")
		return ChatDecision{}, err
	}

	counters, err := a.store.Counters(ctx, key)
	if err != nil {
		logger.WithError(err).Error("[USAGE] could not read counters, denying chat")
		return ChatDecision{}, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}

	d := ChatDecision{Allowed: true, SpentDollars: counters.PromptDollars, LimitDollars: limits.PromptDollars}
	if plans.IsUnlimited(limits.PromptDollars) {
		return d, nil
	}

	remaining := max(0, limits.PromptDollars-counters.PromptDollars)
	d.RemainingDollars = &remaining
	if counters.PromptDollars >= limits.PromptDollars {
		d.Allowed = false
		return d, ErrQuotaExceeded
	}
	return d, nil
}

// RecordChatUsage adds a completed turn's tokens and cost to the current
// period and returns the cost. It never fails: the reply has already been
// produced, so a write that cannot be applied is logged and dropped.
func (a *Accountant) RecordChatUsage(ctx context.Context, userID string, u TokenUsage) float64 {
	cost := a.pricing.Cost(u.Model, u.InputTokens, u.OutputTokens)
	if u.InputTokens <= 0 && u.OutputTokens <= 0 {
		return cost
	}

	logger := a.log.WithFields(logrus.Fields{"user_id": userID, "model": u.Model})

	_, _, key, err := a.resolve(ctx, userID)
	if err != nil {
		a.droppedWrites.Add(1)
		logger.WithError(err).WithField("accounting_path", PathDropped).
			Error("[USAGE] could not resolve account, chat usage dropped")
		return cost
	}

	a.add(ctx, logger, key, FieldPromptInputTokens, float64(u.InputTokens))
	a.add(ctx, logger, key, FieldPromptOutputTokens, float64(u.OutputTokens))
	a.add(ctx, logger, key, FieldPromptDollars, cost)
	return cost
}

func (a *Accountant) add(ctx context.Context, logger logrus.FieldLogger, key PeriodKey, field Field, delta float64) {
	if delta == 0 {
		return
	}
	logger = logger.WithFields(logrus.Fields{"field": string(field), "delta": delta})

	_, err := a.store.Increment(ctx, key, field, delta)
	if err == nil {
		a.atomicWrites.Add(1)
		logger.WithField("accounting_path", PathAtomic).Debug("[USAGE] usage recorded")
		return
	}

	logger.WithError(err).WithField("accounting_path", PathDegraded).
		Warn("[USAGE] atomic increment failed, falling back to read-modify-write; billing precision at risk")

	if _, ferr := a.fallback.Apply(ctx, key, field, delta); ferr != nil {
		a.droppedWrites.Add(1)
		logger.WithError(ferr).WithField("accounting_path", PathDropped).
			Error("[USAGE] fallback write failed, usage dropped")
		return
	}
	a.degradedWrites.Add(1)
}

// PathStats returns how many cost increments took each path since start
func (a *Accountant) PathStats() PathStats {
	return PathStats{
		Atomic:   a.atomicWrites.Load(),
		Degraded: a.degradedWrites.Load(),
		Dropped:  a.droppedWrites.Load(),
	}
}

// Status reports the current period's usage against the plan
func (a *Accountant) Status(ctx context.Context, userID string) (Status, error) {
	acct, limits, key, err := a.resolve(ctx, userID)
	if err != nil {
		return Status{}, err
	}

	counters, err := a.store.Counters(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}

	st := Status{
		UserID:      userID,
		Plan:        acct.Plan,
		PeriodStart: key.PeriodStart,
		PeriodEnd:   PeriodEnd(acct.SignupAt, key.PeriodStart),
		Counters:    counters,
		Limits:      limits,
	}
	if !plans.IsUnlimited(limits.SearchesPerMonth) {
		r := max(0, limits.SearchesPerMonth-counters.Searches)
		st.SearchesRemaining = &r
	}
	if !plans.IsUnlimited(limits.ExportsPerMonth) {
		r := max(0, limits.ExportsPerMonth-counters.Exports)
		st.ExportsRemaining = &r
	}
	if !plans.IsUnlimited(limits.PromptDollars) {
		r := max(0, limits.PromptDollars-counters.PromptDollars)
		st.DollarsRemaining = &r
	}
	return st, nil
}

// Limits returns the plan limits of a user
func (a *Accountant) Limits(ctx context.Context, userID string) (plans.Limits, error) {
	_, limits, _, err := a.resolve(ctx, userID)
	return limits, err
}

func (a *Accountant) resolve(ctx context.Context, userID string) (models.Account, plans.Limits, PeriodKey, error) {
	acct, err := a.accounts.Account(ctx, userID)
	if err != nil {
		return models.Account{}, plans.Limits{}, PeriodKey{}, fmt.Errorf("%w: load account: %w", ErrPersistenceUnavailable, err)
	}

	limits, err := a.plans.Limits(acct.Plan)
	if err != nil {
		return models.Account{}, plans.Limits{}, PeriodKey{}, fmt.Errorf("resolve plan: %w", err)
	}

	key := PeriodKey{UserID: userID, PeriodStart: PeriodStart(acct.SignupAt, a.now())}
	return acct, limits, key, nil
}
