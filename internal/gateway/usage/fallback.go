package usage

import (
	"context"
	"fmt"
)

// Fallback applies an increment when the store's atomic increment failed.
// Implementations are allowed to be less safe than the primary path; every
// use is logged and counted by the accountant.
type Fallback interface {
	Apply(ctx context.Context, key PeriodKey, field Field, delta float64) (float64, error)
}

// ReadModifyWrite reads the current counter, adds delta in the application
// and writes the sum back. Two concurrent callers can lose an update.
type ReadModifyWrite struct {
	store Store
}

// NewReadModifyWrite creates the degraded fallback over a store
func NewReadModifyWrite(store Store) *ReadModifyWrite {
	return &ReadModifyWrite{store: store}
}

// Apply performs the non-atomic increment
func (w *ReadModifyWrite) Apply(ctx context.Context, key PeriodKey, field Field, delta float64) (float64, error) {
	counters, err := w.store.Counters(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read counters: %w", err)
	}

	value := field.Value(counters) + delta
	if err := w.store.Set(ctx, key, field, value); err != nil {
		return 0, fmt.Errorf("write %s: %w", field, err)
	}
	return value, nil
}
