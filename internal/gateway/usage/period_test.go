package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		name   string
		signup time.Time
		now    time.Time
		want   time.Time
	}{
		{
			name:   "same month after anchor",
			signup: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
			now:    time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC),
			want:   day(2026, 3, 15),
		},
		{
			name:   "before anchor uses previous month",
			signup: day(2026, 1, 15),
			now:    time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC),
			want:   day(2026, 2, 15),
		},
		{
			name:   "on anchor day",
			signup: day(2026, 1, 15),
			now:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			want:   day(2026, 3, 15),
		},
		{
			name:   "signup on 31st clamps in april",
			signup: day(2026, 1, 31),
			now:    time.Date(2026, 4, 30, 10, 0, 0, 0, time.UTC),
			want:   day(2026, 4, 30),
		},
		{
			name:   "signup on 31st clamps in february",
			signup: day(2026, 1, 31),
			now:    time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			want:   day(2026, 2, 28),
		},
		{
			name:   "leap february",
			signup: day(2027, 12, 30),
			now:    time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC),
			want:   day(2028, 2, 29),
		},
		{
			name:   "january rolls back to december",
			signup: day(2025, 6, 20),
			now:    time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
			want:   day(2025, 12, 20),
		},
		{
			name:   "never before signup",
			signup: time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC),
			now:    time.Date(2026, 5, 20, 19, 0, 0, 0, time.UTC),
			want:   day(2026, 5, 20),
		},
		{
			name:   "non utc inputs",
			signup: time.Date(2026, 1, 10, 22, 0, 0, 0, time.FixedZone("PET", -5*3600)),
			now:    time.Date(2026, 2, 11, 1, 0, 0, 0, time.FixedZone("PET", -5*3600)),
			want:   day(2026, 2, 11),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodStart(tt.signup, tt.now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestPeriodStartIsStableWithinPeriod(t *testing.T) {
	signup := day(2026, 1, 31)
	start := PeriodStart(signup, day(2026, 4, 30))
	end := PeriodEnd(signup, start)

	for ts := start; ts.Before(end); ts = ts.Add(6 * time.Hour) {
		assert.Equal(t, start, PeriodStart(signup, ts), ts.String())
	}
	assert.Equal(t, end, PeriodStart(signup, end))
}

func TestPeriodEnd(t *testing.T) {
	assert.Equal(t, day(2026, 2, 28), PeriodEnd(day(2026, 1, 31), day(2026, 1, 31)))
	assert.Equal(t, day(2026, 3, 31), PeriodEnd(day(2026, 1, 31), day(2026, 2, 28)))
	assert.Equal(t, day(2027, 1, 15), PeriodEnd(day(2026, 3, 15), day(2026, 12, 15)))
}

func TestPeriodKeyDate(t *testing.T) {
	key := PeriodKey{UserID: "u1", PeriodStart: day(2026, 2, 28)}
	assert.Equal(t, "2026-02-28", key.Date())
}
