package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVigencyStatus(t *testing.T) {
	today := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	date := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	tests := []struct {
		name string
		end  *time.Time
		want string
	}{
		{
			name: "unknown end is active",
			end:  nil,
			want: "active",
		},
		{
			name: "ended yesterday is expired",
			end:  date(2026, 6, 14),
			want: "expired",
		},
		{
			name: "ends today is expiring",
			end:  date(2026, 6, 15),
			want: "expiring",
		},
		{
			name: "ends in 30 days is expiring",
			end:  date(2026, 7, 15),
			want: "expiring",
		},
		{
			name: "ends in 31 days is active",
			end:  date(2026, 7, 16),
			want: "active",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VigencyStatus(tt.end, today))
		})
	}
}

func TestVigencyStatus_ComparesCivilDates(t *testing.T) {
	// Конец вигенции поздним вечером в зоне с отрицательным смещением:
	// по календарю это предыдущий день относительно today в UTC,
	// хотя по абсолютному времени момент уже в следующих сутках.
	loc := time.FixedZone("BRT", -3*60*60)
	end := time.Date(2026, 6, 1, 23, 30, 0, 0, loc)
	today := time.Date(2026, 6, 2, 0, 30, 0, 0, time.UTC)

	assert.Equal(t, "expired", VigencyStatus(&end, today))
}
