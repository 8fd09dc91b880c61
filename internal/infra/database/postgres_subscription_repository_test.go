package database

import (
	"testing"

	"push_notification_server/internal/domain/subscription"

	"github.com/stretchr/testify/assert"
)

func TestDailyColumns(t *testing.T) {
	hour := func(h int) *int { return &h }

	tests := []struct {
		name      string
		daily     subscription.DailyCheckIn
		enabled   bool
		wantHour  int16
		wantValid bool
	}{
		{
			name:      "explicit utc hour wins over time",
			daily:     subscription.DailyCheckIn{Enabled: true, Time: "19:00", UTCHour: hour(17)},
			enabled:   true,
			wantHour:  17,
			wantValid: true,
		},
		{
			name:      "legacy record uses hh:mm hour",
			daily:     subscription.DailyCheckIn{Enabled: true, Time: "08:30"},
			enabled:   true,
			wantHour:  8,
			wantValid: true,
		},
		{
			name:      "disabled keeps hour column",
			daily:     subscription.DailyCheckIn{Enabled: false, Time: "21:00"},
			wantHour:  21,
			wantValid: true,
		},
		{
			name:    "no hour derivable",
			daily:   subscription.DailyCheckIn{Enabled: true, Time: "bogus"},
			enabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled, h := dailyColumns(subscription.Preferences{DailyCheckIn: tt.daily})
			assert.Equal(t, tt.enabled, enabled)
			assert.Equal(t, tt.wantValid, h.Valid)
			if tt.wantValid {
				assert.Equal(t, tt.wantHour, h.Int16)
			}
		})
	}
}
