// internal/domain/subscription/subscription.go
package subscription

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency controls how often a daily check-in fires once its hour matches.
type Frequency string

const (
	FrequencyDaily         Frequency = "daily"
	FrequencyEveryOtherDay Frequency = "every-other-day"
)

// MaxDelayHours bounds follow-up and active check-in delays (one week).
const MaxDelayHours = 168

// Keys is the transport key material of a push subscription. It is passed
// through to the push sender untouched.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// DailyCheckIn configures the recurring daily notification.
type DailyCheckIn struct {
	Enabled   bool      `json:"enabled"`
	Time      string    `json:"time,omitempty"`     // local "HH:MM" as entered by the user
	Timezone  string    `json:"timezone,omitempty"` // IANA zone of Time, if the client sent one
	UTCHour   *int      `json:"utcHour,omitempty"`  // precomputed target hour in UTC
	UTCTime   string    `json:"utcTime,omitempty"`  // informational "HH:MM" in UTC
	Frequency Frequency `json:"frequency,omitempty"`
}

// DelayedReminder configures a reminder fired DelayHours after an event.
type DelayedReminder struct {
	Enabled    bool `json:"enabled"`
	DelayHours int  `json:"delayHours"`
}

// Preferences enumerates every recognised notification preference.
type Preferences struct {
	DailyCheckIn       DailyCheckIn    `json:"dailyCheckIn"`
	PostAttackFollowUp DelayedReminder `json:"postAttackFollowUp"`
	ActiveCheckin      DelayedReminder `json:"activeCheckin"`
}

// Subscription is a push endpoint together with its delivery preferences.
// Endpoint is the identity; re-subscribing with the same endpoint replaces
// the record.
type Subscription struct {
	Endpoint    string      `json:"endpoint"`
	Keys        Keys        `json:"keys"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// DefaultPreferences returns the preferences applied when a client
// subscribes without sending any.
func DefaultPreferences() Preferences {
	return Preferences{
		DailyCheckIn: DailyCheckIn{
			Enabled:   true,
			Time:      "19:00",
			Frequency: FrequencyDaily,
		},
		PostAttackFollowUp: DelayedReminder{Enabled: true, DelayHours: 2},
		ActiveCheckin:      DelayedReminder{Enabled: false, DelayHours: 2},
	}
}

// Validate checks field ranges. It is called at the request boundary; the
// selection logic never re-validates stored records.
func (p Preferences) Validate() error {
	d := p.DailyCheckIn
	if d.Time != "" {
		if _, _, err := ParseHHMM(d.Time); err != nil {
			return fmt.Errorf("dailyCheckIn.time must be in HH:MM format (24-hour): %w", err)
		}
	}
	if d.UTCHour != nil && (*d.UTCHour < 0 || *d.UTCHour > 23) {
		return fmt.Errorf("dailyCheckIn.utcHour must be between 0 and 23")
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			return fmt.Errorf("dailyCheckIn.timezone is not a known time zone: %w", err)
		}
	}
	switch d.Frequency {
	case "", FrequencyDaily, FrequencyEveryOtherDay:
	default:
		return fmt.Errorf("dailyCheckIn.frequency must be one of: %s, %s", FrequencyDaily, FrequencyEveryOtherDay)
	}
	if d.Enabled && d.Time == "" && d.UTCHour == nil {
		return fmt.Errorf("dailyCheckIn requires time or utcHour when enabled")
	}
	if h := p.PostAttackFollowUp.DelayHours; h < 0 || h > MaxDelayHours {
		return fmt.Errorf("postAttackFollowUp.delayHours must be between 0 and %d", MaxDelayHours)
	}
	if h := p.ActiveCheckin.DelayHours; h < 0 || h > MaxDelayHours {
		return fmt.Errorf("activeCheckin.delayHours must be between 0 and %d", MaxDelayHours)
	}
	return nil
}

// TargetUTCHour resolves the UTC hour a daily check-in should fire at.
//
// Records written before utcHour existed only carry the local "HH:MM"
// string. For those the hour component is used as if it were already UTC.
// This is a compatibility shim, not a conversion: such records fire at the
// wrong wall-clock time for any user outside UTC until BackfillUTCHour has
// been applied to them. ok is false when no hour can be derived.
func (d DailyCheckIn) TargetUTCHour() (hour int, ok bool) {
	if d.UTCHour != nil {
		return *d.UTCHour, true
	}
	h, _, err := ParseHHMM(d.Time)
	if err != nil {
		return 0, false
	}
	return h, true
}

// IsLegacy reports whether the record still relies on the "HH:MM as UTC"
// fallback.
func (d DailyCheckIn) IsLegacy() bool {
	return d.UTCHour == nil
}

// BackfillUTCHour computes UTCHour/UTCTime from Time and Timezone, evaluated
// on the given date (so DST offsets are those in effect that day). It
// returns false and leaves d untouched when the record has no timezone, is
// already migrated, or carries an unparsable time.
func (d *DailyCheckIn) BackfillUTCHour(on time.Time) bool {
	if d.UTCHour != nil || d.Timezone == "" {
		return false
	}
	h, m, err := ParseHHMM(d.Time)
	if err != nil {
		return false
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return false
	}
	y, mo, day := on.In(loc).Date()
	utc := time.Date(y, mo, day, h, m, 0, 0, loc).UTC()
	hour := utc.Hour()
	d.UTCHour = &hour
	d.UTCTime = utc.Format("15:04")
	return true
}

// ParseHHMM parses a 24-hour "HH:MM" string.
func ParseHHMM(s string) (hour, minute int, err error) {
	hs, ms, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || len(hs) != 2 || len(ms) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err = strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
