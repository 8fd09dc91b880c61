package subscription

import "time"

// SelectDailyCheckInTargets returns the subscriptions whose daily check-in
// should fire at nowUTCHour on nowDate.
//
// The selector keeps no record of earlier fires. A second call within the
// same hour selects the same subscribers again; the hourly tick cadence is
// what keeps a subscriber at one notification per hour.
func SelectDailyCheckInTargets(subs []*Subscription, nowUTCHour int, nowDate time.Time) []*Subscription {
	targets := make([]*Subscription, 0)
	gate := EveryOtherDayGate(nowDate)
	for _, s := range subs {
		if s == nil || !MatchesDailyHour(s, nowUTCHour) {
			continue
		}
		if s.Preferences.DailyCheckIn.Frequency == FrequencyEveryOtherDay && !gate {
			continue
		}
		targets = append(targets, s)
	}
	return targets
}

// MatchesDailyHour reports whether s has daily check-ins enabled for the
// given UTC hour, ignoring the frequency gate.
func MatchesDailyHour(s *Subscription, utcHour int) bool {
	d := s.Preferences.DailyCheckIn
	if !d.Enabled {
		return false
	}
	h, ok := d.TargetUTCHour()
	return ok && h == utcHour
}

// EveryOtherDayGate reports whether every-other-day check-ins fire on the
// given date: true when the 1-based UTC day of year is even. It depends on
// the date only, never on subscriber state.
func EveryOtherDayGate(date time.Time) bool {
	return DayOfYear(date)%2 == 0
}

// DayOfYear is the whole number of days elapsed since "January 0" (the last
// day of the previous year) in UTC, so January 1 is day 1.
func DayOfYear(date time.Time) int {
	d := date.UTC()
	jan0 := time.Date(d.Year(), time.January, 0, 0, 0, 0, 0, time.UTC)
	return int(d.Sub(jan0) / (24 * time.Hour))
}
