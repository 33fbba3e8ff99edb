package rrule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
)

// Boundary decides what happens when a reminder's end date falls between two
// cadence days of an EVERY_OTHER_DAY or WEEKLY reminder.
type Boundary string

const (
	// BoundaryInclusive stops on the end date; no dose after it
	BoundaryInclusive Boundary = "inclusive"
	// BoundaryRollForward lets the next cadence day after an off-cadence end date through
	BoundaryRollForward Boundary = "roll_forward"
)

func ParseBoundary(s string) Boundary {
	if Boundary(s) == BoundaryRollForward {
		return BoundaryRollForward
	}
	return BoundaryInclusive
}

// period returns the rrule frequency and interval of the day-level cadence
func period(f models.Frequency) (rrule.Frequency, int) {
	switch f {
	case models.FrequencyEveryOtherDay:
		return rrule.DAILY, 2
	case models.FrequencyWeekly:
		return rrule.WEEKLY, 1
	default:
		return rrule.DAILY, 1
	}
}

// extensionDays is how far past the end date a roll-forward cadence may reach
func extensionDays(f models.Frequency, b Boundary) int {
	if b != BoundaryRollForward {
		return 0
	}
	switch f {
	case models.FrequencyEveryOtherDay:
		return 1
	case models.FrequencyWeekly:
		return 6
	}
	return 0
}

// MaxExtensionDays is the widest roll-forward reach of any cadence, used to
// pre-filter reminders whose end date has passed.
func MaxExtensionDays(b Boundary) int {
	return extensionDays(models.FrequencyWeekly, b)
}

// DayRule builds the day-level rule for a reminder: one occurrence at local
// midnight on every day the cadence calls for a dose.
func DayRule(r *models.Reminder, loc *time.Location, b Boundary) (*rrule.RRule, error) {
	freq, interval := period(r.Frequency)

	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		// Database stores DATE, pgx reads it as UTC midnight. Reinterpret the
		// calendar day in the deployment timezone.
		Dtstart: clock.CivilDate(r.StartDate, loc),
	}
	if r.EndDate != nil {
		last := clock.CivilDate(*r.EndDate, loc).AddDate(0, 0, extensionDays(r.Frequency, b))
		opt.Until = last.Add(24*time.Hour - time.Second)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build cadence rule for reminder %s: %w", r.ReminderID, err)
	}
	return rule, nil
}

// IsDoseDay checks whether the cadence calls for doses on day
func IsDoseDay(r *models.Reminder, day time.Time, loc *time.Location, b Boundary) (bool, error) {
	rule, err := DayRule(r, loc, b)
	if err != nil {
		return false, err
	}
	start := clock.StartOfDay(day, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return len(rule.Between(start, end, true)) > 0, nil
}

// DoseTimesOn returns every scheduled dose instant of r on day, in the order
// of r.TimesOfDay.
func DoseTimesOn(r *models.Reminder, day time.Time, loc *time.Location, b Boundary) ([]time.Time, error) {
	ok, err := IsDoseDay(r, day, loc, b)
	if err != nil || !ok {
		return nil, err
	}

	d := clock.StartOfDay(day, loc)
	times := make([]time.Time, 0, len(r.TimesOfDay))
	for _, tod := range r.TimesOfDay {
		hour, min, err := parseTimeOfDay(tod)
		if err != nil {
			return nil, fmt.Errorf("reminder %s: %w", r.ReminderID, err)
		}
		times = append(times, time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, loc))
	}
	return times, nil
}

// parseTimeOfDay parses "HH:mm" to hours and minutes
func parseTimeOfDay(s string) (hour, min int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// RuleString renders the day-level cadence as an RFC 5545 RRULE
func RuleString(r *models.Reminder) string {
	freq, interval := period(r.Frequency)

	parts := []string{"FREQ=DAILY"}
	if freq == rrule.WEEKLY {
		parts[0] = "FREQ=WEEKLY"
	}
	if interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(interval))
	}
	if r.EndDate != nil {
		parts = append(parts, "UNTIL="+r.EndDate.Format("20060102"))
	}
	return strings.Join(parts, ";")
}

// Describe returns a human description, e.g. "Twice daily at 08:00, 20:00"
func Describe(r *models.Reminder) string {
	var cadence string
	switch r.Frequency {
	case models.FrequencyTwiceDaily:
		cadence = "Twice daily"
	case models.FrequencyThreeTimesDaily:
		cadence = "Three times daily"
	case models.FrequencyFourTimesDaily:
		cadence = "Four times daily"
	case models.FrequencyEveryOtherDay:
		cadence = "Every other day"
	case models.FrequencyWeekly:
		cadence = "Weekly on " + r.StartDate.Weekday().String()
	default:
		cadence = "Once daily"
	}
	if len(r.TimesOfDay) == 0 {
		return cadence
	}
	return cadence + " at " + strings.Join(r.TimesOfDay, ", ")
}
