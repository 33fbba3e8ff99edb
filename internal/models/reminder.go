package models

import (
	"regexp"
	"time"
)

type Frequency string

const (
	FrequencyOnceDaily       Frequency = "ONCE_DAILY"
	FrequencyTwiceDaily      Frequency = "TWICE_DAILY"
	FrequencyThreeTimesDaily Frequency = "THREE_TIMES_DAILY"
	FrequencyFourTimesDaily  Frequency = "FOUR_TIMES_DAILY"
	FrequencyEveryOtherDay   Frequency = "EVERY_OTHER_DAY"
	FrequencyWeekly          Frequency = "WEEKLY"
)

// DefaultTimes returns the times of day a cadence uses when none are configured
func (f Frequency) DefaultTimes() []string {
	switch f {
	case FrequencyTwiceDaily:
		return []string{"08:00", "20:00"}
	case FrequencyThreeTimesDaily:
		return []string{"08:00", "14:00", "20:00"}
	case FrequencyFourTimesDaily:
		return []string{"08:00", "12:00", "16:00", "20:00"}
	default:
		return []string{"08:00"}
	}
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnceDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily,
		FrequencyFourTimesDaily, FrequencyEveryOtherDay, FrequencyWeekly:
		return true
	}
	return false
}

type ReminderStatus string

const (
	ReminderActive    ReminderStatus = "ACTIVE"
	ReminderPaused    ReminderStatus = "PAUSED"
	ReminderCompleted ReminderStatus = "COMPLETED"
	ReminderCancelled ReminderStatus = "CANCELLED"
)

// reminderTransitions lists the legal status edges. COMPLETED is only ever
// written on explicit caller request; CANCELLED is reachable from every other
// status and is final.
var reminderTransitions = map[ReminderStatus][]ReminderStatus{
	ReminderActive:    {ReminderPaused, ReminderCancelled, ReminderCompleted},
	ReminderPaused:    {ReminderActive, ReminderCancelled, ReminderCompleted},
	ReminderCompleted: {ReminderCancelled},
}

// IsFinal reports whether settings edits are still allowed
func (s ReminderStatus) IsFinal() bool {
	return s == ReminderCancelled || s == ReminderCompleted
}

// CanTransition reports whether a reminder may move from s to next
func (s ReminderStatus) CanTransition(next ReminderStatus) bool {
	for _, allowed := range reminderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Channel string

const (
	ChannelPush     Channel = "PUSH"
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "EMAIL"
	ChannelTelegram Channel = "TELEGRAM"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelPush, ChannelSMS, ChannelEmail, ChannelTelegram:
		return true
	}
	return false
}

const (
	DefaultMissedWindowMinutes = 120
	MinMissedWindowMinutes     = 15
	MaxMissedWindowMinutes     = 480
)

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidTimeOfDay checks 24-hour HH:mm
func ValidTimeOfDay(s string) bool {
	return timeOfDayRe.MatchString(s)
}

type Reminder struct {
	ReminderID          string         `json:"reminder_id"`
	PrescriptionID      string         `json:"prescription_id"`
	PatientID           string         `json:"patient_id"`
	Frequency           Frequency      `json:"frequency"`
	TimesOfDay          []string       `json:"times_of_day"` // HH:mm, dose order within a day
	StartDate           time.Time      `json:"start_date"`
	EndDate             *time.Time     `json:"end_date"` // nil = open-ended
	NotifyVia           []Channel      `json:"notify_via"`
	MissedWindowMinutes int            `json:"missed_window_minutes"`
	TotalQuantity       int            `json:"total_quantity"`
	Status              ReminderStatus `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// MissedWindow returns the grace period before an unanswered dose is MISSED
func (r *Reminder) MissedWindow() time.Duration {
	return time.Duration(r.MissedWindowMinutes) * time.Minute
}

// DosesPerDay is the number of configured times of day
func (r *Reminder) DosesPerDay() int {
	return len(r.TimesOfDay)
}

// IsOpenEnded returns true if the reminder has no end date
func (r *Reminder) IsOpenEnded() bool {
	return r.EndDate == nil
}

// ReminderWithPrescription is a reminder plus the summary of its prescription
type ReminderWithPrescription struct {
	*Reminder
	Prescription PrescriptionSummary `json:"prescription"`
}
