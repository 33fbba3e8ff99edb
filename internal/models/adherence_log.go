package models

import "time"

type LogStatus string

const (
	LogPending LogStatus = "PENDING"
	LogTaken   LogStatus = "TAKEN"
	LogSkipped LogStatus = "SKIPPED"
	LogMissed  LogStatus = "MISSED"
)

// IsTerminal reports whether no further transition is possible
func (s LogStatus) IsTerminal() bool {
	return s != LogPending
}

// PatientResponse reports whether a patient may log this status
func (s LogStatus) PatientResponse() bool {
	return s == LogTaken || s == LogSkipped
}

type AdherenceLog struct {
	LogID       string     `json:"log_id"`
	ReminderID  string     `json:"reminder_id"`
	PatientID   string     `json:"patient_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	RespondedAt *time.Time `json:"responded_at"`
	Status      LogStatus  `json:"status"`
	Reason      *string    `json:"reason,omitempty"` // only on SKIPPED
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LogEntry is a log joined with the medication it belongs to, the row shape
// analytics work on.
type LogEntry struct {
	AdherenceLog
	PrescriptionID string `json:"prescription_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
}

// LogFilter narrows a patient's log history
type LogFilter struct {
	PrescriptionID string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// DueDose is a claimed PENDING log ready for a DOSE_DUE notification
type DueDose struct {
	LogID          string
	ReminderID     string
	PatientID      string
	ScheduledAt    time.Time
	NotifyVia      []Channel
	MedicationName string
	Dosage         string
}
