package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

const reminderColumns = `reminder_id, prescription_id, patient_id, frequency, times_of_day, start_date, end_date,
	notify_via, missed_window_minutes, total_quantity, status, created_at, updated_at`

type ReminderRepository struct {
	db database.Querier
}

func NewReminderRepository(db database.Querier) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO medication_reminders (reminder_id, prescription_id, patient_id, frequency, times_of_day,
		 start_date, end_date, notify_via, missed_window_minutes, total_quantity, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		reminder.ReminderID, reminder.PrescriptionID, reminder.PatientID, string(reminder.Frequency),
		reminder.TimesOfDay, reminder.StartDate, reminder.EndDate, channelStrings(reminder.NotifyVia),
		reminder.MissedWindowMinutes, reminder.TotalQuantity, string(reminder.Status),
	).Scan(&reminder.CreatedAt, &reminder.UpdatedAt)
	return translate(err)
}

func (r *ReminderRepository) GetByID(ctx context.Context, reminderID string) (*models.Reminder, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM medication_reminders WHERE reminder_id = $1`,
		reminderID,
	)
	reminder, err := scanReminder(row)
	if err != nil {
		return nil, translate(err)
	}
	return reminder, nil
}

// ExistsForPrescription reports whether a reminder was already created for the prescription
func (r *ReminderRepository) ExistsForPrescription(ctx context.Context, prescriptionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM medication_reminders WHERE prescription_id = $1)`,
		prescriptionID,
	).Scan(&exists)
	return exists, err
}

// ListByPatient returns a patient's reminders, newest first. A nil status lists all.
func (r *ReminderRepository) ListByPatient(ctx context.Context, patientID string, status *models.ReminderStatus) ([]*models.Reminder, error) {
	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderColumns+` FROM medication_reminders
		 WHERE patient_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC`,
		patientID, filter,
	)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

// ListMaterializable returns ACTIVE reminders whose window may still produce doses
// on today. endFloor is today shifted back by the boundary policy's largest extension.
func (r *ReminderRepository) ListMaterializable(ctx context.Context, today, endFloor time.Time) ([]*models.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderColumns+` FROM medication_reminders
		 WHERE status = 'ACTIVE' AND start_date <= $1 AND (end_date IS NULL OR end_date >= $2)
		 ORDER BY reminder_id`,
		today, endFloor,
	)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

// Update writes the patient-editable settings, provided the stored status is
// still expected. It returns false when the row changed underneath the caller.
func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder, expected models.ReminderStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE medication_reminders SET times_of_day = $1, end_date = $2, notify_via = $3,
		 missed_window_minutes = $4, status = $5, updated_at = $6
		 WHERE reminder_id = $7 AND status = $8`,
		reminder.TimesOfDay, reminder.EndDate, channelStrings(reminder.NotifyVia),
		reminder.MissedWindowMinutes, string(reminder.Status), reminder.UpdatedAt, reminder.ReminderID,
		string(expected),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus moves a reminder to next only while its status is still one of from.
// It returns false when the row changed underneath the caller.
func (r *ReminderRepository) SetStatus(ctx context.Context, reminderID string, from []models.ReminderStatus, next models.ReminderStatus, now time.Time) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE medication_reminders SET status = $1, updated_at = $2
		 WHERE reminder_id = $3 AND status = ANY($4)`,
		string(next), now, reminderID, allowed,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanReminder(row pgx.Row) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	var frequency, status string
	var channels []string
	if err := row.Scan(&reminder.ReminderID, &reminder.PrescriptionID, &reminder.PatientID, &frequency,
		&reminder.TimesOfDay, &reminder.StartDate, &reminder.EndDate, &channels,
		&reminder.MissedWindowMinutes, &reminder.TotalQuantity, &status,
		&reminder.CreatedAt, &reminder.UpdatedAt); err != nil {
		return nil, err
	}
	reminder.Frequency = models.Frequency(frequency)
	reminder.Status = models.ReminderStatus(status)
	reminder.NotifyVia = toChannels(channels)
	return reminder, nil
}

func collectReminders(rows pgx.Rows) ([]*models.Reminder, error) {
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func channelStrings(channels []models.Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func toChannels(values []string) []models.Channel {
	out := make([]models.Channel, len(values))
	for i, v := range values {
		out[i] = models.Channel(v)
	}
	return out
}
