package repository

import (
	"context"
	"time"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type AdherenceLogRepository struct {
	db database.Querier
}

func NewAdherenceLogRepository(db database.Querier) *AdherenceLogRepository {
	return &AdherenceLogRepository{db: db}
}

// Materialize inserts a PENDING log unless one already exists for
// (reminder_id, scheduled_at). It reports whether a row was created.
func (r *AdherenceLogRepository) Materialize(ctx context.Context, log *models.AdherenceLog) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO adherence_logs (log_id, reminder_id, patient_id, scheduled_at, status)
		 VALUES ($1, $2, $3, $4, 'PENDING')
		 ON CONFLICT (reminder_id, scheduled_at) DO NOTHING`,
		log.LogID, log.ReminderID, log.PatientID, log.ScheduledAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AdherenceLogRepository) GetByID(ctx context.Context, logID string) (*models.AdherenceLog, error) {
	log := &models.AdherenceLog{}
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT log_id, reminder_id, patient_id, scheduled_at, responded_at, status, reason, notified_at, created_at
		 FROM adherence_logs WHERE log_id = $1`,
		logID,
	).Scan(&log.LogID, &log.ReminderID, &log.PatientID, &log.ScheduledAt, &log.RespondedAt,
		&status, &log.Reason, &log.NotifiedAt, &log.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	log.Status = models.LogStatus(status)
	return log, nil
}

// Respond records a patient outcome. The update only applies while the log is
// still PENDING; false means another writer got there first.
func (r *AdherenceLogRepository) Respond(ctx context.Context, logID string, status models.LogStatus, respondedAt time.Time, reason *string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE adherence_logs SET status = $1, responded_at = $2, reason = $3
		 WHERE log_id = $4 AND status = 'PENDING'`,
		string(status), respondedAt, reason, logID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SweepMissed closes every PENDING log whose missed window has elapsed at now
func (r *AdherenceLogRepository) SweepMissed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE adherence_logs l SET status = 'MISSED'
		 FROM medication_reminders r
		 WHERE l.reminder_id = r.reminder_id
		   AND l.status = 'PENDING'
		   AND l.scheduled_at + make_interval(mins => r.missed_window_minutes) <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDue stamps notified_at on PENDING doses of ACTIVE reminders that are due
// and still inside their missed window, returning the claimed doses. A dose is
// claimed at most once.
func (r *AdherenceLogRepository) ClaimDue(ctx context.Context, now time.Time) ([]models.DueDose, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE adherence_logs l SET notified_at = $1
		 FROM medication_reminders r
		 JOIN prescriptions p ON p.prescription_id = r.prescription_id
		 WHERE l.reminder_id = r.reminder_id
		   AND r.status = 'ACTIVE'
		   AND l.status = 'PENDING'
		   AND l.notified_at IS NULL
		   AND l.scheduled_at <= $1
		   AND l.scheduled_at + make_interval(mins => r.missed_window_minutes) > $1
		 RETURNING l.log_id, l.reminder_id, l.patient_id, l.scheduled_at, r.notify_via, p.medication_name, p.dosage`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doses []models.DueDose
	for rows.Next() {
		var dose models.DueDose
		var channels []string
		if err := rows.Scan(&dose.LogID, &dose.ReminderID, &dose.PatientID, &dose.ScheduledAt,
			&channels, &dose.MedicationName, &dose.Dosage); err != nil {
			return nil, err
		}
		dose.NotifyVia = toChannels(channels)
		doses = append(doses, dose)
	}
	return doses, rows.Err()
}

// ListByPatient returns a patient's logs joined with their medication, newest first
func (r *AdherenceLogRepository) ListByPatient(ctx context.Context, patientID string, filter models.LogFilter) ([]models.LogEntry, error) {
	var prescriptionID *string
	if filter.PrescriptionID != "" {
		prescriptionID = &filter.PrescriptionID
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := r.db.Query(ctx,
		`SELECT l.log_id, l.reminder_id, l.patient_id, l.scheduled_at, l.responded_at, l.status, l.reason,
		        l.notified_at, l.created_at, r.prescription_id, p.medication_name, p.dosage
		 FROM adherence_logs l
		 JOIN medication_reminders r ON r.reminder_id = l.reminder_id
		 JOIN prescriptions p ON p.prescription_id = r.prescription_id
		 WHERE l.patient_id = $1
		   AND ($2::text IS NULL OR r.prescription_id = $2)
		   AND ($3::timestamptz IS NULL OR l.scheduled_at >= $3)
		   AND ($4::timestamptz IS NULL OR l.scheduled_at <= $4)
		 ORDER BY l.scheduled_at DESC
		 LIMIT $5`,
		patientID, prescriptionID, filter.From, filter.To, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		var status string
		if err := rows.Scan(&entry.LogID, &entry.ReminderID, &entry.PatientID, &entry.ScheduledAt,
			&entry.RespondedAt, &status, &entry.Reason, &entry.NotifiedAt, &entry.CreatedAt,
			&entry.PrescriptionID, &entry.MedicationName, &entry.Dosage); err != nil {
			return nil, err
		}
		entry.Status = models.LogStatus(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountTaken counts TAKEN logs for a reminder
func (r *AdherenceLogRepository) CountTaken(ctx context.Context, reminderID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM adherence_logs WHERE reminder_id = $1 AND status = 'TAKEN'`,
		reminderID,
	).Scan(&count)
	return count, err
}
