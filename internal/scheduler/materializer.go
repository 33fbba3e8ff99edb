package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/metrics"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notify"
	"github.com/hray3182/DoseLine/internal/rrule"
)

type ReminderSource interface {
	ListMaterializable(ctx context.Context, today, endFloor time.Time) ([]*models.Reminder, error)
}

type DoseLogs interface {
	Materialize(ctx context.Context, log *models.AdherenceLog) (bool, error)
	ClaimDue(ctx context.Context, now time.Time) ([]models.DueDose, error)
}

type Notifier interface {
	Notify(userID string, typ notify.Type, title, body string, channels []models.Channel, metadata map[string]string)
}

// Materializer creates today's PENDING dose logs for every ACTIVE reminder and
// announces doses as they fall due.
type Materializer struct {
	reminders ReminderSource
	logs      DoseLogs
	notifier  Notifier
	clock     clock.Clock
	loc       *time.Location
	boundary  rrule.Boundary
	logger    *zap.Logger
}

func NewMaterializer(reminders ReminderSource, logs DoseLogs, notifier Notifier, clk clock.Clock, loc *time.Location, boundary rrule.Boundary, logger *zap.Logger) *Materializer {
	return &Materializer{
		reminders: reminders,
		logs:      logs,
		notifier:  notifier,
		clock:     clk,
		loc:       loc,
		boundary:  boundary,
		logger:    logger,
	}
}

type MaterializeResult struct {
	Reminders int
	Created   int
	Failed    int
	Notified  int
}

// MaterializeDoses is safe to re-run: existing (reminder, scheduled_at) logs are left alone.
func (m *Materializer) MaterializeDoses(ctx context.Context) (MaterializeResult, error) {
	var result MaterializeResult
	now := m.clock.Now()
	today := clock.StartOfDay(now, m.loc)
	endFloor := today.AddDate(0, 0, -rrule.MaxExtensionDays(m.boundary))

	reminders, err := m.reminders.ListMaterializable(ctx, today, endFloor)
	if err != nil {
		return result, fmt.Errorf("failed to list reminders: %w", err)
	}
	result.Reminders = len(reminders)

	for _, reminder := range reminders {
		created, err := m.materializeReminder(ctx, reminder, today)
		result.Created += created
		if err != nil {
			result.Failed++
			metrics.RecordJobFailure(jobMaterialize)
			m.logger.Warn("Failed to materialize reminder",
				zap.String("reminder_id", reminder.ReminderID),
				zap.Error(err),
			)
		}
	}
	metrics.RecordMaterialized(result.Created)

	result.Notified = m.dispatchDue(ctx, now)
	return result, nil
}

func (m *Materializer) materializeReminder(ctx context.Context, reminder *models.Reminder, today time.Time) (int, error) {
	times, err := rrule.DoseTimesOn(reminder, today, m.loc, m.boundary)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, at := range times {
		// doses scheduled before the reminder existed are not owed
		if !reminder.CreatedAt.IsZero() && at.Before(reminder.CreatedAt) {
			continue
		}
		ok, err := m.logs.Materialize(ctx, &models.AdherenceLog{
			LogID:       uuid.New().String(),
			ReminderID:  reminder.ReminderID,
			PatientID:   reminder.PatientID,
			ScheduledAt: at,
			Status:      models.LogPending,
		})
		if err != nil {
			return created, fmt.Errorf("failed to create log at %s: %w", at.Format(time.RFC3339), err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// dispatchDue claims due doses and hands them to the notifier without waiting
func (m *Materializer) dispatchDue(ctx context.Context, now time.Time) int {
	doses, err := m.logs.ClaimDue(ctx, now)
	if err != nil {
		m.logger.Warn("Failed to claim due doses", zap.Error(err))
		return 0
	}

	for _, dose := range doses {
		m.notifier.Notify(dose.PatientID, notify.TypeDoseDue,
			fmt.Sprintf("Time for %s", dose.MedicationName),
			fmt.Sprintf("%s scheduled at %s", dose.Dosage, dose.ScheduledAt.In(m.loc).Format("15:04")),
			dose.NotifyVia,
			map[string]string{"log_id": dose.LogID, "reminder_id": dose.ReminderID},
		)
	}
	return len(doses)
}
