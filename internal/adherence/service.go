// Package adherence owns medication reminders and their dose logs: creation,
// settings changes, the reminder lifecycle, and patient dose responses.
package adherence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/apperror"
	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/frequency"
	"github.com/hray3182/DoseLine/internal/metrics"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notify"
	"github.com/hray3182/DoseLine/internal/repository"
	"github.com/hray3182/DoseLine/internal/rrule"
)

type ReminderStore interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, reminderID string) (*models.Reminder, error)
	ExistsForPrescription(ctx context.Context, prescriptionID string) (bool, error)
	ListByPatient(ctx context.Context, patientID string, status *models.ReminderStatus) ([]*models.Reminder, error)
	Update(ctx context.Context, reminder *models.Reminder, expected models.ReminderStatus) (bool, error)
	SetStatus(ctx context.Context, reminderID string, from []models.ReminderStatus, next models.ReminderStatus, now time.Time) (bool, error)
}

type LogStore interface {
	GetByID(ctx context.Context, logID string) (*models.AdherenceLog, error)
	Respond(ctx context.Context, logID string, status models.LogStatus, respondedAt time.Time, reason *string) (bool, error)
	ListByPatient(ctx context.Context, patientID string, filter models.LogFilter) ([]models.LogEntry, error)
}

type Prescriptions interface {
	Get(ctx context.Context, prescriptionID string) (*models.Prescription, error)
}

type Patients interface {
	Exists(ctx context.Context, patientID string) (bool, error)
}

type Notifier interface {
	Notify(userID string, typ notify.Type, title, body string, channels []models.Channel, metadata map[string]string)
}

// Trigger asks the dose scheduler for an immediate run
type Trigger interface {
	Notify()
}

// DefaultChannels is used for system-created reminders
var DefaultChannels = []models.Channel{models.ChannelPush}

type Service struct {
	reminders     ReminderStore
	logs          LogStore
	prescriptions Prescriptions
	patients      Patients
	notifier      Notifier
	trigger       Trigger
	clock         clock.Clock
	loc           *time.Location
	logger        *zap.Logger
}

func NewService(
	reminders ReminderStore,
	logs LogStore,
	prescriptions Prescriptions,
	patients Patients,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *Service {
	return &Service{
		reminders:     reminders,
		logs:          logs,
		prescriptions: prescriptions,
		patients:      patients,
		notifier:      notifier,
		clock:         clk,
		loc:           loc,
		logger:        logger,
	}
}

// SetTrigger wires the scheduler to run as soon as a reminder becomes schedulable
func (s *Service) SetTrigger(t Trigger) {
	s.trigger = t
}

type CreateReminderInput struct {
	PatientID           string
	PrescriptionID      string
	Frequency           *models.Frequency // nil parses the prescription's frequency text
	TimesOfDay          []string          // nil uses the frequency's default times
	StartDate           time.Time         // zero means today
	EndDate             *time.Time        // nil is open-ended
	NotifyVia           []models.Channel
	MissedWindowMinutes *int
}

func (s *Service) CreateReminder(ctx context.Context, in CreateReminderInput) (*models.ReminderWithPrescription, error) {
	if err := validateChannels(in.NotifyVia); err != nil {
		return nil, err
	}
	if in.Frequency != nil && !in.Frequency.Valid() {
		return nil, apperror.Validation("unknown frequency", map[string]string{"frequency": string(*in.Frequency)})
	}
	if in.TimesOfDay != nil {
		if err := validateTimes(in.TimesOfDay); err != nil {
			return nil, err
		}
	}
	window := models.DefaultMissedWindowMinutes
	if in.MissedWindowMinutes != nil {
		window = *in.MissedWindowMinutes
		if err := validateMissedWindow(window); err != nil {
			return nil, err
		}
	}

	start := clock.StartOfDay(s.clock.Now(), s.loc)
	if !in.StartDate.IsZero() {
		start = clock.CivilDate(in.StartDate, s.loc)
	}
	var end *time.Time
	if in.EndDate != nil {
		d := clock.CivilDate(*in.EndDate, s.loc)
		end = &d
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}

	exists, err := s.patients.Exists(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to check patient: %w", err)
	}
	if !exists {
		return nil, apperror.NotFound("patient", in.PatientID)
	}

	prescription, err := s.getPrescription(ctx, in.PrescriptionID)
	if err != nil {
		return nil, err
	}
	if prescription.PatientID != in.PatientID {
		return nil, apperror.Forbidden("prescription belongs to another patient")
	}
	if !prescription.Dispensed {
		return nil, apperror.InvalidState("prescription has not been dispensed")
	}

	freq, times := frequency.ParseFrequency(prescription.Frequency)
	if in.Frequency != nil {
		freq = *in.Frequency
		times = freq.DefaultTimes()
	}
	if in.TimesOfDay != nil {
		times = in.TimesOfDay
	}

	reminder := &models.Reminder{
		ReminderID:          uuid.New().String(),
		PrescriptionID:      prescription.PrescriptionID,
		PatientID:           in.PatientID,
		Frequency:           freq,
		TimesOfDay:          times,
		StartDate:           start,
		EndDate:             end,
		NotifyVia:           in.NotifyVia,
		MissedWindowMinutes: window,
		TotalQuantity:       prescription.Quantity,
		Status:              models.ReminderActive,
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.InvalidState("a reminder already exists for this prescription")
		}
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	metrics.RecordReminderCreated("patient")
	s.logger.Info("Reminder created",
		zap.String("reminder_id", reminder.ReminderID),
		zap.String("prescription_id", reminder.PrescriptionID),
		zap.String("frequency", string(reminder.Frequency)),
	)
	s.triggerSchedule()

	return &models.ReminderWithPrescription{Reminder: reminder, Prescription: prescription.Summary()}, nil
}

// AutoCreateReminder seeds a reminder from a dispensed prescription. It is a
// no-op returning created=false if the prescription already has one.
func (s *Service) AutoCreateReminder(ctx context.Context, prescriptionID string) (*models.Reminder, bool, error) {
	prescription, err := s.getPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, false, err
	}

	exists, err := s.reminders.ExistsForPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing reminder: %w", err)
	}
	if exists {
		s.logger.Info("Reminder already exists for prescription, skipping",
			zap.String("prescription_id", prescriptionID))
		return nil, false, nil
	}

	today := clock.StartOfDay(s.clock.Now(), s.loc)
	schedule := frequency.Parse(prescription.Frequency, prescription.Duration, today)
	end := schedule.EndDate

	reminder := &models.Reminder{
		ReminderID:          uuid.New().String(),
		PrescriptionID:      prescription.PrescriptionID,
		PatientID:           prescription.PatientID,
		Frequency:           schedule.Frequency,
		TimesOfDay:          schedule.TimesOfDay,
		StartDate:           today,
		EndDate:             &end,
		NotifyVia:           append([]models.Channel(nil), DefaultChannels...),
		MissedWindowMinutes: models.DefaultMissedWindowMinutes,
		TotalQuantity:       prescription.Quantity,
		Status:              models.ReminderActive,
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// another instance handled the same dispense
			s.logger.Info("Reminder created concurrently, skipping",
				zap.String("prescription_id", prescriptionID))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to create reminder: %w", err)
	}

	metrics.RecordReminderCreated("dispense")
	s.logger.Info("Reminder auto-created",
		zap.String("reminder_id", reminder.ReminderID),
		zap.String("prescription_id", prescriptionID),
		zap.String("frequency", string(reminder.Frequency)),
		zap.Time("end_date", end),
	)

	s.notifier.Notify(reminder.PatientID, notify.TypeReminderCreated,
		"Medication reminder set",
		fmt.Sprintf("%s %s: %s until %s", prescription.MedicationName, prescription.Dosage,
			rrule.Describe(reminder), end.Format(time.DateOnly)),
		reminder.NotifyVia,
		map[string]string{"reminder_id": reminder.ReminderID, "prescription_id": prescriptionID},
	)
	s.triggerSchedule()

	return reminder, true, nil
}

type UpdateReminderInput struct {
	TimesOfDay          []string
	EndDate             *time.Time
	ClearEndDate        bool
	NotifyVia           []models.Channel
	MissedWindowMinutes *int
	Status              *models.ReminderStatus
}

func (s *Service) UpdateReminder(ctx context.Context, patientID, reminderID string, in UpdateReminderInput) (*models.Reminder, error) {
	reminder, err := s.ownedReminder(ctx, patientID, reminderID)
	if err != nil {
		return nil, err
	}
	if reminder.Status.IsFinal() && (in.Status == nil || *in.Status == reminder.Status) {
		return nil, apperror.InvalidState(fmt.Sprintf("reminder is %s", reminder.Status))
	}

	expected := reminder.Status
	if in.TimesOfDay != nil {
		if err := validateTimes(in.TimesOfDay); err != nil {
			return nil, err
		}
		reminder.TimesOfDay = in.TimesOfDay
	}
	if in.NotifyVia != nil {
		if err := validateChannels(in.NotifyVia); err != nil {
			return nil, err
		}
		reminder.NotifyVia = in.NotifyVia
	}
	if in.MissedWindowMinutes != nil {
		if err := validateMissedWindow(*in.MissedWindowMinutes); err != nil {
			return nil, err
		}
		reminder.MissedWindowMinutes = *in.MissedWindowMinutes
	}
	switch {
	case in.ClearEndDate:
		reminder.EndDate = nil
	case in.EndDate != nil:
		d := clock.CivilDate(*in.EndDate, s.loc)
		reminder.EndDate = &d
	}
	if err := validateWindow(clock.CivilDate(reminder.StartDate, s.loc), reminder.EndDate); err != nil {
		return nil, err
	}
	if in.Status != nil && *in.Status != reminder.Status {
		if !reminder.Status.CanTransition(*in.Status) {
			return nil, apperror.InvalidState(
				fmt.Sprintf("cannot change reminder from %s to %s", reminder.Status, *in.Status))
		}
		reminder.Status = *in.Status
	}

	reminder.UpdatedAt = s.clock.Now()
	ok, err := s.reminders.Update(ctx, reminder, expected)
	if err != nil {
		return nil, fmt.Errorf("failed to update reminder: %w", err)
	}
	if !ok {
		return nil, apperror.InvalidState("reminder was modified concurrently")
	}

	s.logger.Info("Reminder updated",
		zap.String("reminder_id", reminderID),
		zap.String("status", string(reminder.Status)),
	)
	if reminder.Status == models.ReminderActive {
		s.triggerSchedule()
	}
	return reminder, nil
}

func (s *Service) PauseReminder(ctx context.Context, patientID, reminderID string) (*models.Reminder, error) {
	return s.transition(ctx, patientID, reminderID, []models.ReminderStatus{models.ReminderActive}, models.ReminderPaused)
}

func (s *Service) ResumeReminder(ctx context.Context, patientID, reminderID string) (*models.Reminder, error) {
	reminder, err := s.transition(ctx, patientID, reminderID, []models.ReminderStatus{models.ReminderPaused}, models.ReminderActive)
	if err != nil {
		return nil, err
	}
	s.triggerSchedule()
	return reminder, nil
}

// CancelReminder is legal from any status except CANCELLED. Logs are kept.
func (s *Service) CancelReminder(ctx context.Context, patientID, reminderID string) (*models.Reminder, error) {
	return s.transition(ctx, patientID, reminderID,
		[]models.ReminderStatus{models.ReminderActive, models.ReminderPaused, models.ReminderCompleted},
		models.ReminderCancelled)
}

func (s *Service) transition(ctx context.Context, patientID, reminderID string, from []models.ReminderStatus, next models.ReminderStatus) (*models.Reminder, error) {
	reminder, err := s.ownedReminder(ctx, patientID, reminderID)
	if err != nil {
		return nil, err
	}
	if !statusIn(reminder.Status, from) {
		return nil, apperror.InvalidState(
			fmt.Sprintf("cannot change reminder from %s to %s", reminder.Status, next))
	}

	now := s.clock.Now()
	ok, err := s.reminders.SetStatus(ctx, reminderID, from, next, now)
	if err != nil {
		return nil, fmt.Errorf("failed to set reminder status: %w", err)
	}
	if !ok {
		return nil, apperror.InvalidState("reminder was modified concurrently")
	}

	s.logger.Info("Reminder status changed",
		zap.String("reminder_id", reminderID),
		zap.String("from", string(reminder.Status)),
		zap.String("to", string(next)),
	)
	reminder.Status = next
	reminder.UpdatedAt = now
	return reminder, nil
}

// LogAdherence records the patient's TAKEN or SKIPPED response to a PENDING dose
func (s *Service) LogAdherence(ctx context.Context, patientID, logID string, status models.LogStatus, reason *string) (*models.AdherenceLog, error) {
	if !status.PatientResponse() {
		return nil, apperror.Validation("status must be TAKEN or SKIPPED",
			map[string]string{"status": string(status)})
	}

	log, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("adherence log", logID)
		}
		return nil, fmt.Errorf("failed to get adherence log: %w", err)
	}
	if log.PatientID != patientID {
		return nil, apperror.Forbidden("adherence log belongs to another patient")
	}
	if log.Status != models.LogPending {
		return nil, apperror.InvalidState(fmt.Sprintf("dose already %s", log.Status))
	}

	var stored *string
	if status == models.LogSkipped && reason != nil && strings.TrimSpace(*reason) != "" {
		r := strings.TrimSpace(*reason)
		stored = &r
	}

	now := s.clock.Now()
	ok, err := s.logs.Respond(ctx, logID, status, now, stored)
	if err != nil {
		return nil, fmt.Errorf("failed to record adherence: %w", err)
	}
	if !ok {
		return nil, apperror.InvalidState("dose is no longer pending")
	}

	metrics.RecordAdherenceResponse(string(status))
	log.Status = status
	log.RespondedAt = &now
	log.Reason = stored
	return log, nil
}

func (s *Service) GetReminder(ctx context.Context, patientID, reminderID string) (*models.ReminderWithPrescription, error) {
	reminder, err := s.ownedReminder(ctx, patientID, reminderID)
	if err != nil {
		return nil, err
	}

	result := &models.ReminderWithPrescription{
		Reminder:     reminder,
		Prescription: models.PrescriptionSummary{PrescriptionID: reminder.PrescriptionID},
	}
	prescription, err := s.prescriptions.Get(ctx, reminder.PrescriptionID)
	switch {
	case err == nil:
		result.Prescription = prescription.Summary()
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("Reminder references a missing prescription",
			zap.String("reminder_id", reminderID),
			zap.String("prescription_id", reminder.PrescriptionID))
	default:
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return result, nil
}

func (s *Service) ListReminders(ctx context.Context, patientID string, status *models.ReminderStatus) ([]*models.Reminder, error) {
	reminders, err := s.reminders.ListByPatient(ctx, patientID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

func (s *Service) ListLogs(ctx context.Context, patientID string, filter models.LogFilter) ([]models.LogEntry, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperror.Validation("to must not be before from", nil)
	}
	logs, err := s.logs.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list adherence logs: %w", err)
	}
	return logs, nil
}

func (s *Service) ownedReminder(ctx context.Context, patientID, reminderID string) (*models.Reminder, error) {
	reminder, err := s.reminders.GetByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("reminder", reminderID)
		}
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	if reminder.PatientID != patientID {
		return nil, apperror.Forbidden("reminder belongs to another patient")
	}
	return reminder, nil
}

func (s *Service) getPrescription(ctx context.Context, prescriptionID string) (*models.Prescription, error) {
	prescription, err := s.prescriptions.Get(ctx, prescriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("prescription", prescriptionID)
		}
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return prescription, nil
}

func (s *Service) triggerSchedule() {
	if s.trigger != nil {
		s.trigger.Notify()
	}
}

func statusIn(s models.ReminderStatus, set []models.ReminderStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
