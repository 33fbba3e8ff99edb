package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/apperror"
	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/repository"
)

// RecentLogLimit is how many logs the practitioner view shows
const RecentLogLimit = 20

type Reminders interface {
	GetByID(ctx context.Context, reminderID string) (*models.Reminder, error)
	ListByPatient(ctx context.Context, patientID string, status *models.ReminderStatus) ([]*models.Reminder, error)
}

type Logs interface {
	ListByPatient(ctx context.Context, patientID string, filter models.LogFilter) ([]models.LogEntry, error)
	CountTaken(ctx context.Context, reminderID string) (int, error)
}

type TreatmentChecker interface {
	HasTreatmentRelationship(ctx context.Context, practitionerID, patientID string) (bool, error)
}

type Service struct {
	reminders Reminders
	logs      Logs
	treatment TreatmentChecker
	clock     clock.Clock
	loc       *time.Location
	logger    *zap.Logger
}

func NewService(reminders Reminders, logs Logs, treatment TreatmentChecker, clk clock.Clock, loc *time.Location, logger *zap.Logger) *Service {
	return &Service{
		reminders: reminders,
		logs:      logs,
		treatment: treatment,
		clock:     clk,
		loc:       loc,
		logger:    logger,
	}
}

type PatientAdherence struct {
	PatientID       string             `json:"patient_id"`
	Summary         Summary            `json:"summary"`
	ActiveReminders []*models.Reminder `json:"active_reminders"`
	RecentLogs      []models.LogEntry  `json:"recent_logs"`
	Filter          models.LogFilter   `json:"-"`
}

func (s *Service) GetAdherenceSummary(ctx context.Context, patientID string, filter models.LogFilter) (*Summary, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	filter.Limit = 0
	logs, err := s.logs.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list adherence logs: %w", err)
	}
	summary := Summarize(logs, s.clock.Now(), s.loc)
	return &summary, nil
}

func (s *Service) GetRefillStatus(ctx context.Context, patientID, reminderID string) (*RefillStatus, error) {
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

	taken, err := s.logs.CountTaken(ctx, reminderID)
	if err != nil {
		return nil, fmt.Errorf("failed to count taken doses: %w", err)
	}

	status := EstimateRefill(reminder.TotalQuantity, taken, reminder.DosesPerDay(),
		clock.StartOfDay(s.clock.Now(), s.loc))
	status.ReminderID = reminder.ReminderID
	status.PrescriptionID = reminder.PrescriptionID
	return &status, nil
}

// GetPatientAdherence is the practitioner view. It requires at least one
// prescription from the practitioner for the patient.
func (s *Service) GetPatientAdherence(ctx context.Context, practitionerID, patientID string, filter models.LogFilter) (*PatientAdherence, error) {
	if err := s.checkTreatment(ctx, practitionerID, patientID); err != nil {
		return nil, err
	}

	summary, err := s.GetAdherenceSummary(ctx, patientID, filter)
	if err != nil {
		return nil, err
	}

	active := models.ReminderActive
	reminders, err := s.reminders.ListByPatient(ctx, patientID, &active)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}

	recentFilter := filter
	recentFilter.Limit = RecentLogLimit
	recent, err := s.logs.ListByPatient(ctx, patientID, recentFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent logs: %w", err)
	}

	return &PatientAdherence{
		PatientID:       patientID,
		Summary:         *summary,
		ActiveReminders: reminders,
		RecentLogs:      recent,
		Filter:          filter,
	}, nil
}

// ExportPatientAdherence renders the practitioner view as an XLSX workbook
func (s *Service) ExportPatientAdherence(ctx context.Context, practitionerID, patientID string, filter models.LogFilter) ([]byte, error) {
	view, err := s.GetPatientAdherence(ctx, practitionerID, patientID, filter)
	if err != nil {
		return nil, err
	}

	data, err := GenerateAdherenceWorkbook(view, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to render adherence workbook: %w", err)
	}
	s.logger.Info("Exported adherence workbook",
		zap.String("practitioner_id", practitionerID),
		zap.String("patient_id", patientID),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

func (s *Service) checkTreatment(ctx context.Context, practitionerID, patientID string) error {
	ok, err := s.treatment.HasTreatmentRelationship(ctx, practitionerID, patientID)
	if err != nil {
		return fmt.Errorf("failed to check treatment relationship: %w", err)
	}
	if !ok {
		return apperror.Forbidden("no treatment relationship with patient")
	}
	return nil
}

func validateFilter(filter models.LogFilter) error {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return apperror.Validation("to must not be before from", nil)
	}
	return nil
}
