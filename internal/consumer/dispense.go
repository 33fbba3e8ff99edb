// Package consumer turns pharmacy dispense events into auto-created reminders.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/apperror"
	"github.com/hray3182/DoseLine/internal/config"
	"github.com/hray3182/DoseLine/internal/models"
)

const fetchBackoff = time.Second

// PrescriptionDispensed is the pharmacy event that starts a reminder
type PrescriptionDispensed struct {
	EventID        string    `json:"event_id"`
	PrescriptionID string    `json:"prescription_id"`
	PatientID      string    `json:"patient_id"`
	DispensedAt    time.Time `json:"dispensed_at"`
}

// AutoCreator is satisfied by adherence.Service
type AutoCreator interface {
	AutoCreateReminder(ctx context.Context, prescriptionID string) (*models.Reminder, bool, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DispenseConsumer struct {
	reader   MessageReader
	reminder AutoCreator
	logger   *zap.Logger
}

func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.DispenseTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
}

func NewDispenseConsumer(reader MessageReader, reminder AutoCreator, logger *zap.Logger) *DispenseConsumer {
	return &DispenseConsumer{
		reader:   reader,
		reminder: reminder,
		logger:   logger,
	}
}

// Run consumes until ctx is cancelled. A message is committed once handled or
// once it is known to be unprocessable; transient failures leave it
// uncommitted so the group redelivers it.
func (c *DispenseConsumer) Run(ctx context.Context) error {
	c.logger.Info("Dispense consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Dispense consumer stopped")
				return nil
			}
			c.logger.Error("Failed to fetch message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}

		if !c.handleMessage(ctx, msg) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("Failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *DispenseConsumer) Close() error {
	return c.reader.Close()
}

// handleMessage reports whether msg should be committed
func (c *DispenseConsumer) handleMessage(ctx context.Context, msg kafka.Message) bool {
	var event PrescriptionDispensed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn("Skipping undecodable dispense event",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return true
	}
	event.PrescriptionID = strings.TrimSpace(event.PrescriptionID)
	if event.PrescriptionID == "" {
		c.logger.Warn("Skipping dispense event without prescription_id",
			zap.Int64("offset", msg.Offset),
			zap.String("event_id", event.EventID),
		)
		return true
	}

	reminder, created, err := c.reminder.AutoCreateReminder(ctx, event.PrescriptionID)
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			// redelivery cannot change the outcome
			c.logger.Warn("Dispense event rejected",
				zap.String("event_id", event.EventID),
				zap.String("prescription_id", event.PrescriptionID),
				zap.Error(err),
			)
			return true
		}
		c.logger.Error("Failed to process dispense event, will retry",
			zap.String("event_id", event.EventID),
			zap.String("prescription_id", event.PrescriptionID),
			zap.Error(err),
		)
		return false
	}

	if created {
		c.logger.Info("Reminder created from dispense event",
			zap.String("event_id", event.EventID),
			zap.String("prescription_id", event.PrescriptionID),
			zap.String("reminder_id", reminder.ReminderID),
		)
	} else {
		c.logger.Debug("Reminder already exists for dispensed prescription",
			zap.String("prescription_id", event.PrescriptionID),
		)
	}
	return true
}
