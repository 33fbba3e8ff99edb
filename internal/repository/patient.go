package repository

import (
	"context"

	"github.com/hray3182/DoseLine/internal/database"
)

type PatientRepository struct {
	db database.Querier
}

func NewPatientRepository(db database.Querier) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) Exists(ctx context.Context, patientID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE patient_id = $1)`,
		patientID,
	).Scan(&exists)
	return exists, err
}

// TelegramChatID returns the patient's linked chat. ok is false when none is linked.
func (r *PatientRepository) TelegramChatID(ctx context.Context, patientID string) (chatID int64, ok bool, err error) {
	var id *int64
	err = r.db.QueryRow(ctx,
		`SELECT telegram_chat_id FROM patients WHERE patient_id = $1`,
		patientID,
	).Scan(&id)
	if err != nil {
		return 0, false, translate(err)
	}
	if id == nil {
		return 0, false, nil
	}
	return *id, true, nil
}
