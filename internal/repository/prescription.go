package repository

import (
	"context"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

// PrescriptionRepository reads the prescriptions table. It never writes.
type PrescriptionRepository struct {
	db database.Querier
}

func NewPrescriptionRepository(db database.Querier) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

func (r *PrescriptionRepository) Get(ctx context.Context, prescriptionID string) (*models.Prescription, error) {
	p := &models.Prescription{}
	err := r.db.QueryRow(ctx,
		`SELECT prescription_id, patient_id, practitioner_id, medication_name, dosage,
		        COALESCE(frequency, ''), COALESCE(duration, ''), COALESCE(quantity, 0), dispensed
		 FROM prescriptions WHERE prescription_id = $1`,
		prescriptionID,
	).Scan(&p.PrescriptionID, &p.PatientID, &p.PractitionerID, &p.MedicationName, &p.Dosage,
		&p.Frequency, &p.Duration, &p.Quantity, &p.Dispensed)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// HasTreatmentRelationship reports whether the practitioner has prescribed anything for the patient
func (r *PrescriptionRepository) HasTreatmentRelationship(ctx context.Context, practitionerID, patientID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM prescriptions WHERE practitioner_id = $1 AND patient_id = $2)`,
		practitionerID, patientID,
	).Scan(&exists)
	return exists, err
}
