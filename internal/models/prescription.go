package models

// Prescription is the read-only view of the external prescription record
type Prescription struct {
	PrescriptionID string `json:"prescription_id"`
	PatientID      string `json:"patient_id"`
	PractitionerID string `json:"practitioner_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"` // free text, e.g. "Twice daily"
	Duration       string `json:"duration"`  // free text, e.g. "3 months"
	Quantity       int    `json:"quantity"`
	Dispensed      bool   `json:"dispensed"`
}

func (p *Prescription) Summary() PrescriptionSummary {
	return PrescriptionSummary{
		PrescriptionID: p.PrescriptionID,
		MedicationName: p.MedicationName,
		Dosage:         p.Dosage,
		Frequency:      p.Frequency,
		Duration:       p.Duration,
	}
}

type PrescriptionSummary struct {
	PrescriptionID string `json:"prescription_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
}
