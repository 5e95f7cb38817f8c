package cases

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatientRecord is a persisted (synthetic or custom) patient. Every nested
// section is optional.
type PatientRecord struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Name   string    `json:"name" db:"name"`
	Age    int       `json:"age" db:"age"`
	Gender string    `json:"gender" db:"gender"`

	MedicalHistory *MedicalHistory `json:"medical_history,omitempty" db:"medical_history"`
	PhysicalExam   *PhysicalExam   `json:"physical_exam,omitempty" db:"physical_exam"`
	Symptoms       *Symptoms       `json:"symptoms,omitempty" db:"symptoms"`
	Vitals         *Vitals         `json:"vitals,omitempty" db:"vitals"`

	// Known only for some generated patients.
	WorkingDiagnosis string   `json:"working_diagnosis,omitempty" db:"working_diagnosis"`
	Differentials    []string `json:"differentials,omitempty" db:"differentials"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type MedicalHistory struct {
	Allergies     []string `json:"allergies,omitempty"`
	Medications   []string `json:"medications,omitempty"`
	Surgeries     []string `json:"surgeries,omitempty"`
	FamilyHistory string   `json:"family_history,omitempty"`
	SocialHistory string   `json:"social_history,omitempty"`
}

type PhysicalExam struct {
	General string `json:"general,omitempty"`
	Cardiac string `json:"cardiac,omitempty"`
	Lungs   string `json:"lungs,omitempty"`
	Neuro   string `json:"neuro,omitempty"`
	Abdomen string `json:"abdomen,omitempty"`
}

type Symptoms struct {
	Primary   string   `json:"primary,omitempty"`
	Secondary []string `json:"secondary,omitempty"`
	Duration  string   `json:"duration,omitempty"`
}

type Vitals struct {
	BloodPressure    string `json:"blood_pressure,omitempty"`
	HeartRate        string `json:"heart_rate,omitempty"`
	RespiratoryRate  string `json:"respiratory_rate,omitempty"`
	Temperature      string `json:"temperature,omitempty"`
	OxygenSaturation string `json:"oxygen_saturation,omitempty"`
}

// FromPatient shapes a patient record into a fixture. Labs and imaging are
// never on file for these patients, so every test reads "Order if needed".
func FromPatient(p *PatientRecord) *Fixture {
	f := &Fixture{
		ID:         "patient-" + p.ID.String(),
		Title:      "Patient case",
		Difficulty: "variable",
		Source:     SourcePatient,
		PatientID:  p.ID,
		Patient: Identity{
			Name:           p.Name,
			Age:            p.Age,
			Gender:         p.Gender,
			ChiefComplaint: chiefComplaint(p.Symptoms),
		},
		History:          map[string]string{},
		PhysicalExam:     map[string]string{},
		Vitals:           map[string]string{},
		CorrectDiagnosis: p.WorkingDiagnosis,
		Differentials:    append([]string(nil), p.Differentials...),
	}

	if h := p.MedicalHistory; h != nil {
		f.History["allergies"] = strings.Join(h.Allergies, ", ")
		f.History["medications"] = strings.Join(h.Medications, ", ")
		f.History["surgeries"] = strings.Join(h.Surgeries, ", ")
		f.History["familyHistory"] = h.FamilyHistory
		f.History["socialHistory"] = h.SocialHistory
	}
	if e := p.PhysicalExam; e != nil {
		f.PhysicalExam["general"] = e.General
		f.PhysicalExam["cardiac"] = e.Cardiac
		f.PhysicalExam["lungs"] = e.Lungs
		f.PhysicalExam["neuro"] = e.Neuro
		f.PhysicalExam["abdomen"] = e.Abdomen
	}
	if v := p.Vitals; v != nil {
		f.Vitals["bloodPressure"] = v.BloodPressure
		f.Vitals["heartRate"] = v.HeartRate
		f.Vitals["respiratoryRate"] = v.RespiratoryRate
		f.Vitals["temperature"] = v.Temperature
		f.Vitals["oxygenSaturation"] = v.OxygenSaturation
	}

	f.Fill()
	return f
}

func chiefComplaint(s *Symptoms) string {
	if s == nil || strings.TrimSpace(s.Primary) == "" {
		return "Not documented"
	}
	cc := s.Primary
	if len(s.Secondary) > 0 {
		cc += " with " + strings.Join(s.Secondary, ", ")
	}
	if s.Duration != "" {
		cc += " for " + s.Duration
	}
	return cc
}
