package cases

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrCaseNotFound     = errors.New("case not found")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownItem      = errors.New("unknown item")
	ErrIncompleteRecord = errors.New("incomplete case record")
)

// Category names a group of findings in a case.
type Category string

const (
	CategoryHistory Category = "history"
	CategoryExam    Category = "exam"
	CategoryVitals  Category = "vitals"
	CategoryLabs    Category = "labs"
	CategoryImaging Category = "imaging"
)

// Source tells where a fixture came from; it decides which grader applies.
type Source string

const (
	SourceDemo    Source = "demo"
	SourcePatient Source = "patient"
)

// Fixed item keys per category. Lab and imaging keys never overlap.
var (
	HistoryKeys = []string{"allergies", "medications", "surgeries", "familyHistory", "socialHistory"}
	ExamKeys    = []string{"general", "cardiac", "lungs", "neuro", "abdomen"}
	VitalKeys   = []string{"bloodPressure", "heartRate", "respiratoryRate", "temperature", "oxygenSaturation"}
	LabKeys     = []string{"cbc", "bmp", "troponin", "dDimer", "lactate", "liverPanel", "lipase", "bloodCultures"}
	ImagingKeys = []string{"ecg", "chestXray", "ctHead", "ctaChest", "ctAbdomen", "abdominalUltrasound", "mriBrain"}
)

const (
	FallbackAllergies    = "No known allergies"
	FallbackHistory      = "No significant history"
	FallbackExam         = "Within normal limits"
	FallbackVitals       = "Not recorded"
	FallbackDemoTest     = "Pending"
	FallbackPatientTest  = "Order if needed"
	PlaceholderDiagnosis = "Pending AI analysis"
)

// Identity is the display-only part of a case.
type Identity struct {
	Name           string `yaml:"name" json:"name"`
	Age            int    `yaml:"age" json:"age"`
	Gender         string `yaml:"gender" json:"gender"`
	ChiefComplaint string `yaml:"chief_complaint" json:"chief_complaint"`
}

// Fixture is the read-only ground truth for one training case.
type Fixture struct {
	ID         string    `yaml:"id" json:"id"`
	Title      string    `yaml:"title" json:"title"`
	Difficulty string    `yaml:"difficulty" json:"difficulty"`
	Source     Source    `yaml:"-" json:"source"`
	PatientID  uuid.UUID `yaml:"-" json:"-"`

	Patient      Identity          `yaml:"patient" json:"patient"`
	History      map[string]string `yaml:"history" json:"-"`
	Vitals       map[string]string `yaml:"vitals" json:"-"`
	PhysicalExam map[string]string `yaml:"physical_exam" json:"-"`
	Labs         map[string]string `yaml:"labs" json:"-"`
	Imaging      map[string]string `yaml:"imaging" json:"-"`

	CorrectDiagnosis string   `yaml:"correct_diagnosis" json:"-"`
	Differentials    []string `yaml:"differentials" json:"-"`
}

// Summary is the public listing entry for a case; it hides the answer.
type Summary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Difficulty     string `json:"difficulty"`
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	ChiefComplaint string `json:"chief_complaint"`
}

func (f *Fixture) Summary() Summary {
	return Summary{
		ID:             f.ID,
		Title:          f.Title,
		Difficulty:     f.Difficulty,
		Name:           f.Patient.Name,
		Age:            f.Patient.Age,
		Gender:         f.Patient.Gender,
		ChiefComplaint: f.Patient.ChiefComplaint,
	}
}

// KeysFor returns the fixed key list of a category.
func KeysFor(c Category) ([]string, error) {
	switch c {
	case CategoryHistory:
		return HistoryKeys, nil
	case CategoryExam:
		return ExamKeys, nil
	case CategoryVitals:
		return VitalKeys, nil
	case CategoryLabs:
		return LabKeys, nil
	case CategoryImaging:
		return ImagingKeys, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
}

// TestCategory resolves a test key to labs or imaging.
func TestCategory(key string) (Category, bool) {
	if slices.Contains(LabKeys, key) {
		return CategoryLabs, true
	}
	if slices.Contains(ImagingKeys, key) {
		return CategoryImaging, true
	}
	return "", false
}

// Lookup returns the value of a fixed item. Unknown keys are an error;
// known keys always resolve once the fixture has been filled.
func (f *Fixture) Lookup(c Category, key string) (string, error) {
	keys, err := KeysFor(c)
	if err != nil {
		return "", err
	}
	if !slices.Contains(keys, key) {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownItem, c, key)
	}
	return f.section(c)[key], nil
}

func (f *Fixture) section(c Category) map[string]string {
	switch c {
	case CategoryHistory:
		return f.History
	case CategoryExam:
		return f.PhysicalExam
	case CategoryVitals:
		return f.Vitals
	case CategoryLabs:
		return f.Labs
	case CategoryImaging:
		return f.Imaging
	}
	return nil
}

func (f *Fixture) setSection(c Category, m map[string]string) {
	switch c {
	case CategoryHistory:
		f.History = m
	case CategoryExam:
		f.PhysicalExam = m
	case CategoryVitals:
		f.Vitals = m
	case CategoryLabs:
		f.Labs = m
	case CategoryImaging:
		f.Imaging = m
	}
}

var allCategories = []Category{CategoryHistory, CategoryExam, CategoryVitals, CategoryLabs, CategoryImaging}

// Fill substitutes fallback strings for every missing or blank item so
// lookups never come back empty.
func (f *Fixture) Fill() {
	for _, c := range allCategories {
		keys, _ := KeysFor(c)
		m := f.section(c)
		if m == nil {
			m = make(map[string]string, len(keys))
			f.setSection(c, m)
		}
		for _, k := range keys {
			if strings.TrimSpace(m[k]) == "" {
				m[k] = f.fallback(c, k)
			}
		}
	}
	if strings.TrimSpace(f.CorrectDiagnosis) == "" {
		f.CorrectDiagnosis = PlaceholderDiagnosis
	}
}

func (f *Fixture) fallback(c Category, key string) string {
	switch c {
	case CategoryHistory:
		if key == "allergies" {
			return FallbackAllergies
		}
		return FallbackHistory
	case CategoryExam:
		return FallbackExam
	case CategoryVitals:
		return FallbackVitals
	default:
		if f.Source == SourcePatient {
			return FallbackPatientTest
		}
		return FallbackDemoTest
	}
}

// Validate checks that a row only uses known keys and carries an answer.
func (f *Fixture) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: missing id", ErrIncompleteRecord)
	}
	if strings.TrimSpace(f.CorrectDiagnosis) == "" {
		return fmt.Errorf("%w: case %s has no correct_diagnosis", ErrIncompleteRecord, f.ID)
	}
	for _, c := range allCategories {
		keys, _ := KeysFor(c)
		for k := range f.section(c) {
			if !slices.Contains(keys, k) {
				return fmt.Errorf("%w: case %s uses %s/%s", ErrUnknownItem, f.ID, c, k)
			}
		}
	}
	return nil
}
