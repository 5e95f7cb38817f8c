package training

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"diagnostic-trainer/internal/cases"
)

var (
	// ErrAlreadyRequested is informational: the item was already disclosed
	// and nothing changed.
	ErrAlreadyRequested     = errors.New("already requested")
	ErrEmptyDiagnosis       = errors.New("diagnosis must not be empty")
	ErrConfidenceOutOfRange = errors.New("confidence must be between 1 and 5")
	ErrSessionClosed        = errors.New("session already submitted")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotCompleted         = errors.New("session not completed")
	ErrUnknownPhase         = errors.New("unknown phase")
)

const (
	StartingScore  = 100
	RevealPenalty  = 2
	OrderPenalty   = 5
	AccuracyBonus  = 50
	MinConfidence  = 1
	MaxConfidence  = 5
	DefaultGrading = 1500 * time.Millisecond
)

// Phase is the information panel currently expanded. It is not scored.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseHistory   Phase = "history"
	PhaseExam      Phase = "exam"
	PhaseLabs      Phase = "labs"
	PhaseImaging   Phase = "imaging"
	PhaseDiagnosis Phase = "diagnosis"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseInitial, PhaseHistory, PhaseExam, PhaseLabs, PhaseImaging, PhaseDiagnosis:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusGrading   Status = "grading"
	StatusCompleted Status = "completed"
)

// Finding is one disclosed item and its value.
type Finding struct {
	Category cases.Category `json:"category"`
	Item     string         `json:"item"`
	Value    string         `json:"value"`
}

// Outcome is the grading result of a session. It never changes once made.
type Outcome struct {
	Correct         bool   `json:"correct"`
	Feedback        string `json:"feedback"`
	ActualDiagnosis string `json:"actual_diagnosis"`
	FinalScore      int    `json:"final_score"`

	Diagnosis     string `json:"diagnosis"`
	Confidence    int    `json:"confidence"`
	ScoreBefore   int    `json:"score_before"`
	TimeBonus     int    `json:"time_bonus"`
	AccuracyBonus int    `json:"accuracy_bonus"`
	Elapsed       string `json:"elapsed"`
	MatchedRule   string `json:"matched_rule,omitempty"`
	GradedBy      string `json:"graded_by"`
}

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	ID           uuid.UUID         `json:"id"`
	CaseID       string            `json:"case_id"`
	CaseTitle    string            `json:"case_title"`
	Source       cases.Source      `json:"source"`
	Patient      cases.Identity    `json:"patient"`
	Vitals       map[string]string `json:"vitals"`
	Revealed     []Finding         `json:"revealed"`
	Ordered      []Finding         `json:"ordered"`
	RequestsMade int               `json:"requests_made"`
	Score        int               `json:"score"`
	Elapsed      string            `json:"elapsed"`
	Phase        Phase             `json:"phase"`
	Status       Status            `json:"status"`
	Outcome      *Outcome          `json:"outcome,omitempty"`
}

// Debrief is what an instructor report is built from.
type Debrief struct {
	Snapshot
	StartedAt     time.Time `json:"started_at"`
	Differentials []string  `json:"differentials"`
}
