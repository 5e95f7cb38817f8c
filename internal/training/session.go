package training

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"diagnostic-trainer/internal/cases"
)

type itemRef struct {
	category cases.Category
	item     string
}

// Session is one diagnostic training attempt against a fixture. All
// methods take the current time explicitly; nothing runs in the background.
type Session struct {
	mu sync.Mutex

	id           uuid.UUID
	fixture      *cases.Fixture
	startTime    time.Time
	gradingDelay time.Duration

	phase        Phase
	revealed     map[itemRef]struct{}
	ordered      map[string]struct{}
	requestsMade int
	score        int

	status  Status
	readyAt time.Time
	outcome *Outcome
}

func NewSession(f *cases.Fixture, now time.Time, gradingDelay time.Duration) *Session {
	return &Session{
		id:           uuid.New(),
		fixture:      f,
		startTime:    now,
		gradingDelay: gradingDelay,
		phase:        PhaseInitial,
		revealed:     make(map[itemRef]struct{}),
		ordered:      make(map[string]struct{}),
		score:        StartingScore,
		status:       StatusActive,
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Fixture() *cases.Fixture { return s.fixture }

// advance completes grading once the delay has passed. Callers hold mu.
func (s *Session) advance(now time.Time) {
	if s.status == StatusGrading && !now.Before(s.readyAt) {
		s.status = StatusCompleted
	}
}

func deduct(score, penalty int) int {
	return max(0, score-penalty)
}

// Reveal discloses a history or exam item for a 2 point penalty. A repeat
// request returns the finding with ErrAlreadyRequested and changes nothing.
func (s *Session) Reveal(now time.Time, category cases.Category, item string) (Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)

	if category != cases.CategoryHistory && category != cases.CategoryExam {
		return Finding{}, fmt.Errorf("%w: %q cannot be revealed", cases.ErrUnknownCategory, category)
	}
	value, err := s.fixture.Lookup(category, item)
	if err != nil {
		return Finding{}, err
	}
	if s.status != StatusActive {
		return Finding{}, ErrSessionClosed
	}

	finding := Finding{Category: category, Item: item, Value: value}
	ref := itemRef{category: category, item: item}
	if _, ok := s.revealed[ref]; ok {
		return finding, ErrAlreadyRequested
	}
	s.revealed[ref] = struct{}{}
	s.requestsMade++
	s.score = deduct(s.score, RevealPenalty)
	return finding, nil
}

// Order orders a lab or imaging test for a 5 point penalty. Lab and imaging
// keys share one namespace.
func (s *Session) Order(now time.Time, test string) (Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)

	category, ok := cases.TestCategory(test)
	if !ok {
		return Finding{}, fmt.Errorf("%w: test %q", cases.ErrUnknownItem, test)
	}
	value, err := s.fixture.Lookup(category, test)
	if err != nil {
		return Finding{}, err
	}
	if s.status != StatusActive {
		return Finding{}, ErrSessionClosed
	}

	finding := Finding{Category: category, Item: test, Value: value}
	if _, ok := s.ordered[test]; ok {
		return finding, ErrAlreadyRequested
	}
	s.ordered[test] = struct{}{}
	s.requestsMade++
	s.score = deduct(s.score, OrderPenalty)
	return finding, nil
}

func (s *Session) SetPhase(now time.Time, p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)

	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, p)
	}
	if s.status != StatusActive {
		return ErrSessionClosed
	}
	s.phase = p
	return nil
}

// FormatElapsed renders a duration as M:SS with unbounded minutes.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func (s *Session) ElapsedDisplay(now time.Time) string {
	return FormatElapsed(now.Sub(s.startTime))
}

// TimeBonus is 20 under five minutes, 10 under ten, otherwise 0.
func TimeBonus(elapsed time.Duration) int {
	switch minutes := elapsed.Minutes(); {
	case minutes < 5:
		return 20
	case minutes < 10:
		return 10
	default:
		return 0
	}
}

// FinalScore applies the bonuses and the confidence multiplier. The result
// is neither floored nor capped.
func FinalScore(score, timeBonus, accuracyBonus, confidence int) int {
	return int(math.Round(float64(score+timeBonus+accuracyBonus) * float64(confidence) / MaxConfidence))
}

// Submit grades a diagnosis and moves the session to grading. The outcome
// becomes visible once the grading delay has passed. Validation failures
// and grader errors leave the session untouched.
func (s *Session) Submit(ctx context.Context, now time.Time, diagnosis string, confidence int, grader DiagnosisGrader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)

	if s.status != StatusActive {
		return ErrSessionClosed
	}
	diagnosis = strings.TrimSpace(diagnosis)
	if diagnosis == "" {
		return ErrEmptyDiagnosis
	}
	if confidence < MinConfidence || confidence > MaxConfidence {
		return fmt.Errorf("%w: got %d", ErrConfidenceOutOfRange, confidence)
	}

	elapsed := now.Sub(s.startTime)
	verdict, err := grader.Grade(ctx, s.fixture, diagnosis)
	if err != nil {
		return fmt.Errorf("grade diagnosis: %w", err)
	}

	timeBonus := TimeBonus(elapsed)
	accuracy := 0
	if verdict.Correct {
		accuracy = AccuracyBonus
	}
	actual := verdict.ActualDiagnosis
	if actual == "" {
		actual = s.fixture.CorrectDiagnosis
	}

	final := FinalScore(s.score, timeBonus, accuracy, confidence)
	s.outcome = &Outcome{
		Correct:         verdict.Correct,
		Feedback:        verdict.Feedback,
		ActualDiagnosis: actual,
		FinalScore:      final,
		Diagnosis:       diagnosis,
		Confidence:      confidence,
		ScoreBefore:     s.score,
		TimeBonus:       timeBonus,
		AccuracyBonus:   accuracy,
		Elapsed:         FormatElapsed(elapsed),
		MatchedRule:     verdict.MatchedRule,
		GradedBy:        verdict.GradedBy,
	}
	s.score = final
	s.phase = PhaseDiagnosis
	s.status = StatusGrading
	s.readyAt = now.Add(s.gradingDelay)
	s.advance(now)
	return nil
}

// ReadyAt is when the outcome becomes visible; zero before submission.
func (s *Session) ReadyAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyAt
}

func (s *Session) Status(now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)
	return s.status
}

// Outcome returns the result once grading has completed.
func (s *Session) Outcome(now time.Time) (*Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)
	if s.status != StatusCompleted {
		return nil, false
	}
	o := *s.outcome
	return &o, true
}

func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

func (s *Session) RequestsMade() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestsMade
}

func (s *Session) Snapshot(now time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)
	return s.snapshot(now)
}

func (s *Session) snapshot(now time.Time) *Snapshot {
	f := s.fixture
	snap := &Snapshot{
		ID:           s.id,
		CaseID:       f.ID,
		CaseTitle:    f.Title,
		Source:       f.Source,
		Patient:      f.Patient,
		Vitals:       maps.Clone(f.Vitals),
		Revealed:     []Finding{},
		Ordered:      []Finding{},
		RequestsMade: s.requestsMade,
		Score:        s.score,
		Elapsed:      s.ElapsedDisplay(now),
		Phase:        s.phase,
		Status:       s.status,
	}

	// Listed in fixed key order so the view does not depend on request order.
	for _, c := range []cases.Category{cases.CategoryHistory, cases.CategoryExam} {
		keys, _ := cases.KeysFor(c)
		for _, k := range keys {
			if _, ok := s.revealed[itemRef{category: c, item: k}]; ok {
				v, _ := f.Lookup(c, k)
				snap.Revealed = append(snap.Revealed, Finding{Category: c, Item: k, Value: v})
			}
		}
	}
	for _, c := range []cases.Category{cases.CategoryLabs, cases.CategoryImaging} {
		keys, _ := cases.KeysFor(c)
		for _, k := range keys {
			if _, ok := s.ordered[k]; ok {
				v, _ := f.Lookup(c, k)
				snap.Ordered = append(snap.Ordered, Finding{Category: c, Item: k, Value: v})
			}
		}
	}

	if s.status == StatusCompleted {
		o := *s.outcome
		snap.Outcome = &o
	}
	return snap
}

// Debrief is only available for a completed session.
func (s *Session) Debrief(now time.Time) (*Debrief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)
	if s.status != StatusCompleted {
		return nil, ErrNotCompleted
	}
	return s.debrief(now), nil
}

// FinalDebrief returns the debrief as it will look once grading completes,
// without moving the session forward. It fails before submission.
func (s *Session) FinalDebrief() (*Debrief, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return nil, ErrNotCompleted
	}
	d := s.debrief(s.readyAt)
	o := *s.outcome
	d.Status = StatusCompleted
	d.Outcome = &o
	return d, nil
}

func (s *Session) debrief(now time.Time) *Debrief {
	return &Debrief{
		Snapshot:      *s.snapshot(now),
		StartedAt:     s.startTime,
		Differentials: append([]string(nil), s.fixture.Differentials...),
	}
}
