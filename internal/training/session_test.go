package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnostic-trainer/internal/cases"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func demoFixture(t *testing.T, id string) *cases.Fixture {
	t.Helper()
	table, err := cases.LoadTable("")
	require.NoError(t, err)
	f, err := table.Get(id)
	require.NoError(t, err)
	return f
}

type failingGrader struct{}

func (failingGrader) Grade(context.Context, *cases.Fixture, string) (Verdict, error) {
	return Verdict{}, errors.New("upstream unavailable")
}

func TestSession_RevealDeductsOnce(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)

	f, err := s.Reveal(t0, cases.CategoryHistory, "medications")
	require.NoError(t, err)
	assert.Contains(t, f.Value, "Lisinopril")
	assert.Equal(t, 98, s.Score())
	assert.Equal(t, 1, s.RequestsMade())

	again, err := s.Reveal(t0, cases.CategoryHistory, "medications")
	assert.ErrorIs(t, err, ErrAlreadyRequested)
	assert.Equal(t, f, again)
	assert.Equal(t, 98, s.Score())
	assert.Equal(t, 1, s.RequestsMade())
}

func TestSession_OrderDeductsOnce(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)

	f, err := s.Order(t0, "troponin")
	require.NoError(t, err)
	assert.Equal(t, cases.CategoryLabs, f.Category)
	assert.Equal(t, 95, s.Score())

	f, err = s.Order(t0, "ecg")
	require.NoError(t, err)
	assert.Equal(t, cases.CategoryImaging, f.Category)
	assert.Equal(t, 90, s.Score())

	_, err = s.Order(t0, "ecg")
	assert.ErrorIs(t, err, ErrAlreadyRequested)
	assert.Equal(t, 90, s.Score())
	assert.Equal(t, 2, s.RequestsMade())
}

func TestSession_UnknownItemsChangeNothing(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)

	_, err := s.Reveal(t0, cases.CategoryHistory, "hobbies")
	assert.ErrorIs(t, err, cases.ErrUnknownItem)
	_, err = s.Reveal(t0, cases.CategoryLabs, "cbc")
	assert.ErrorIs(t, err, cases.ErrUnknownCategory)
	_, err = s.Order(t0, "pet-scan")
	assert.ErrorIs(t, err, cases.ErrUnknownItem)

	assert.Equal(t, StartingScore, s.Score())
	assert.Zero(t, s.RequestsMade())
}

func TestSession_ScoreNeverBelowZero(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)
	s.score = 3

	_, err := s.Reveal(t0, cases.CategoryExam, "cardiac")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Score())

	_, err = s.Order(t0, "cbc")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Score())

	_, err = s.Order(t0, "bmp")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Score())
}

func TestSession_EveryRequestFromFullScore(t *testing.T) {
	s := NewSession(demoFixture(t, "meningitis"), t0, DefaultGrading)
	for _, k := range cases.HistoryKeys {
		_, err := s.Reveal(t0, cases.CategoryHistory, k)
		require.NoError(t, err)
	}
	for _, k := range cases.ExamKeys {
		_, err := s.Reveal(t0, cases.CategoryExam, k)
		require.NoError(t, err)
	}
	for _, k := range append(append([]string{}, cases.LabKeys...), cases.ImagingKeys...) {
		_, err := s.Order(t0, k)
		require.NoError(t, err)
	}
	assert.Equal(t, 100-10*RevealPenalty-15*OrderPenalty, s.Score())
	assert.Equal(t, 25, s.RequestsMade())
}

func TestSession_RequestOrderDoesNotMatter(t *testing.T) {
	f := demoFixture(t, "pulmonary-embolism")
	a := NewSession(f, t0, DefaultGrading)
	b := NewSession(f, t0, DefaultGrading)

	a.Reveal(t0, cases.CategoryHistory, "medications")
	a.Order(t0, "dDimer")
	a.Reveal(t0, cases.CategoryExam, "lungs")
	a.Order(t0, "ctaChest")

	b.Order(t0, "ctaChest")
	b.Reveal(t0, cases.CategoryExam, "lungs")
	b.Order(t0, "dDimer")
	b.Reveal(t0, cases.CategoryHistory, "medications")

	sa, sb := a.Snapshot(t0), b.Snapshot(t0)
	assert.Equal(t, sa.Score, sb.Score)
	assert.Equal(t, sa.Revealed, sb.Revealed)
	assert.Equal(t, sa.Ordered, sb.Ordered)
	assert.Equal(t, sa.RequestsMade, sb.RequestsMade)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", FormatElapsed(0))
	assert.Equal(t, "0:59", FormatElapsed(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "2:05", FormatElapsed(125*time.Second))
	assert.Equal(t, "10:00", FormatElapsed(10*time.Minute))
	assert.Equal(t, "125:30", FormatElapsed(125*time.Minute+30*time.Second))
	assert.Equal(t, "0:00", FormatElapsed(-time.Second))
}

func TestTimeBonus(t *testing.T) {
	assert.Equal(t, 20, TimeBonus(4*time.Minute+59*time.Second))
	assert.Equal(t, 10, TimeBonus(5*time.Minute))
	assert.Equal(t, 10, TimeBonus(9*time.Minute+59*time.Second))
	assert.Equal(t, 0, TimeBonus(10*time.Minute))
}

func TestFinalScore(t *testing.T) {
	assert.Equal(t, 154, FinalScore(84, 20, 50, 5))
	assert.Equal(t, 102, FinalScore(100, 20, 50, 3))
	// 118 * 1 / 5 = 23.6
	assert.Equal(t, 24, FinalScore(98, 20, 0, 1))
	// 7 * 2 / 5 = 2.8
	assert.Equal(t, 3, FinalScore(7, 0, 0, 2))
	assert.Equal(t, 0, FinalScore(0, 0, 0, 5))
}

func TestSession_SubmitCorrectQuickly(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)
	s.Reveal(t0, cases.CategoryHistory, "medications")
	s.Reveal(t0, cases.CategoryExam, "cardiac")
	s.Reveal(t0, cases.CategoryExam, "lungs")
	s.Order(t0, "troponin")
	s.Order(t0, "ecg")
	require.Equal(t, 84, s.Score())

	now := t0.Add(3 * time.Minute)
	require.NoError(t, s.Submit(context.Background(), now, "STEMI", 5, LocalGrader{}))

	assert.Equal(t, StatusGrading, s.Status(now))
	_, ok := s.Outcome(now)
	assert.False(t, ok)

	done := now.Add(DefaultGrading)
	assert.Equal(t, StatusCompleted, s.Status(done))
	o, ok := s.Outcome(done)
	require.True(t, ok)
	assert.True(t, o.Correct)
	assert.Equal(t, 154, o.FinalScore)
	assert.Equal(t, 84, o.ScoreBefore)
	assert.Equal(t, 20, o.TimeBonus)
	assert.Equal(t, AccuracyBonus, o.AccuracyBonus)
	assert.Equal(t, "Acute Anterior STEMI", o.ActualDiagnosis)
	assert.Equal(t, "Correct! The diagnosis is Acute Anterior STEMI.", o.Feedback)
	assert.Equal(t, "3:00", o.Elapsed)
	assert.Equal(t, "local", o.GradedBy)
	assert.Equal(t, 154, s.Score())
}

func TestSession_SubmitWrongSlowly(t *testing.T) {
	s := NewSession(demoFixture(t, "cholangitis"), t0, DefaultGrading)

	now := t0.Add(12 * time.Minute)
	require.NoError(t, s.Submit(context.Background(), now, "gallstones", 2, LocalGrader{}))
	o, ok := s.Outcome(now.Add(time.Hour))
	require.True(t, ok)
	assert.False(t, o.Correct)
	assert.Equal(t, 0, o.TimeBonus)
	assert.Equal(t, 40, o.FinalScore)
	assert.Contains(t, o.Feedback, "Not quite. The correct diagnosis is Ascending Cholangitis (Choledocholithiasis).")
	assert.Contains(t, o.Feedback, "Differentials to consider:")
}

func TestSession_SubmitRejectsBadInput(t *testing.T) {
	s := NewSession(demoFixture(t, "stroke"), t0, DefaultGrading)
	s.Order(t0, "ctHead")

	err := s.Submit(context.Background(), t0, "   ", 3, LocalGrader{})
	assert.ErrorIs(t, err, ErrEmptyDiagnosis)

	err = s.Submit(context.Background(), t0, "stroke", 0, LocalGrader{})
	assert.ErrorIs(t, err, ErrConfidenceOutOfRange)
	err = s.Submit(context.Background(), t0, "stroke", 6, LocalGrader{})
	assert.ErrorIs(t, err, ErrConfidenceOutOfRange)

	err = s.Submit(context.Background(), t0, "stroke", 3, failingGrader{})
	assert.Error(t, err)

	assert.Equal(t, StatusActive, s.Status(t0))
	assert.Equal(t, 95, s.Score())
	assert.True(t, s.ReadyAt().IsZero())

	_, err = s.Order(t0, "mriBrain")
	assert.NoError(t, err)
}

func TestSession_ClosedAfterSubmit(t *testing.T) {
	s := NewSession(demoFixture(t, "stroke"), t0, DefaultGrading)
	require.NoError(t, s.Submit(context.Background(), t0, "stroke", 4, LocalGrader{}))
	final := s.Score()

	for _, now := range []time.Time{t0, t0.Add(time.Minute)} {
		_, err := s.Reveal(now, cases.CategoryHistory, "medications")
		assert.ErrorIs(t, err, ErrSessionClosed)
		_, err = s.Order(now, "ctHead")
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.ErrorIs(t, s.SetPhase(now, PhaseLabs), ErrSessionClosed)
		assert.ErrorIs(t, s.Submit(context.Background(), now, "stroke", 5, LocalGrader{}), ErrSessionClosed)
	}
	assert.Equal(t, final, s.Score())
}

func TestSession_SetPhase(t *testing.T) {
	s := NewSession(demoFixture(t, "stroke"), t0, DefaultGrading)
	require.NoError(t, s.SetPhase(t0, PhaseImaging))
	assert.Equal(t, PhaseImaging, s.Snapshot(t0).Phase)
	assert.Equal(t, StartingScore, s.Score())

	assert.ErrorIs(t, s.SetPhase(t0, Phase("pharmacy")), ErrUnknownPhase)
}

func TestSession_ZeroDelayCompletesImmediately(t *testing.T) {
	s := NewSession(demoFixture(t, "stroke"), t0, 0)
	require.NoError(t, s.Submit(context.Background(), t0, "stroke", 5, LocalGrader{}))
	assert.Equal(t, StatusCompleted, s.Status(t0))
}

func TestSession_Snapshot(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)
	s.Reveal(t0, cases.CategoryExam, "lungs")
	s.Reveal(t0, cases.CategoryHistory, "allergies")

	snap := s.Snapshot(t0.Add(125 * time.Second))
	assert.Equal(t, "stemi", snap.CaseID)
	assert.Equal(t, "2:05", snap.Elapsed)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Nil(t, snap.Outcome)
	assert.Len(t, snap.Vitals, len(cases.VitalKeys))
	require.Len(t, snap.Revealed, 2)
	assert.Equal(t, "allergies", snap.Revealed[0].Item)
	assert.Equal(t, "lungs", snap.Revealed[1].Item)
	assert.Empty(t, snap.Ordered)

	snap.Vitals["heartRate"] = "0"
	assert.Equal(t, "104 bpm", s.Snapshot(t0).Vitals["heartRate"])
}

func TestSession_Debrief(t *testing.T) {
	s := NewSession(demoFixture(t, "meningitis"), t0, DefaultGrading)

	_, err := s.Debrief(t0)
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = s.FinalDebrief()
	assert.ErrorIs(t, err, ErrNotCompleted)

	require.NoError(t, s.Submit(context.Background(), t0, "viral meningitis", 3, LocalGrader{}))

	_, err = s.Debrief(t0)
	assert.ErrorIs(t, err, ErrNotCompleted)

	fd, err := s.FinalDebrief()
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, fd.Status)
	require.NotNil(t, fd.Outcome)
	assert.True(t, fd.Outcome.Correct)
	assert.Equal(t, StatusGrading, s.Status(t0))

	d, err := s.Debrief(t0.Add(DefaultGrading))
	require.NoError(t, err)
	assert.Equal(t, t0, d.StartedAt)
	assert.NotEmpty(t, d.Differentials)
	assert.Equal(t, fd.Outcome, d.Outcome)
}

func TestSession_ThreeRevealsTwoLabsAtFourMinutes(t *testing.T) {
	s := NewSession(demoFixture(t, "stemi"), t0, DefaultGrading)
	for _, k := range []string{"allergies", "medications", "surgeries"} {
		_, err := s.Reveal(t0, cases.CategoryHistory, k)
		require.NoError(t, err)
	}
	for _, k := range []string{"troponin", "cbc"} {
		_, err := s.Order(t0, k)
		require.NoError(t, err)
	}
	require.Equal(t, 84, s.Score())

	now := t0.Add(4 * time.Minute)
	require.NoError(t, s.Submit(context.Background(), now, "Acute anterior STEMI", 5, LocalGrader{}))
	o, ok := s.Outcome(now.Add(DefaultGrading))
	require.True(t, ok)
	assert.Equal(t, 154, o.FinalScore)
}
