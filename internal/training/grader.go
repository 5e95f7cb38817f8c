package training

import (
	"context"
	"fmt"
	"strings"

	"diagnostic-trainer/internal/cases"
)

// Verdict is a grader's judgement of one guess.
type Verdict struct {
	Correct         bool
	ActualDiagnosis string
	Feedback        string
	MatchedRule     string
	GradedBy        string
}

// DiagnosisGrader decides whether a guess is right for a case.
type DiagnosisGrader interface {
	Grade(ctx context.Context, f *cases.Fixture, diagnosis string) (Verdict, error)
}

// LocalGrader grades against the fixture's own answer with the rule list.
type LocalGrader struct{}

func (LocalGrader) Grade(_ context.Context, f *cases.Fixture, diagnosis string) (Verdict, error) {
	correct, rule := MatchDiagnosis(f.CorrectDiagnosis, diagnosis)
	return Verdict{
		Correct:         correct,
		ActualDiagnosis: f.CorrectDiagnosis,
		Feedback:        Feedback(correct, f.CorrectDiagnosis, f.Differentials),
		MatchedRule:     rule,
		GradedBy:        "local",
	}, nil
}

// Feedback is the learner-facing message for a graded guess.
func Feedback(correct bool, actual string, differentials []string) string {
	if correct {
		return fmt.Sprintf("Correct! The diagnosis is %s.", actual)
	}
	msg := fmt.Sprintf("Not quite. The correct diagnosis is %s.", actual)
	if len(differentials) > 0 {
		msg += " Differentials to consider: " + strings.Join(differentials, ", ") + "."
	}
	return msg
}

// RoutingGrader sends patient cases to the remote grader and everything
// else to the local one. With no remote grader every case is local.
type RoutingGrader struct {
	Local  DiagnosisGrader
	Remote DiagnosisGrader
}

func (g RoutingGrader) Grade(ctx context.Context, f *cases.Fixture, diagnosis string) (Verdict, error) {
	if f.Source == cases.SourcePatient && g.Remote != nil {
		return g.Remote.Grade(ctx, f, diagnosis)
	}
	local := g.Local
	if local == nil {
		local = LocalGrader{}
	}
	return local.Grade(ctx, f, diagnosis)
}
