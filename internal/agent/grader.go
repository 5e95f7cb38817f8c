package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"diagnostic-trainer/internal/cases"
	"diagnostic-trainer/internal/training"
)

var ErrMalformedVerdict = errors.New("malformed grading reply")

const graderPrompt = `You are an attending physician grading a medical student's working diagnosis.
You receive a patient case and the student's diagnosis.
Decide whether the student's diagnosis is clinically acceptable for this case.
Accept synonyms, abbreviations and reasonable specificity differences.
Reply with a JSON object only:
{"correct": true|false, "actual_diagnosis": "<most likely diagnosis>", "feedback": "<two or three sentences for the student>"}`

// Grader asks a chat model to judge diagnoses for cases that have no
// reliable answer on file.
type Grader struct {
	chat ChatClient
}

func NewGrader(chat ChatClient) *Grader {
	return &Grader{chat: chat}
}

type verdictReply struct {
	Correct         *bool  `json:"correct"`
	ActualDiagnosis string `json:"actual_diagnosis"`
	Feedback        string `json:"feedback"`
}

func (g *Grader) Grade(ctx context.Context, f *cases.Fixture, diagnosis string) (training.Verdict, error) {
	reply, err := g.chat.Chat(ctx, []Message{
		{Role: "system", Content: graderPrompt},
		{Role: "user", Content: describeCase(f, diagnosis)},
	})
	if err != nil {
		return training.Verdict{}, err
	}

	v, err := parseVerdict(reply)
	if err != nil {
		return training.Verdict{}, err
	}

	actual := strings.TrimSpace(v.ActualDiagnosis)
	if actual == "" {
		actual = f.CorrectDiagnosis
	}
	feedback := strings.TrimSpace(v.Feedback)
	if feedback == "" {
		feedback = training.Feedback(*v.Correct, actual, f.Differentials)
	}
	return training.Verdict{
		Correct:         *v.Correct,
		ActualDiagnosis: actual,
		Feedback:        feedback,
		GradedBy:        "remote",
	}, nil
}

// parseVerdict accepts the reply with or without a markdown code fence.
func parseVerdict(reply string) (verdictReply, error) {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	var v verdictReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if v.Correct == nil {
		return v, fmt.Errorf("%w: missing \"correct\"", ErrMalformedVerdict)
	}
	return v, nil
}

func describeCase(f *cases.Fixture, diagnosis string) string {
	var b strings.Builder
	p := f.Patient
	fmt.Fprintf(&b, "Patient: %s, %d, %s\n", p.Name, p.Age, p.Gender)
	fmt.Fprintf(&b, "Chief complaint: %s\n", p.ChiefComplaint)

	section := func(title string, c cases.Category) {
		keys, _ := cases.KeysFor(c)
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, k := range keys {
			v, _ := f.Lookup(c, k)
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	section("History", cases.CategoryHistory)
	section("Vitals", cases.CategoryVitals)
	section("Physical exam", cases.CategoryExam)

	if f.CorrectDiagnosis != "" && f.CorrectDiagnosis != cases.PlaceholderDiagnosis {
		fmt.Fprintf(&b, "\nRecorded working diagnosis: %s\n", f.CorrectDiagnosis)
	}
	if len(f.Differentials) > 0 {
		fmt.Fprintf(&b, "Recorded differentials: %s\n", strings.Join(f.Differentials, ", "))
	}
	fmt.Fprintf(&b, "\nStudent diagnosis: %s\n", diagnosis)
	return b.String()
}
