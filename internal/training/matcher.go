package training

import "strings"

// Rule is one way a free-text guess can count as the correct diagnosis.
// Both strings reach Match lowercased and trimmed.
type Rule struct {
	Name  string
	Match func(answer, guess string) bool
}

// Rules are OR-ed. They are lenient on purpose: a guess of "viral
// meningitis" passes a bacterial meningitis case through the meningitis
// pair, and any guess that contains the answer's first word passes.
var Rules = []Rule{
	{Name: "contained-in-answer", Match: func(answer, guess string) bool {
		return strings.Contains(answer, guess)
	}},
	{Name: "first-token", Match: func(answer, guess string) bool {
		fields := strings.Fields(answer)
		return len(fields) > 0 && strings.Contains(guess, fields[0])
	}},
	synonym("stemi", "mi"),
	synonym("stroke", "stroke"),
	synonym("embolism", "pe"),
	synonym("meningitis", "meningitis"),
	synonym("cancer", "cancer"),
	synonym("cholangitis", "cholangitis"),
}

func synonym(inAnswer, inGuess string) Rule {
	return Rule{
		Name: "synonym:" + inAnswer + "/" + inGuess,
		Match: func(answer, guess string) bool {
			return strings.Contains(answer, inAnswer) && strings.Contains(guess, inGuess)
		},
	}
}

// MatchDiagnosis reports whether guess names answer, and the first rule
// that said so.
func MatchDiagnosis(answer, guess string) (bool, string) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	guess = strings.ToLower(strings.TrimSpace(guess))
	if guess == "" || answer == "" {
		return false, ""
	}
	for _, r := range Rules {
		if r.Match(answer, guess) {
			return true, r.Name
		}
	}
	return false, ""
}
