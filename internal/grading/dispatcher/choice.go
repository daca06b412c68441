package dispatcher

import (
	"slices"
	"strconv"
	"strings"

	"quizsys/internal/grading/model"
)

// gradeChoice compares the submitted choice ids with the correct ones as sets.
// Order and repetition in the response do not matter; ids are compared as written.
func gradeChoice(choices []model.Choice, response string) float64 {
	correct := make([]string, 0, len(choices))
	for _, c := range choices {
		if c.IsCorrect {
			correct = append(correct, strconv.FormatInt(c.ID, 10))
		}
	}
	submitted := strings.Split(response, ";")
	if canonical(correct) == canonical(submitted) {
		return 1.0
	}
	return 0.0
}

func canonical(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), ";")
}

// gradeFillBlank accepts an exact, case and whitespace sensitive match of any answer.
func gradeFillBlank(answers []model.Answer, response string) float64 {
	for _, a := range answers {
		if a.Content == response {
			return 1.0
		}
	}
	return 0.0
}
