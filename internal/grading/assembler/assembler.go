// Package assembler splices learner fragments into the blanks of a code template.
package assembler

import (
	"errors"
	"regexp"
	"strings"
)

// FragmentSeparator separates the fragments of a response.
const FragmentSeparator = ";"

// ErrBlankMismatch is returned when the number of fragments differs from the number of blanks.
var ErrBlankMismatch = errors.New("assembler: fragment count does not match blank count")

// blankPattern matches a blank: a run of three or more underscores, ASCII or fullwidth.
var blankPattern = regexp.MustCompile(`[_＿]{3,}`)

// CountBlanks returns the number of blank markers in template.
func CountBlanks(template string) int {
	return len(blankPattern.FindAllStringIndex(template, -1))
}

// Assemble replaces the i-th blank of template with the i-th fragment of response.
// A template without blanks yields the response as the whole program.
// Fragments are inserted verbatim and never scanned for blanks themselves.
func Assemble(template, response string) (string, error) {
	if template == "" {
		return response, nil
	}
	blanks := blankPattern.FindAllStringIndex(template, -1)
	if len(blanks) == 0 {
		return response, nil
	}
	fragments := strings.Split(response, FragmentSeparator)
	if len(fragments) != len(blanks) {
		return "", ErrBlankMismatch
	}

	var b strings.Builder
	b.Grow(len(template) + len(response))
	last := 0
	for i, loc := range blanks {
		b.WriteString(template[last:loc[0]])
		b.WriteString(fragments[i])
		last = loc[1]
	}
	b.WriteString(template[last:])
	return b.String(), nil
}
