package pipeline

import (
	"strings"
	"unicode"
)

// groundingCheck scans an agent response for name-shaped token runs and
// counts how many appear verbatim in the reference directory. Presence in
// the directory counts as correct; this is a weak correctness signal, not
// a semantic check. Returns (0, 0) when the directory is empty.
func groundingCheck(response string, refNames []string) (checked, verified int) {
	if len(refNames) == 0 {
		return 0, 0
	}
	known := make(map[string]bool, len(refNames))
	for _, n := range refNames {
		known[strings.ToLower(strings.TrimSpace(n))] = true
	}

	seen := make(map[string]bool)
	for _, candidate := range nameCandidates(response) {
		key := strings.ToLower(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true
		checked++
		if known[key] {
			verified++
		}
	}
	return checked, verified
}

// nameCandidates returns runs of two or more consecutive capitalized words,
// the shape client and caregiver names take in replies.
func nameCandidates(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	var out []string
	run := []string{}
	flush := func() {
		if len(run) >= 2 {
			out = append(out, strings.Join(run, " "))
		}
		run = run[:0]
	}
	for _, w := range words {
		r := []rune(w)
		if unicode.IsUpper(r[0]) && len(r) > 1 {
			run = append(run, w)
			continue
		}
		flush()
	}
	flush()
	return out
}
