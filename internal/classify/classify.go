// Package classify derives an alert priority from free-text descriptions
// at ingestion time. Classification is deterministic and happens exactly
// once per ingested alert; the result is never recomputed later.
//
// Two keyword tiers are scanned over the lower-cased, accent-folded
// description: the critical tier first (epidemic, death, poisoning,
// hospitalization), then the high tier (danger, toxicity, infestation,
// contamination). The first matching tier wins, so a critical keyword can
// never be downgraded by a high-tier keyword also being present. No match
// defaults to medium priority.
package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Priority is the severity assigned to a domain alert at ingestion.
type Priority string

// Priority values, ordered from least to most severe.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Keyword tiers are stored accent-folded so that both "épidémie" and
// "epidemie" match. Terms come from the hygiene vocabulary of the citizen
// reporting deployments (French).
var (
	criticalKeywords = []string{
		"epidemie", "epidemique", "mortel", "deces", "mort",
		"hospitalisation", "empoisonnement", "intoxication",
	}
	highKeywords = []string{
		"urgent", "dangereux", "danger", "toxique", "maladie", "infection",
		"contamination", "insalubre", "insalubrite", "rats", "rongeurs",
		"nuisible",
	}
)

// Classify returns the priority implied by description. The critical tier
// is checked before the high tier; an empty or unmatched description
// yields PriorityMedium.
func Classify(description string) Priority {
	text := Fold(strings.ToLower(description))

	for _, kw := range criticalKeywords {
		if strings.Contains(text, kw) {
			return PriorityCritical
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return PriorityHigh
		}
	}
	return PriorityMedium
}

// foldTransformer strips combining marks after NFD decomposition, turning
// "é" into "e" and so on.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold removes diacritics from s. On a transform failure the input is
// returned unchanged; matching then simply degrades to exact matching.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}
