package util

import (
	"regexp"
	"strings"
)

var (
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// Unit abbreviations and short connectives dropped from normalized text.
// Calibrated against real supplier documents; keep in sync with the unit
// column keywords in pipeline.
var stopwords = map[string]struct{}{
	"шт": {}, "штук": {}, "м": {}, "мм": {}, "см": {}, "км": {},
	"кг": {}, "г": {}, "т": {}, "л": {}, "мл": {},
	"уп": {}, "упак": {}, "компл": {}, "комплект": {}, "пар": {},
	"п": {}, "пог": {}, "кв": {}, "куб": {},
	"и": {}, "в": {}, "на": {}, "с": {}, "со": {}, "для": {},
	"из": {}, "по": {}, "от": {}, "до": {}, "не": {}, "или": {},
	"к": {}, "у": {}, "о": {},
}

// Normalize canonicalizes text for pattern comparison and rule storage:
// case-fold, strip punctuation, collapse whitespace, drop stopword tokens.
// Idempotent.
func Normalize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = reNonWord.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	parts := strings.Split(s, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if _, drop := stopwords[p]; drop {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, " ")
}

// NormalizeCode canonicalizes article/equipment codes for equality checks:
// uppercase, spaces removed, alphanumerics and -_/. kept, Cyrillic х and ×
// folded to X so cable dimensions compare equal.
func NormalizeCode(input string) string {
	s := strings.ToUpper(input)
	repl := strings.NewReplacer("×", "X", "Х", "X", "х", "X", "*", "X")
	s = repl.Replace(s)
	s = strings.ReplaceAll(s, " ", "")
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'А' && r <= 'Я') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// DiceCoefficient is a bigram similarity in [0,1] over already-normalized
// strings.
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}
