// Package ocrtext scores OCR output to decide whether downstream text
// structuring is worth attempting.
package ocrtext

import (
	"regexp"
	"strings"
	"unicode"
)

// Hard floors: below these the text cannot possibly hold a usable recipe.
const (
	minCharCount = 500
	minLineCount = 10
)

// Gibberish thresholds. OCR noise is bimodal: either clearly garbage or
// borderline usable, so a separate veto exists alongside the soft score.
const (
	minAlphaRatio     = 0.65
	minVowelRatio     = 0.30
	minVowelfulTokens = 20
	minTokens         = 50
)

const passScore = 2

var sectionKeywords = []string{"ingredients", "directions", "instructions", "method", "serves", "yield"}

var (
	quantityLineRe = regexp.MustCompile(`(?im)^\s*[\d¼½¾⅓⅔⅛]+[\s\d/.]*\s*(cups?|tablespoons?|tbsp|teaspoons?|tsp|ounces?|oz|pounds?|lbs?|grams?|g|ml|cloves?|cans?|pinch)\b`)
	numberedStepRe = regexp.MustCompile(`(?m)^\s*(\d+[\.\)]|step\s+\d+)`)
)

// Quality is the gate verdict plus diagnostics recorded in pipeline JSON.
type Quality struct {
	Pass           bool     `json:"pass_gate"`
	CharCount      int      `json:"char_count"`
	LineCount      int      `json:"line_count"`
	Gibberish      bool     `json:"gibberish"`
	AlphaRatio     float64  `json:"alpha_ratio"`
	VowelRatio     float64  `json:"vowel_ratio"`
	VowelfulTokens int      `json:"vowelful_tokens"`
	TokenCount     int      `json:"token_count"`
	Score          int      `json:"score"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// Score gates OCR text in two tiers: hard floors and a gibberish veto,
// then a 0-4 soft score needing at least 2 points. meanConfidence is on a
// 0-100 scale and may be nil when the provider reported none.
func Score(text string, meanConfidence *float64) Quality {
	q := Quality{Confidence: meanConfidence}

	q.CharCount = len(strings.TrimSpace(text))
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			q.LineCount++
		}
	}

	hardFail := q.CharCount < minCharCount || q.LineCount < minLineCount

	alpha, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if total > 0 {
		q.AlphaRatio = float64(alpha) / float64(total)
	}

	tokens := strings.Fields(text)
	q.TokenCount = len(tokens)
	vowelChars, letterChars := 0, 0
	for _, tok := range tokens {
		hasVowel := false
		for _, r := range strings.ToLower(tok) {
			if !unicode.IsLetter(r) {
				continue
			}
			letterChars++
			if strings.ContainsRune("aeiouy", r) {
				vowelChars++
				hasVowel = true
			}
		}
		if hasVowel {
			q.VowelfulTokens++
		}
	}
	if letterChars > 0 {
		q.VowelRatio = float64(vowelChars) / float64(letterChars)
	}

	q.Gibberish = q.AlphaRatio < minAlphaRatio ||
		q.VowelRatio < minVowelRatio ||
		q.VowelfulTokens < minVowelfulTokens ||
		q.TokenCount < minTokens

	lower := strings.ToLower(text)
	keywordHits := 0
	for _, kw := range sectionKeywords {
		if strings.Contains(lower, kw) {
			keywordHits++
		}
	}

	if meanConfidence != nil && *meanConfidence >= 50 {
		q.Score++
	}
	if keywordHits >= 2 {
		q.Score++
	}
	if quantityLineRe.MatchString(text) {
		q.Score++
	}
	if numberedStepRe.MatchString(strings.ToLower(text)) {
		q.Score++
	}

	q.Pass = !hardFail && !q.Gibberish && q.Score >= passScore
	return q
}
