package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// fractionMap maps single-character Unicode fractions to ASCII n/d form.
var fractionMap = map[rune]string{
	'¼': "1/4", '½': "1/2", '¾': "3/4",
	'⅐': "1/7", '⅑': "1/9", '⅒': "1/10",
	'⅓': "1/3", '⅔': "2/3",
	'⅕': "1/5", '⅖': "2/5", '⅗': "3/5", '⅘': "4/5",
	'⅙': "1/6", '⅚': "5/6",
	'⅛': "1/8", '⅜': "3/8", '⅝': "5/8", '⅞': "7/8",
}

// commonUnits is the canonical cooking-unit vocabulary. Tokens are matched
// after lowercasing, stripping a trailing period and a trailing "s".
var commonUnits = map[string]struct{}{
	"cup": {}, "tablespoon": {}, "tbsp": {}, "teaspoon": {}, "tsp": {},
	"ounce": {}, "oz": {}, "pound": {}, "lb": {}, "gram": {}, "g": {},
	"kilogram": {}, "kg": {}, "milliliter": {}, "ml": {}, "liter": {}, "l": {},
	"pinch": {}, "dash": {}, "clove": {}, "can": {}, "jar": {},
	"package": {}, "pkg": {}, "stick": {}, "slice": {}, "piece": {},
	"bunch": {}, "head": {}, "stalk": {}, "sprig": {},
	"pint": {}, "quart": {}, "gallon": {}, "inch": {},
	"cube": {}, "bag": {}, "box": {}, "container": {}, "envelope": {},
	"handful": {},
}

const fractionChars = "¼½¾⅐⅑⅒⅓⅔⅕⅖⅗⅘⅙⅚⅛⅜⅝⅞"

var (
	// quantity, unit-ish token, remainder
	qtyUnitRestRe = regexp.MustCompile(`^\s*([\d\s/\.\-+` + fractionChars + `]+)\s+([A-Za-z][A-Za-z\.]*)\s+(.*)$`)
	// quantity, remainder
	qtyRestRe     = regexp.MustCompile(`^\s*([\d\s/\.\-+` + fractionChars + `]+)\s+(.*)$`)
	parentheticRe = regexp.MustCompile(`\([^)]*\)`)
	intRe         = regexp.MustCompile(`^\d+$`)
	floatRe       = regexp.MustCompile(`^\d+\.\d+$`)
	digitGlyphRe  = regexp.MustCompile(`[\d` + fractionChars + `]`)
)

// NormalizeFractionDisplay converts Unicode fraction glyphs to ASCII "n/d"
// form, separates a leading integer from an attached glyph ("1½" becomes
// "1 1/2"), collapses whitespace, and canonicalizes bare numbers ("02"
// becomes "2", "2.0" becomes "2"). Empty input yields nil.
func NormalizeFractionDisplay(text string) *string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var sb strings.Builder
	prevDigit := false
	for _, r := range trimmed {
		if frac, ok := fractionMap[r]; ok {
			if prevDigit {
				sb.WriteString(" ")
			}
			sb.WriteString(frac)
			prevDigit = false
			continue
		}
		sb.WriteRune(r)
		prevDigit = r >= '0' && r <= '9'
	}

	out := strings.Join(strings.Fields(sb.String()), " ")
	if intRe.MatchString(out) {
		n, err := strconv.Atoi(out)
		if err == nil {
			return strPtr(strconv.Itoa(n))
		}
	}
	if floatRe.MatchString(out) {
		f, err := strconv.ParseFloat(out, 64)
		if err == nil {
			if f == float64(int64(f)) {
				return strPtr(strconv.FormatInt(int64(f), 10))
			}
			return strPtr(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	if out == "" {
		return nil
	}
	return strPtr(out)
}

// normalizeUnitToken folds a token for vocabulary matching.
func normalizeUnitToken(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.TrimSuffix(t, ".")
	if len(t) > 1 {
		t = strings.TrimSuffix(t, "s")
	}
	return t
}

// IsKnownUnit reports whether token is in the cooking-unit vocabulary.
func IsKnownUnit(token string) bool {
	_, ok := commonUnits[normalizeUnitToken(token)]
	return ok
}

// SplitIngredientLine splits a raw ingredient phrase into name, display
// quantity and unit. Never fails; worst case the whole phrase comes back
// as the name with nil quantity and unit.
func SplitIngredientLine(line string) model.ParsedIngredient {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return model.ParsedIngredient{Text: ""}
	}

	if m := qtyUnitRestRe.FindStringSubmatch(raw); m != nil {
		qty, unit, rest := m[1], m[2], m[3]
		if IsKnownUnit(unit) && strings.TrimSpace(rest) != "" {
			return model.ParsedIngredient{
				Text:            cleanName(rest),
				QuantityDisplay: NormalizeFractionDisplay(qty),
				Unit:            strPtr(strings.TrimSpace(unit)),
			}
		}
	}

	if m := qtyRestRe.FindStringSubmatch(raw); m != nil {
		qty, rest := m[1], m[2]
		if strings.TrimSpace(rest) != "" {
			return model.ParsedIngredient{
				Text:            cleanName(rest),
				QuantityDisplay: NormalizeFractionDisplay(qty),
			}
		}
	}

	// "pinch salt" style: bare unit word leading the phrase.
	fields := strings.Fields(raw)
	if len(fields) >= 2 && IsKnownUnit(fields[0]) {
		return model.ParsedIngredient{
			Text: cleanName(strings.Join(fields[1:], " ")),
			Unit: strPtr(fields[0]),
		}
	}

	return model.ParsedIngredient{Text: cleanName(raw)}
}

// cleanName strips parenthetical asides and collapses whitespace.
func cleanName(name string) string {
	out := parentheticRe.ReplaceAllString(name, "")
	out = strings.Join(strings.Fields(out), " ")
	return strings.Trim(out, " ,")
}

// CleanParsedIngredients runs a second normalization pass over extracted
// ingredients: re-derives quantity and unit still embedded in the name,
// and strips a unit word that leaked into the quantity field.
func CleanParsedIngredients(items []model.ParsedIngredient) []model.ParsedIngredient {
	out := make([]model.ParsedIngredient, 0, len(items))
	for _, ing := range items {
		cleaned := ing

		// Extractor left the amount inside the name field.
		if cleaned.QuantityDisplay == nil && cleaned.Unit == nil && digitGlyphRe.MatchString(cleaned.Text) {
			reparsed := SplitIngredientLine(cleaned.Text)
			if reparsed.QuantityDisplay != nil || reparsed.Unit != nil {
				cleaned = reparsed
			}
		}

		// Unit word trailing inside the quantity field ("2 cups").
		if cleaned.QuantityDisplay != nil && cleaned.Unit == nil {
			fields := strings.Fields(*cleaned.QuantityDisplay)
			if len(fields) >= 2 && IsKnownUnit(fields[len(fields)-1]) {
				cleaned.Unit = strPtr(fields[len(fields)-1])
				cleaned.QuantityDisplay = NormalizeFractionDisplay(strings.Join(fields[:len(fields)-1], " "))
			}
		}

		if cleaned.QuantityDisplay != nil {
			cleaned.QuantityDisplay = NormalizeFractionDisplay(*cleaned.QuantityDisplay)
		}
		cleaned.Text = cleanName(cleaned.Text)
		if cleaned.Text == "" && ing.Text != "" {
			cleaned.Text = strings.TrimSpace(ing.Text)
		}
		out = append(out, cleaned)
	}
	return out
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
