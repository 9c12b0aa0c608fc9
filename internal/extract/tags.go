package extract

import "strings"

// titleNoiseWords are stripped before comparing tags to the recipe title.
var titleNoiseWords = map[string]struct{}{
	"recipe": {}, "recipes": {}, "how": {}, "to": {}, "easy": {},
	"best": {}, "homemade": {}, "simple": {}, "quick": {},
}

// categoryKeywords mark broad tags worth keeping even when long:
// dietary, meal-type, cuisine and cooking-method terms.
var categoryKeywords = []string{
	"free", "friendly", "diet", "vegetarian", "vegan", "gluten", "dairy",
	"keto", "paleo", "whole30", "low-carb", "low carb", "sugar",
	"breakfast", "brunch", "lunch", "dinner", "dessert", "snack",
	"appetizer", "side", "salad", "soup", "drink", "beverage",
	"italian", "mexican", "asian", "indian", "thai", "chinese", "japanese",
	"french", "greek", "mediterranean", "american", "cuisine",
	"baked", "grilled", "roasted", "fried", "slow cooker", "instant pot",
	"air fryer", "no-bake", "one-pot", "stovetop", "holiday", "seasonal",
}

func significantWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ",.!?:;()'\"")
		if len(w) <= 3 {
			continue
		}
		if _, noise := titleNoiseWords[w]; noise {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func hasCategoryKeyword(tag string) bool {
	lower := strings.ToLower(tag)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FilterTags drops recipe-title-derived noise from a candidate tag list
// and dedupes case-insensitively. A tag is dropped when it shares two or
// more significant words with the title or when tag and title are
// substrings of each other. Short tags (two words or fewer) are otherwise
// kept; longer tags survive only when they carry a category keyword.
func FilterTags(tags []string, title string) []string {
	titleWords := significantWords(title)
	titleLower := strings.ToLower(strings.TrimSpace(title))

	var out []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, dup := seen[lower]; dup {
			continue
		}

		if titleLower != "" && (strings.Contains(titleLower, lower) || strings.Contains(lower, titleLower)) {
			continue
		}

		overlap := 0
		for w := range significantWords(trimmed) {
			if _, ok := titleWords[w]; ok {
				overlap++
			}
		}
		if overlap >= 2 {
			continue
		}

		words := len(strings.Fields(trimmed))
		if words > 2 && !hasCategoryKeyword(trimmed) {
			continue
		}

		seen[lower] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
