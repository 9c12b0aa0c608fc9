package extract

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// SchemaOrgExtractor parses embedded JSON-LD recipe metadata. It is the
// first and cheapest strategy in the chain.
type SchemaOrgExtractor struct {
	// StrategyName distinguishes server-fetched HTML from caller-supplied
	// JSON-LD blocks in ParseResult reporting.
	StrategyName string
}

func NewSchemaOrgExtractor() *SchemaOrgExtractor {
	return &SchemaOrgExtractor{StrategyName: model.StrategySchemaOrgJSONLD}
}

func (e *SchemaOrgExtractor) Name() string {
	if e.StrategyName != "" {
		return e.StrategyName
	}
	return model.StrategySchemaOrgJSONLD
}

// TryExtract scans all ld+json script blocks for the first candidate
// object typed as Recipe with non-empty title, ingredients and steps.
func (e *SchemaOrgExtractor) TryExtract(doc *Document) *model.ParsedRecipe {
	if doc == nil || doc.Root == nil {
		return nil
	}
	scripts := findAll(doc.Root, func(n *html.Node) bool {
		return isElement(n, "script") &&
			strings.EqualFold(attrVal(n, "type"), "application/ld+json")
	})

	for _, script := range scripts {
		var raw strings.Builder
		for c := script.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				raw.WriteString(c.Data)
			}
		}
		for _, candidate := range flattenJSONLD(raw.String()) {
			if !isRecipeType(candidate["@type"]) {
				continue
			}
			if recipe := e.buildRecipe(candidate, doc.SourceURL); recipe != nil {
				return recipe
			}
		}
	}
	return nil
}

// flattenJSONLD parses one script block and flattens top-level arrays and
// @graph arrays into a flat candidate list. Malformed JSON is skipped.
func flattenJSONLD(raw string) []map[string]interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil
	}

	var out []map[string]interface{}
	var add func(v interface{})
	add = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			out = append(out, t)
			if graph, ok := t["@graph"].([]interface{}); ok {
				for _, g := range graph {
					add(g)
				}
			}
		case []interface{}:
			for _, item := range t {
				add(item)
			}
		}
	}
	add(parsed)
	return out
}

// isRecipeType checks a declared @type (string or list) for "Recipe",
// case-insensitively.
func isRecipeType(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "recipe") || strings.EqualFold(t, "schema.org/recipe") ||
			strings.HasSuffix(strings.ToLower(t), "/recipe")
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && isRecipeType(s) {
				return true
			}
		}
	}
	return false
}

func (e *SchemaOrgExtractor) buildRecipe(data map[string]interface{}, sourceURL string) *model.ParsedRecipe {
	title := coerceString(data["name"])
	if title == "" {
		return nil
	}

	var ingredients []model.ParsedIngredient
	switch t := data["recipeIngredient"].(type) {
	case []interface{}:
		for _, item := range t {
			if ing := coerceIngredient(item); ing != nil {
				ingredients = append(ingredients, *ing)
			}
		}
	case string:
		if ing := coerceIngredient(t); ing != nil {
			ingredients = append(ingredients, *ing)
		}
	}

	var steps []string
	switch t := data["recipeInstructions"].(type) {
	case []interface{}:
		for _, item := range t {
			if s := coerceInstruction(item); s != "" {
				steps = append(steps, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			steps = append(steps, s)
		}
	}

	if len(ingredients) == 0 || len(steps) == 0 {
		return nil
	}

	recipe := &model.ParsedRecipe{
		Title:       title,
		Ingredients: ingredients,
		Steps:       steps,
		Tags:        []string{},
		Notes:       []string{},
	}

	if desc := coerceString(data["description"]); desc != "" {
		recipe.Description = strPtr(desc)
	}
	if sourceURL != "" {
		recipe.SourceURL = strPtr(sourceURL)
	}
	if img := extractImageURL(data["image"]); img != "" {
		recipe.ImageURL = strPtr(img)
	}

	var tags []string
	tags = append(tags, coerceStringList(data["keywords"])...)
	tags = append(tags, coerceStringList(data["recipeCategory"])...)
	tags = append(tags, coerceStringList(data["recipeCuisine"])...)
	recipe.Tags = FilterTags(tags, title)
	if recipe.Tags == nil {
		recipe.Tags = []string{}
	}

	if y := coerceString(data["recipeYield"]); y != "" {
		recipe.Servings = ParseServings(y)
	} else if ylist := coerceStringList(data["recipeYield"]); len(ylist) > 0 {
		recipe.Servings = ParseServings(ylist[0])
	}

	if tt := coerceString(data["totalTime"]); tt != "" {
		recipe.EstimatedTimeMinutes = ParseDurationMinutes(tt)
	}

	return recipe
}

// extractImageURL handles the three image shapes seen in the wild: a bare
// URL string, an ImageObject, or a list of either.
func extractImageURL(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		return coerceString(t["url"])
	case []interface{}:
		if len(t) > 0 {
			return extractImageURL(t[0])
		}
	}
	return ""
}
