package extract

import (
	"testing"
)

const jsonLDPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Recipe",
  "name": "Weeknight Chili",
  "description": "A fast stovetop chili.",
  "image": {"@type": "ImageObject", "url": "https://example.com/chili.jpg"},
  "recipeYield": "4 servings",
  "totalTime": "PT30M",
  "keywords": "chili, dinner",
  "recipeCuisine": "Tex-Mex",
  "recipeIngredient": ["1 pound ground beef", "2 cans kidney beans", "1 tablespoon chili powder"],
  "recipeInstructions": [
    {"@type": "HowToStep", "text": "Brown the beef."},
    {"@type": "HowToStep", "text": "Add beans and simmer."}
  ]
}
</script>
</head><body><h1>Weeknight Chili</h1></body></html>`

const jsonLDGraphPage = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {"@type": "WebPage", "name": "Some Page"},
    {
      "@type": ["Recipe", "Thing"],
      "name": "Graph Soup",
      "recipeIngredient": ["3 cups broth"],
      "recipeInstructions": "Heat the broth."
    }
  ]
}
</script>
</head><body></body></html>`

func mustParseDoc(t *testing.T, raw, sourceURL string) *Document {
	t.Helper()
	doc, err := ParseDocument(raw, sourceURL)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	return doc
}

func TestSchemaOrgExtract(t *testing.T) {
	doc := mustParseDoc(t, jsonLDPage, "https://example.com/chili")
	recipe := NewSchemaOrgExtractor().TryExtract(doc)
	if recipe == nil {
		t.Fatal("expected a recipe, got nil")
	}

	if recipe.Title != "Weeknight Chili" {
		t.Errorf("title = %q", recipe.Title)
	}
	if recipe.Description == nil || *recipe.Description != "A fast stovetop chili." {
		t.Errorf("description = %v", recipe.Description)
	}
	if recipe.SourceURL == nil || *recipe.SourceURL != "https://example.com/chili" {
		t.Errorf("source url = %v", recipe.SourceURL)
	}
	if recipe.ImageURL == nil || *recipe.ImageURL != "https://example.com/chili.jpg" {
		t.Errorf("image url = %v", recipe.ImageURL)
	}
	if recipe.Servings == nil || *recipe.Servings != 4 {
		t.Errorf("servings = %v", recipe.Servings)
	}
	if recipe.EstimatedTimeMinutes == nil || *recipe.EstimatedTimeMinutes != 30 {
		t.Errorf("estimated time = %v", recipe.EstimatedTimeMinutes)
	}
	if len(recipe.Ingredients) != 3 {
		t.Fatalf("ingredients = %d, want 3", len(recipe.Ingredients))
	}
	if recipe.Ingredients[0].Text != "ground beef" {
		t.Errorf("first ingredient name = %q", recipe.Ingredients[0].Text)
	}
	if recipe.Ingredients[0].QuantityDisplay == nil || *recipe.Ingredients[0].QuantityDisplay != "1" {
		t.Errorf("first ingredient quantity = %v", recipe.Ingredients[0].QuantityDisplay)
	}
	if len(recipe.Steps) != 2 || recipe.Steps[0] != "Brown the beef." {
		t.Errorf("steps = %v", recipe.Steps)
	}
	if len(recipe.Tags) == 0 {
		t.Error("expected keywords and cuisine to produce tags")
	}
}

func TestSchemaOrgExtractGraph(t *testing.T) {
	doc := mustParseDoc(t, jsonLDGraphPage, "")
	recipe := NewSchemaOrgExtractor().TryExtract(doc)
	if recipe == nil {
		t.Fatal("expected a recipe from @graph, got nil")
	}
	if recipe.Title != "Graph Soup" {
		t.Errorf("title = %q", recipe.Title)
	}
	if len(recipe.Steps) != 1 || recipe.Steps[0] != "Heat the broth." {
		t.Errorf("steps = %v", recipe.Steps)
	}
}

func TestSchemaOrgExtractRejectsIncomplete(t *testing.T) {
	pages := map[string]string{
		"no recipe type": `<html><head><script type="application/ld+json">{"@type":"Article","name":"x"}</script></head></html>`,
		"no steps":       `<html><head><script type="application/ld+json">{"@type":"Recipe","name":"x","recipeIngredient":["1 cup flour"]}</script></head></html>`,
		"no title":       `<html><head><script type="application/ld+json">{"@type":"Recipe","recipeIngredient":["1 cup flour"],"recipeInstructions":"Mix."}</script></head></html>`,
		"malformed json": `<html><head><script type="application/ld+json">{not json</script></head></html>`,
		"no script":      `<html><body><h1>Plain page</h1></body></html>`,
	}
	ex := NewSchemaOrgExtractor()
	for name, page := range pages {
		t.Run(name, func(t *testing.T) {
			doc := mustParseDoc(t, page, "")
			if recipe := ex.TryExtract(doc); recipe != nil {
				t.Errorf("expected nil, got recipe %q", recipe.Title)
			}
		})
	}
}

func TestIsRecipeType(t *testing.T) {
	if !isRecipeType("Recipe") || !isRecipeType("recipe") {
		t.Error("string type should match case-insensitively")
	}
	if !isRecipeType([]interface{}{"WebPage", "Recipe"}) {
		t.Error("type lists containing Recipe should match")
	}
	if isRecipeType("Article") || isRecipeType(nil) || isRecipeType(42) {
		t.Error("non-recipe types should not match")
	}
}
