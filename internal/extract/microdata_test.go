package extract

import "testing"

const microdataPage = `<html><body>
<div itemscope itemtype="https://schema.org/Recipe">
  <h1 itemprop="name">Sheet Pan Nachos</h1>
  <p>Yield: 6</p>
  <ul>
    <li itemprop="recipeIngredient">1 bag tortilla chips</li>
    <li itemprop="recipeIngredient">2 cups shredded cheese</li>
    <li itemprop="recipeIngredient">1 can black beans</li>
  </ul>
  <div itemprop="recipeInstructions">
    <ol>
      <li>Spread chips on a sheet pan.</li>
      <li>Top with cheese and beans, then broil.</li>
    </ol>
  </div>
</div>
</body></html>`

func TestMicrodataExtract(t *testing.T) {
	doc := mustParseDoc(t, microdataPage, "https://example.com/nachos")
	recipe := NewMicrodataExtractor().TryExtract(doc)
	if recipe == nil {
		t.Fatal("expected a recipe, got nil")
	}
	if recipe.Title != "Sheet Pan Nachos" {
		t.Errorf("title = %q", recipe.Title)
	}
	if len(recipe.Ingredients) != 3 {
		t.Fatalf("ingredients = %d, want 3", len(recipe.Ingredients))
	}
	if recipe.Ingredients[1].Text != "shredded cheese" {
		t.Errorf("second ingredient = %q", recipe.Ingredients[1].Text)
	}
	if len(recipe.Steps) != 2 {
		t.Errorf("steps = %v", recipe.Steps)
	}
	if recipe.Servings == nil || *recipe.Servings != 6 {
		t.Errorf("servings = %v", recipe.Servings)
	}
}

func TestMicrodataExtractNoScope(t *testing.T) {
	doc := mustParseDoc(t, `<html><body><h1>No microdata</h1></body></html>`, "")
	if recipe := NewMicrodataExtractor().TryExtract(doc); recipe != nil {
		t.Errorf("expected nil, got %q", recipe.Title)
	}
}
