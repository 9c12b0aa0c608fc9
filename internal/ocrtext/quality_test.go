package ocrtext

import (
	"strings"
	"testing"
)

// goodRecipeText is realistic OCR output: long enough, sectioned, with
// quantity lines and numbered steps.
var goodRecipeText = strings.Join([]string{
	"Classic Buttermilk Pancakes",
	"Serves 4",
	"",
	"Ingredients",
	"2 cups all purpose flour",
	"2 tablespoons sugar",
	"2 teaspoons baking powder",
	"1 teaspoon baking soda",
	"1/2 teaspoon salt",
	"2 cups buttermilk",
	"2 large eggs",
	"4 tablespoons melted butter",
	"",
	"Directions",
	"1. Whisk the dry ingredients together in a large bowl.",
	"2. Beat the buttermilk, eggs and melted butter in a second bowl.",
	"3. Fold the wet mixture into the dry until just combined.",
	"4. Ladle onto a hot griddle and cook until bubbles form.",
	"5. Flip once and cook until golden brown on both sides.",
	"Keep the finished pancakes warm in a low oven while the rest cook.",
	"Leftover batter holds overnight in the refrigerator without trouble.",
}, "\n")

func floatPtr(f float64) *float64 { return &f }

func TestScorePassesRealisticRecipe(t *testing.T) {
	q := Score(goodRecipeText, floatPtr(88))
	if !q.Pass {
		t.Fatalf("expected pass, got %+v", q)
	}
	if q.Gibberish {
		t.Error("realistic text flagged as gibberish")
	}
	if q.Score < 2 {
		t.Errorf("score = %d, want >= 2", q.Score)
	}
}

func TestScoreHardFloors(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		q := Score("Ingredients\n2 cups flour\n1. Mix well.", floatPtr(95))
		if q.Pass {
			t.Error("short text must fail the gate")
		}
	})

	t.Run("too few lines", func(t *testing.T) {
		// Plenty of characters on a single line.
		text := strings.Repeat("two cups flour and one cup sugar mixed together well ", 20)
		q := Score(text, floatPtr(95))
		if q.Pass {
			t.Error("single-line text must fail the gate")
		}
		if q.LineCount != 1 {
			t.Errorf("line count = %d, want 1", q.LineCount)
		}
	})
}

func TestScoreGibberishVeto(t *testing.T) {
	// Consonant noise: long and multi-line but vowel-starved.
	line := "xzv qwrtk pzm dfgh bcnp rrtk zzwq kkfp mmzx ddrt"
	noise := strings.Repeat(line+"\n", 15)
	q := Score(noise, floatPtr(90))
	if q.Pass {
		t.Error("consonant noise must fail the gate")
	}
	if !q.Gibberish {
		t.Errorf("expected gibberish verdict, got %+v", q)
	}
}

func TestScoreSoftScoreComponents(t *testing.T) {
	q := Score(goodRecipeText, floatPtr(88))
	if q.Score != 4 {
		t.Errorf("score = %d, want 4 (confidence, keywords, quantity line, numbered steps)", q.Score)
	}

	noConf := Score(goodRecipeText, nil)
	if noConf.Score != 3 {
		t.Errorf("score without confidence = %d, want 3", noConf.Score)
	}
	if !noConf.Pass {
		t.Error("missing confidence alone must not fail the gate")
	}

	lowConf := Score(goodRecipeText, floatPtr(20))
	if lowConf.Score != 3 {
		t.Errorf("score with low confidence = %d, want 3", lowConf.Score)
	}
}

func TestScoreDiagnostics(t *testing.T) {
	q := Score(goodRecipeText, floatPtr(88))
	if q.CharCount < 500 {
		t.Errorf("char count = %d", q.CharCount)
	}
	if q.LineCount < 10 {
		t.Errorf("line count = %d", q.LineCount)
	}
	if q.Confidence == nil || *q.Confidence != 88 {
		t.Errorf("confidence = %v", q.Confidence)
	}
	if q.AlphaRatio < 0.65 {
		t.Errorf("alpha ratio = %f", q.AlphaRatio)
	}
}
