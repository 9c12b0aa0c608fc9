package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const structuredDraftJSON = `{
	"title": "Grandma's Banana Bread",
	"description": "Handwritten card, circa 1980.",
	"ingredients": [
		{"name": "ripe bananas", "quantity": "3", "unit": null},
		{"name": "flour", "quantity": "2", "unit": "cups"},
		"1/2 cup melted butter"
	],
	"steps": ["Mash the bananas.", "Mix in remaining ingredients.", "Bake at 350 for an hour."],
	"tags": ["dessert"],
	"total_time_minutes": 75
}`

func TestStructureText(t *testing.T) {
	chat := &fakeChat{responses: []string{structuredDraftJSON}}
	draft, err := StructureText(context.Background(), chat, "test-model", "mashed up ocr text")
	if err != nil {
		t.Fatalf("StructureText: %v", err)
	}
	if draft.Title != "Grandma's Banana Bread" {
		t.Errorf("title = %q", draft.Title)
	}
	if len(draft.Ingredients) != 3 {
		t.Fatalf("ingredients = %d, want 3", len(draft.Ingredients))
	}
	// The bare-string ingredient goes through the line splitter.
	third := draft.Ingredients[2]
	if third.Name != "melted butter" {
		t.Errorf("third ingredient name = %q", third.Name)
	}
	if third.Quantity == nil || *third.Quantity != "1/2" {
		t.Errorf("third ingredient quantity = %v", third.Quantity)
	}
	if len(draft.Steps) != 3 {
		t.Errorf("steps = %v", draft.Steps)
	}
	if draft.TotalTimeMinutes == nil || *draft.TotalTimeMinutes != 75 {
		t.Errorf("total time = %v", draft.TotalTimeMinutes)
	}
}

func TestStructureTextErrorCodes(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		chat := &fakeChat{errs: []error{context.DeadlineExceeded}}
		_, err := StructureText(context.Background(), chat, "test-model", "text")
		if err == nil || !strings.HasPrefix(err.Error(), "llm_timeout:") {
			t.Errorf("err = %v, want llm_timeout prefix", err)
		}
	})

	t.Run("call failure", func(t *testing.T) {
		chat := &fakeChat{errs: []error{errors.New("boom")}}
		_, err := StructureText(context.Background(), chat, "test-model", "text")
		if err == nil || !strings.HasPrefix(err.Error(), "llm_failed:") {
			t.Errorf("err = %v, want llm_failed prefix", err)
		}
	})

	t.Run("declined", func(t *testing.T) {
		chat := &fakeChat{responses: []string{`{"error": "invalid"}`}}
		_, err := StructureText(context.Background(), chat, "test-model", "text")
		if err == nil || !strings.HasPrefix(err.Error(), "llm_failed:") {
			t.Errorf("err = %v, want llm_failed prefix", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		chat := &fakeChat{responses: []string{`{"title": "Just a Title"}`}}
		_, err := StructureText(context.Background(), chat, "test-model", "text")
		if err == nil || !strings.HasPrefix(err.Error(), "draft_validation_failed:") {
			t.Errorf("err = %v, want draft_validation_failed prefix", err)
		}
	})
}

func TestCleanAndValidateDraftFallsBack(t *testing.T) {
	chat := &fakeChat{responses: []string{structuredDraftJSON}}
	original, err := StructureText(context.Background(), chat, "test-model", "text")
	if err != nil {
		t.Fatalf("StructureText: %v", err)
	}

	t.Run("model error returns original", func(t *testing.T) {
		failing := &fakeChat{errs: []error{errors.New("down")}}
		got := CleanAndValidateDraft(context.Background(), failing, "lite-model", original)
		if got != original {
			t.Error("cleanup failure should return the original draft")
		}
	})

	t.Run("invalid cleanup returns original", func(t *testing.T) {
		// Cleanup output that drops all ingredients fails minimums.
		broken := `{"title": "Grandma's Banana Bread", "ingredients": [], "steps": []}`
		bad := &fakeChat{responses: []string{broken}}
		got := CleanAndValidateDraft(context.Background(), bad, "lite-model", original)
		if got != original {
			t.Error("invalid cleanup output should return the original draft")
		}
	})

	t.Run("valid cleanup replaces draft", func(t *testing.T) {
		good := &fakeChat{responses: []string{structuredDraftJSON}}
		got := CleanAndValidateDraft(context.Background(), good, "lite-model", original)
		if got == original {
			t.Error("valid cleanup output should replace the draft")
		}
		if got.Title != original.Title {
			t.Errorf("title = %q", got.Title)
		}
	})
}
