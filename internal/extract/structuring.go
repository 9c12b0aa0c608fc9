package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

const textStructuringSystemPrompt = `You convert raw OCR text from recipe photos into structured JSON. ` +
	`Respond with exactly one JSON object and nothing else, matching this schema: ` +
	`{"title": string, "description": string|null, "ingredients": [{"name": string, "quantity": string|null, "unit": string|null}], ` +
	`"steps": [string], "tags": [string], "prep_time_minutes": int|null, "cook_time_minutes": int|null, "total_time_minutes": int|null}. ` +
	`If the text is not a recipe, respond with {"error": "invalid"}.`

const draftCleanupSystemPrompt = `You clean up a recipe draft extracted from OCR text. Fix obvious OCR ` +
	`artifacts in ingredient names and steps, split quantities out of names, and drop duplicate lines. ` +
	`Respond with exactly one JSON object in the same schema as the input and nothing else.`

// StructureText asks the model to convert combined OCR text into a
// RecipeDraft. Same repair chain as the page extractor.
func StructureText(ctx context.Context, chat ChatClient, modelName, text string) (*model.RecipeDraft, error) {
	user := fmt.Sprintf("Structure this recipe text:\n\n%s", truncateRunes(text, llmContextBudget))
	raw, err := chat.ChatCompletion(ctx, modelName, textStructuringSystemPrompt, user)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, fmt.Errorf("%s: %w", model.ErrCodeLLMTimeout, err)
		}
		return nil, fmt.Errorf("%s: %w", model.ErrCodeLLMFailed, err)
	}

	data, err := parseWithRepair(ctx, chat, modelName, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", model.ErrCodeLLMFailed, err)
	}
	if errVal, ok := data["error"]; ok {
		return nil, fmt.Errorf("%s: model declined structuring: %v", model.ErrCodeLLMFailed, errVal)
	}

	draft := draftFromLooseJSON(data)
	if draft == nil {
		return nil, errors.New(model.ErrCodeDraftValidationFailed + ": structured output missing required fields")
	}
	return draft, nil
}

// CleanAndValidateDraft runs the optional cleanup pass over a draft. On
// any model or parse failure the original draft is returned untouched.
func CleanAndValidateDraft(ctx context.Context, chat ChatClient, modelName string, draft *model.RecipeDraft) *model.RecipeDraft {
	encoded, err := json.Marshal(draft)
	if err != nil {
		return draft
	}
	raw, err := chat.ChatCompletion(ctx, modelName, draftCleanupSystemPrompt, string(encoded))
	if err != nil {
		return draft
	}
	data, err := parseWithRepair(ctx, chat, modelName, raw)
	if err != nil {
		return draft
	}
	cleaned := draftFromLooseJSON(data)
	if cleaned == nil || !cleaned.ValidateMinimums() {
		return draft
	}
	return cleaned
}

// draftFromLooseJSON decodes a loosely-shaped structuring response.
// Ingredient objects read quantity first, quantity_display second.
func draftFromLooseJSON(data map[string]interface{}) *model.RecipeDraft {
	title := coerceString(data["title"])
	if title == "" {
		return nil
	}

	draft := &model.RecipeDraft{Title: title}
	if desc := coerceString(data["description"]); desc != "" {
		draft.Description = strPtr(desc)
	}

	if list, ok := data["ingredients"].([]interface{}); ok {
		for _, item := range list {
			switch t := item.(type) {
			case string:
				if parsed := coerceIngredient(t); parsed != nil {
					draft.Ingredients = append(draft.Ingredients, model.DraftIngredient{
						Name:     parsed.Text,
						Quantity: parsed.QuantityDisplay,
						Unit:     parsed.Unit,
					})
				}
			case map[string]interface{}:
				name := coerceString(firstPresent(t, "name", "text", "ingredient"))
				if name == "" {
					continue
				}
				ing := model.DraftIngredient{Name: strings.TrimSpace(name)}
				if qty := coerceString(firstPresent(t, "quantity", "quantity_display", "amount")); qty != "" {
					ing.Quantity = NormalizeFractionDisplay(qty)
				}
				if unit := coerceString(t["unit"]); unit != "" {
					ing.Unit = strPtr(unit)
				}
				draft.Ingredients = append(draft.Ingredients, ing)
			}
		}
	}

	if list, ok := data["steps"].([]interface{}); ok {
		for _, item := range list {
			if s := coerceInstruction(item); s != "" {
				draft.Steps = append(draft.Steps, s)
			}
		}
	}

	draft.Tags = FilterTags(coerceStringList(data["tags"]), title)
	if draft.Tags == nil {
		draft.Tags = []string{}
	}

	if v, ok := data["prep_time_minutes"].(float64); ok && v > 0 {
		draft.PrepTimeMinutes = intPtr(int(v))
	}
	if v, ok := data["cook_time_minutes"].(float64); ok && v > 0 {
		draft.CookTimeMinutes = intPtr(int(v))
	}
	if v, ok := data["total_time_minutes"].(float64); ok && v > 0 {
		draft.TotalTimeMinutes = intPtr(int(v))
	}

	if len(draft.Ingredients) == 0 || len(draft.Steps) == 0 {
		return nil
	}
	return draft
}
