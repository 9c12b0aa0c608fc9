package extract

import (
	"strconv"
	"strings"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// coerceString renders a loosely-typed JSON value as a trimmed string.
func coerceString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers arrive as float64.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// coerceIngredient bridges the two accepted ingredient shapes, a bare
// string or a loose object, into a ParsedIngredient. Object fields read
// quantity first, quantity_display second; amount is a schema.org-ish
// alias for quantity.
func coerceIngredient(v interface{}) *model.ParsedIngredient {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		ing := SplitIngredientLine(t)
		return &ing
	case map[string]interface{}:
		name := coerceString(firstPresent(t, "text", "name", "ingredient"))
		if name == "" {
			return nil
		}
		ing := model.ParsedIngredient{Text: cleanName(name)}
		if qty := coerceString(firstPresent(t, "quantity", "quantity_display", "amount")); qty != "" {
			ing.QuantityDisplay = NormalizeFractionDisplay(qty)
		}
		if unit := coerceString(t["unit"]); unit != "" {
			ing.Unit = strPtr(unit)
		}
		return &ing
	}
	return nil
}

// coerceInstruction accepts a bare string or a {text|description|name}
// object. Nested instruction sections are not flattened.
func coerceInstruction(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		return coerceString(firstPresent(t, "text", "description", "name"))
	}
	return ""
}

// coerceStringList accepts a string, a comma-separated string, or a list
// of strings, and returns the trimmed non-empty entries.
func coerceStringList(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []interface{}:
		for _, item := range t {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
