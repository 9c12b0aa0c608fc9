package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// ChatClient is the text-generation collaborator contract.
type ChatClient interface {
	ChatCompletion(ctx context.Context, modelName, system, user string) (string, error)
}

const (
	llmContextBudget   = 10000
	llmRawTextMinChars = 500
	llmRawTextMaxLines = 200
)

const recipeExtractionSystemPrompt = `You extract recipes from web page text. ` +
	`Respond with exactly one JSON object and nothing else, matching this schema: ` +
	`{"title": string, "description": string|null, "ingredients": [{"name": string, "quantity": string|null, "unit": string|null}], ` +
	`"steps": [string], "tags": [string], "servings": int|null, "estimated_time_minutes": int|null, "source_url": string|null}. ` +
	`If the text does not contain a recipe, respond with {"error": "invalid"}.`

const jsonRepairSystemPrompt = `You repair malformed JSON. Respond with exactly one valid JSON object ` +
	`and nothing else. Preserve the data; fix only the syntax.`

// LLMExtractor is the last-resort strategy: it sends a cleaned page slice
// to the text-generation service and repairs malformed output.
type LLMExtractor struct {
	chat      ChatClient
	modelName string
	logger    *zap.Logger
}

func NewLLMExtractor(chat ChatClient, modelName string, logger *zap.Logger) *LLMExtractor {
	return &LLMExtractor{chat: chat, modelName: modelName, logger: logger}
}

func (e *LLMExtractor) Name() string { return model.StrategyLLMFallback }

// Extract runs the full model-assisted pipeline. The returned code is one
// of content_corrupted, llm_timeout or llm_failed when err is non-nil.
func (e *LLMExtractor) Extract(ctx context.Context, doc *Document) (*model.ParsedRecipe, string, error) {
	if looksCorrupted(doc.Raw) {
		return nil, model.ErrCodeContentCorrupted, errors.New("document content appears corrupted")
	}

	content := buildModelContext(doc)
	if strings.TrimSpace(content) == "" {
		return nil, model.ErrCodeLLMFailed, errors.New("no usable text content in document")
	}

	user := fmt.Sprintf("Extract the recipe from this page content:\n\n%s", content)
	raw, err := e.chat.ChatCompletion(ctx, e.modelName, recipeExtractionSystemPrompt, user)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, model.ErrCodeLLMTimeout, fmt.Errorf("model call timed out: %w", err)
		}
		return nil, model.ErrCodeLLMFailed, fmt.Errorf("model call failed: %w", err)
	}
	e.logger.Debug("model extraction raw response", zap.Int("length", len(raw)))

	data, err := parseWithRepair(ctx, e.chat, e.modelName, raw)
	if err != nil {
		return nil, model.ErrCodeLLMFailed, err
	}
	if errVal, ok := data["error"]; ok {
		return nil, model.ErrCodeLLMFailed, fmt.Errorf("model declined extraction: %v", errVal)
	}

	recipe := recipeFromLooseJSON(data, doc.SourceURL)
	if recipe == nil {
		return nil, model.ErrCodeLLMFailed, errors.New("model output missing title, ingredients or steps")
	}
	return recipe, "", nil
}

// buildModelContext assembles a bounded page slice: boilerplate stripped,
// main node located, ingredient/instruction candidates concatenated into a
// labeled block, raw visible text as the fallback.
func buildModelContext(doc *Document) string {
	if doc.Root == nil {
		return truncateRunes(doc.Raw, llmContextBudget)
	}

	removeSubtrees(doc.Root, func(n *html.Node) bool {
		return isElement(n, "header", "footer", "nav", "aside", "form", "script", "style", "noscript")
	})
	main := findMainNode(doc.Root)
	if main == nil {
		return truncateRunes(doc.Raw, llmContextBudget)
	}

	var sb strings.Builder
	if title := documentTitle(doc.Root); title != "" {
		sb.WriteString("Title: ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	if ingredients := findIngredientItems(main); len(ingredients) > 0 {
		sb.WriteString("Ingredients:\n")
		for _, line := range ingredients {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if steps := findInstructionItems(main); len(steps) > 0 {
		sb.WriteString("Instructions:\n")
		for _, line := range steps {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	content := sb.String()
	if len(content) < llmRawTextMinChars {
		lines := strings.Split(nodeTextLines(main), "\n")
		if len(lines) > llmRawTextMaxLines {
			lines = lines[:llmRawTextMaxLines]
		}
		content = strings.Join(lines, "\n")
	}
	return truncateRunes(content, llmContextBudget)
}

// findMainNode picks the model-context root: a recipe-typed microdata
// container, then article, main, body.
func findMainNode(root *html.Node) *html.Node {
	if n := findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode &&
			strings.Contains(strings.ToLower(attrVal(n, "itemtype")), "recipe")
	}); n != nil {
		return n
	}
	if n := findFirst(root, func(n *html.Node) bool { return isElement(n, "article") }); n != nil {
		return n
	}
	if n := findFirst(root, func(n *html.Node) bool { return isElement(n, "main") }); n != nil {
		return n
	}
	return findFirst(root, func(n *html.Node) bool { return isElement(n, "body") })
}

// nodeTextLines renders a subtree as one visible-text line per block-ish
// element, good enough for a raw-text model fallback.
func nodeTextLines(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c == nil || isElement(c, "script", "style", "noscript") {
			return
		}
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString("\n")
			}
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			collect(ch)
		}
	}
	collect(n)
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

var (
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	controlCharRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// parseWithRepair parses model output as JSON with three attempts: direct,
// local best-effort repair, then a second model call whose sole job is
// fixing the syntax.
func parseWithRepair(ctx context.Context, chat ChatClient, modelName, raw string) (map[string]interface{}, error) {
	if data, err := parseJSONObject(raw); err == nil {
		return data, nil
	}

	if repaired := tryLocalJSONRepair(raw); repaired != "" {
		if data, err := parseJSONObject(repaired); err == nil {
			return data, nil
		}
	}

	user := fmt.Sprintf("Repair this malformed JSON:\n\n%s", truncateRunes(raw, llmContextBudget))
	fixed, err := chat.ChatCompletion(ctx, modelName, jsonRepairSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("repair call failed: %w", err)
	}
	candidate := fixed
	if local := tryLocalJSONRepair(fixed); local != "" {
		candidate = local
	}
	data, err := parseJSONObject(candidate)
	if err != nil {
		return nil, fmt.Errorf("model output unparseable after repair: %w", err)
	}
	return data, nil
}

func parseJSONObject(raw string) (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// tryLocalJSONRepair strips markdown fences, slices from the first "{" to
// the last "}", and removes stray control characters. Returns "" when no
// candidate substring exists.
func tryLocalJSONRepair(raw string) string {
	candidate := raw
	if m := codeFenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return ""
	}
	candidate = candidate[start : end+1]
	return controlCharRe.ReplaceAllString(candidate, "")
}

// recipeFromLooseJSON builds a ParsedRecipe from a loosely-shaped model
// object, normalizing nullable lists and defaulting source_url. Returns
// nil when the non-empty invariant fails.
func recipeFromLooseJSON(data map[string]interface{}, sourceURL string) *model.ParsedRecipe {
	title := coerceString(data["title"])
	if title == "" {
		title = coerceString(data["name"])
	}

	var ingredients []model.ParsedIngredient
	if list, ok := data["ingredients"].([]interface{}); ok {
		for _, item := range list {
			if ing := coerceIngredient(item); ing != nil {
				ingredients = append(ingredients, *ing)
			}
		}
	}

	var steps []string
	if list, ok := data["steps"].([]interface{}); ok {
		for _, item := range list {
			if s := coerceInstruction(item); s != "" {
				steps = append(steps, s)
			}
		}
	} else if list, ok := data["instructions"].([]interface{}); ok {
		for _, item := range list {
			if s := coerceInstruction(item); s != "" {
				steps = append(steps, s)
			}
		}
	}

	if title == "" || len(ingredients) == 0 || len(steps) == 0 {
		return nil
	}

	recipe := &model.ParsedRecipe{
		Title:       title,
		Ingredients: ingredients,
		Steps:       steps,
		Tags:        FilterTags(coerceStringList(data["tags"]), title),
		Notes:       coerceStringList(data["notes"]),
	}
	if recipe.Tags == nil {
		recipe.Tags = []string{}
	}
	if recipe.Notes == nil {
		recipe.Notes = []string{}
	}
	if desc := coerceString(data["description"]); desc != "" {
		recipe.Description = strPtr(desc)
	}
	if src := coerceString(data["source_url"]); src != "" {
		recipe.SourceURL = strPtr(src)
	} else if sourceURL != "" {
		recipe.SourceURL = strPtr(sourceURL)
	}
	if img := coerceString(data["image_url"]); img != "" {
		recipe.ImageURL = strPtr(img)
	}
	if v, ok := data["servings"].(float64); ok && v > 0 {
		recipe.Servings = intPtr(int(v))
	}
	if v, ok := data["estimated_time_minutes"].(float64); ok && v > 0 {
		recipe.EstimatedTimeMinutes = intPtr(int(v))
	}
	return recipe
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
