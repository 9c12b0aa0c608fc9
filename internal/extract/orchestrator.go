package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// Extractor is one strategy in the chain: cheap, local, and silent on
// failure. Strategies returning a recipe guarantee non-empty title,
// ingredients and steps.
type Extractor interface {
	Name() string
	TryExtract(doc *Document) *model.ParsedRecipe
}

// Orchestrator runs the fixed strategy order: structured data, microdata,
// heuristic DOM, then the model-assisted fallback when the caller opted
// in. First match wins.
type Orchestrator struct {
	fetcher *Fetcher
	llm     *LLMExtractor
	logger  *zap.Logger
}

func NewOrchestrator(fetcher *Fetcher, llm *LLMExtractor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, llm: llm, logger: logger}
}

func failure(code, message string, warnings ...string) model.ParseResult {
	if warnings == nil {
		warnings = []string{}
	}
	return model.ParseResult{
		Success:      false,
		Warnings:     warnings,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// ParseFromSource resolves an ingestion input into a ParseResult. Image
// sources are handled by the queue pipeline, not here.
func (o *Orchestrator) ParseFromSource(ctx context.Context, input model.IngestionInput) model.ParseResult {
	var pageHTML string
	htmlStrategy := model.StrategyClientHTML

	switch input.SourceType {
	case model.SourceServerFetch:
		if input.SourceURL == "" {
			return failure(model.ErrCodeInvalidPayload, "source_url required")
		}
		text, ferr := o.fetcher.Fetch(ctx, input.SourceURL)
		if ferr != nil {
			result := failure(ferr.Code, ferr.Message)
			if ferr.Warning != "" {
				result.Warnings = []string{ferr.Warning}
			}
			result.NextAction = ferr.NextAction
			result.NextActionReason = ferr.NextActionReason
			return result
		}
		pageHTML = text
		htmlStrategy = model.StrategySchemaOrgJSONLD

	case model.SourceClientWebview:
		built, errResult := buildWebviewHTML(input)
		if errResult != nil {
			return *errResult
		}
		pageHTML = built

	default:
		return failure(model.ErrCodeInvalidPayload, fmt.Sprintf("unknown source_type %q", input.SourceType))
	}

	// Caller-supplied JSON-LD blocks get first shot regardless of source.
	if len(input.JSONLDBlocks) > 0 {
		blockHTML := wrapJSONLDBlocks(input.JSONLDBlocks)
		if doc, err := ParseDocument(blockHTML, input.SourceURL); err == nil {
			extractor := &SchemaOrgExtractor{StrategyName: model.StrategyClientJSONLD}
			if recipe := extractor.TryExtract(doc); recipe != nil {
				return o.success(recipe, model.StrategyClientJSONLD, false)
			}
		}
	}

	if strings.TrimSpace(pageHTML) == "" {
		return failure(model.ErrCodeInvalidPayload, "no content to parse")
	}

	doc, err := ParseDocument(pageHTML, input.SourceURL)
	if err != nil {
		return failure(model.ErrCodeInvalidPayload, fmt.Sprintf("unparseable document: %v", err))
	}

	chain := []Extractor{
		&SchemaOrgExtractor{StrategyName: htmlStrategy},
		NewMicrodataExtractor(),
		NewHeuristicExtractor(),
	}
	for _, extractor := range chain {
		if recipe := extractor.TryExtract(doc); recipe != nil {
			name := extractor.Name()
			// The webview HTML chain reports one collective strategy.
			if input.SourceType == model.SourceClientWebview {
				name = model.StrategyClientHTML
			}
			return o.success(recipe, name, false)
		}
	}

	if input.UseLLM && o.llm != nil {
		recipe, code, llmErr := o.llm.Extract(ctx, doc)
		if llmErr != nil {
			o.logger.Warn("model-assisted extraction failed",
				zap.String("code", code), zap.Error(llmErr))
			result := failure(code, llmErr.Error())
			if code == model.ErrCodeLLMFailed || code == model.ErrCodeLLMTimeout {
				result.Warnings = []string{model.WarningLLMFailed}
			}
			return result
		}
		return o.success(recipe, model.StrategyLLMFallback, true)
	}

	return failure(model.ErrCodeInvalidPayload, "no recipe found in content")
}

// success normalizes a found recipe once before returning it: ingredient
// cleanup pass, tag filter, nil list normalization.
func (o *Orchestrator) success(recipe *model.ParsedRecipe, strategy string, usedLLM bool) model.ParseResult {
	recipe.Ingredients = CleanParsedIngredients(recipe.Ingredients)
	recipe.Tags = FilterTags(recipe.Tags, recipe.Title)
	if recipe.Tags == nil {
		recipe.Tags = []string{}
	}
	if recipe.Steps == nil {
		recipe.Steps = []string{}
	}
	if recipe.Notes == nil {
		recipe.Notes = []string{}
	}
	return model.ParseResult{
		Success:        true,
		Recipe:         recipe,
		UsedLLM:        usedLLM,
		ParserStrategy: strategy,
		Warnings:       []string{},
	}
}

// buildWebviewHTML assembles caller-extracted JSON-LD blocks and an HTML
// snippet into one parseable document, enforcing the input size caps.
func buildWebviewHTML(input model.IngestionInput) (string, *model.ParseResult) {
	if len(input.JSONLDBlocks) > model.MaxJSONLDBlocks {
		r := failure(model.ErrCodeInvalidPayload, "too_many_jsonld_blocks")
		return "", &r
	}
	for _, block := range input.JSONLDBlocks {
		if len(block) > model.MaxJSONLDBytes {
			r := failure(model.ErrCodeInvalidPayload, "jsonld_block_too_large")
			return "", &r
		}
	}
	if len(input.HTMLSnippet) > model.MaxHTMLBytes {
		r := failure(model.ErrCodeInvalidPayload, "html_snippet_too_large")
		return "", &r
	}

	var parts []string
	if len(input.JSONLDBlocks) > 0 {
		parts = append(parts, wrapJSONLDBlocks(input.JSONLDBlocks))
	}
	if input.HTMLSnippet != "" {
		parts = append(parts, input.HTMLSnippet)
	}
	return strings.Join(parts, "\n"), nil
}

func wrapJSONLDBlocks(blocks []string) string {
	var sb strings.Builder
	count := 0
	for _, block := range blocks {
		if count >= model.MaxJSONLDBlocks || len(block) > model.MaxJSONLDBytes {
			continue
		}
		sb.WriteString(`<script type="application/ld+json">`)
		sb.WriteString(block)
		sb.WriteString("</script>\n")
		count++
	}
	return sb.String()
}
