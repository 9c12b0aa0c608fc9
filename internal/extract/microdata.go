package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// MicrodataExtractor reads schema.org Recipe microdata (itemtype/itemprop
// attributes) for pages that embed structured data without JSON-LD.
type MicrodataExtractor struct{}

func NewMicrodataExtractor() *MicrodataExtractor { return &MicrodataExtractor{} }

func (e *MicrodataExtractor) Name() string { return model.StrategyMicrodata }

func (e *MicrodataExtractor) TryExtract(doc *Document) *model.ParsedRecipe {
	if doc == nil || doc.Root == nil {
		return nil
	}
	scope := findFirst(doc.Root, func(n *html.Node) bool {
		return n.Type == html.ElementNode &&
			strings.Contains(strings.ToLower(attrVal(n, "itemtype")), "schema.org/recipe")
	})
	if scope == nil {
		return nil
	}

	title := ""
	var ingredients []model.ParsedIngredient
	var steps []string

	for _, n := range findAll(scope, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attrVal(n, "itemprop") != ""
	}) {
		prop := attrVal(n, "itemprop")
		switch {
		case strings.EqualFold(prop, "name") && title == "":
			title = nodeText(n)
		case strings.EqualFold(prop, "recipeIngredient") || strings.EqualFold(prop, "ingredients"):
			if t := nodeText(n); t != "" {
				ingredients = append(ingredients, SplitIngredientLine(t))
			}
		case strings.EqualFold(prop, "recipeInstructions"):
			// An instructions container holds li/p children; a leaf
			// element is one step by itself.
			if items := listItems(n); len(items) > 0 {
				steps = append(steps, items...)
			} else if t := nodeText(n); t != "" {
				steps = append(steps, t)
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
		Tags:        []string{},
		Notes:       []string{},
	}
	if doc.SourceURL != "" {
		recipe.SourceURL = strPtr(doc.SourceURL)
	}
	if servings := FindServingsInText(nodeText(scope)); servings != nil {
		recipe.Servings = servings
	}
	return recipe
}
