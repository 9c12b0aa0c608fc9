package extract

import (
	"regexp"

	"golang.org/x/net/html"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

var (
	containerClassRe = regexp.MustCompile(`(?i)recipe|post|content`)
	instructionHdrRe = regexp.MustCompile(`(?i)direction|instruction|method`)
	ingredientHintRe = regexp.MustCompile(`(?i)\d|cup|tablespoon|tbsp|teaspoon|tsp|ounce|oz|pound|lb|gram|clove|pinch`)
)

// HeuristicExtractor infers recipe structure from generic DOM shape when
// no structured data is present.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor { return &HeuristicExtractor{} }

func (e *HeuristicExtractor) Name() string { return model.StrategyHeuristic }

func (e *HeuristicExtractor) TryExtract(doc *Document) *model.ParsedRecipe {
	if doc == nil || doc.Root == nil {
		return nil
	}

	title := documentTitle(doc.Root)
	container := findContentContainer(doc.Root)
	if container == nil {
		return nil
	}

	ingredientLines := findIngredientItems(container)
	stepLines := findInstructionItems(container)

	if title == "" || len(ingredientLines) == 0 || len(stepLines) == 0 {
		return nil
	}

	ingredients := make([]model.ParsedIngredient, 0, len(ingredientLines))
	for _, line := range ingredientLines {
		ingredients = append(ingredients, SplitIngredientLine(line))
	}

	recipe := &model.ParsedRecipe{
		Title:       title,
		Ingredients: ingredients,
		Steps:       stepLines,
		Tags:        []string{},
		Notes:       []string{},
	}
	if doc.SourceURL != "" {
		recipe.SourceURL = strPtr(doc.SourceURL)
	}
	recipe.Servings = FindServingsInText(nodeText(container))
	return recipe
}

// findContentContainer picks the most likely recipe region: a semantic
// article/main element, then a class-name match, then the body.
func findContentContainer(root *html.Node) *html.Node {
	if n := findFirst(root, func(n *html.Node) bool { return isElement(n, "article") }); n != nil {
		return n
	}
	if n := findFirst(root, func(n *html.Node) bool { return isElement(n, "main") }); n != nil {
		return n
	}
	if n := findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode &&
			containerClassRe.MatchString(attrVal(n, "class")+" "+attrVal(n, "id"))
	}); n != nil {
		return n
	}
	return findFirst(root, func(n *html.Node) bool { return isElement(n, "body") })
}

// findIngredientItems scores every list in the container by
// (quantity-looking items * 2) + item count and returns the winner's
// items, provided at least half of them look like quantities.
func findIngredientItems(container *html.Node) []string {
	lists := findAll(container, func(n *html.Node) bool { return isElement(n, "ul", "ol") })

	var best []string
	bestScore := 0
	for _, list := range lists {
		items := listItems(list)
		if len(items) == 0 {
			continue
		}
		matches := 0
		for _, item := range items {
			if ingredientHintRe.MatchString(item) {
				matches++
			}
		}
		if matches*2 < len(items) {
			continue
		}
		score := matches*2 + len(items)
		if score > bestScore {
			bestScore = score
			best = items
		}
	}
	return best
}

// findInstructionItems looks for a heading matching
// direction/instruction/method and takes the next sibling list or
// paragraph run, falling back to the longest ordered list.
func findInstructionItems(container *html.Node) []string {
	headings := findAll(container, func(n *html.Node) bool {
		return isElement(n, "h1", "h2", "h3", "h4") && instructionHdrRe.MatchString(nodeText(n))
	})

	for _, h := range headings {
		for sib := h.NextSibling; sib != nil; sib = sib.NextSibling {
			if sib.Type != html.ElementNode {
				continue
			}
			if isElement(sib, "ul", "ol") {
				if items := listItems(sib); len(items) > 0 {
					return items
				}
			}
			if isElement(sib, "div", "section") {
				if list := findFirst(sib, func(n *html.Node) bool { return isElement(n, "ul", "ol") }); list != nil {
					if items := listItems(list); len(items) > 0 {
						return items
					}
				}
			}
			if isElement(sib, "p") {
				var paras []string
				for p := sib; p != nil; p = p.NextSibling {
					if isElement(p, "p") {
						if t := nodeText(p); t != "" {
							paras = append(paras, t)
						}
					}
				}
				if len(paras) > 0 {
					return paras
				}
			}
			if isElement(sib, "h1", "h2", "h3", "h4") {
				break
			}
		}
	}

	// Longest ordered list wins when no heading matched.
	var best []string
	for _, ol := range findAll(container, func(n *html.Node) bool { return isElement(n, "ol") }) {
		if items := listItems(ol); len(items) > len(best) {
			best = items
		}
	}
	return best
}
