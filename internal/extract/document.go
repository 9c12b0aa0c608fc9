package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Document is a parsed HTML page handed to each extractor in the chain.
type Document struct {
	Root      *html.Node
	Raw       string
	SourceURL string
}

// ParseDocument parses raw HTML into a Document. Parsing is lenient and
// never fails on malformed markup; a nil Root only happens on empty input.
func ParseDocument(raw, sourceURL string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &Document{Root: root, Raw: raw, SourceURL: sourceURL}, nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

// walk visits n and its subtree in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// findFirst returns the first node in document order matching pred.
func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// findAll returns all nodes in document order matching pred.
func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// nodeText collects the visible text of a subtree, skipping script and
// style content, with runs of whitespace collapsed.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c == nil {
			return
		}
		if isElement(c, "script", "style", "noscript") {
			return
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteString(" ")
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			collect(ch)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// listItems returns the text of each li under a list node.
func listItems(list *html.Node) []string {
	var items []string
	for _, li := range findAll(list, func(n *html.Node) bool { return isElement(n, "li") }) {
		if t := nodeText(li); t != "" {
			items = append(items, t)
		}
	}
	return items
}

// removeSubtrees detaches all nodes matching pred from the tree.
func removeSubtrees(root *html.Node, pred func(*html.Node) bool) {
	for _, n := range findAll(root, pred) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// documentTitle returns the first h1 text, falling back to <title>.
func documentTitle(root *html.Node) string {
	if h1 := findFirst(root, func(n *html.Node) bool { return isElement(n, "h1") }); h1 != nil {
		if t := nodeText(h1); t != "" {
			return t
		}
	}
	if title := findFirst(root, func(n *html.Node) bool { return isElement(n, "title") }); title != nil {
		return nodeText(title)
	}
	return ""
}
