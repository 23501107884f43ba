package article

import (
	"strconv"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/glabrego/canto-ng/internal/markup"
)

type listLevel struct {
	ordered bool
	n       int
}

// converter walks a parsed fragment once, writing markup as it goes.
type converter struct {
	out      strings.Builder
	links    []Link
	first    int
	verbatim int
	lists    []listLevel
	// space is true when the last visible character was whitespace.
	space bool
}

func (c *converter) walk(node *nethtml.Node) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case nethtml.TextNode:
			c.text(child.Data)
		case nethtml.ElementNode:
			c.element(child)
		}
	}
}

func (c *converter) element(node *nethtml.Node) {
	tag := strings.ToLower(node.Data)
	switch tag {
	case "script", "style", "noscript", "head", "title":
	case "h1", "h2", "h3", "h4", "h5", "h6":
		c.wrap(node, "\n%B", "%b\n")
	case "blockquote":
		c.wrap(node, "\n%Q", "%q\n")
	case "pre":
		c.verbatim++
		c.wrap(node, "\n%Q", "%q\n")
		c.verbatim--
	case "p", "div", "section", "article", "main", "header", "footer", "aside", "nav",
		"figure", "figcaption", "caption", "dl", "dt", "dd":
		c.wrap(node, "\n", "\n")
	case "br":
		c.emit("\n")
	case "hr":
		c.emit("\n" + strings.Repeat("-", ruleWidth) + "\n")
	case "ul", "ol":
		c.lists = append(c.lists, listLevel{ordered: tag == "ol"})
		c.wrap(node, "\n%I", "%i\n")
		c.lists = c.lists[:len(c.lists)-1]
	case "li":
		c.listItem(node)
	case "table":
		c.table(node)
	default:
		c.inline(node, tag)
	}
}

func (c *converter) wrap(node *nethtml.Node, open, close string) {
	c.emit(open)
	c.walk(node)
	c.emit(close)
}

func (c *converter) listItem(node *nethtml.Node) {
	c.emit("\n")
	if len(c.lists) == 0 {
		// A stray <li> outside any list.
		c.lists = append(c.lists, listLevel{})
		defer func() { c.lists = c.lists[:0] }()
	}
	level := &c.lists[len(c.lists)-1]
	if level.ordered {
		level.n++
		c.emit(strconv.Itoa(level.n) + ". ")
	} else {
		c.emit(bulletMarker)
	}
	c.walk(node)
}

// emit writes markup and tracks whether the visible text so far ends in
// whitespace, so text nodes can collapse runs across element boundaries.
func (c *converter) emit(s string) {
	c.out.WriteString(s)
	if plain := markup.Strip(s); plain != "" {
		last := plain[len(plain)-1]
		c.space = last == ' ' || last == '\n'
	}
}
