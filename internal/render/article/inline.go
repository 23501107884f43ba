package article

import (
	"fmt"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/glabrego/canto-ng/internal/markup"
)

func (c *converter) inline(node *nethtml.Node, tag string) {
	switch tag {
	case "a":
		if !hasAttr(node, "href") {
			c.walk(node)
			return
		}
		c.emit(colorLink)
		c.walk(node)
		c.link(KindLink, nodeAttr(node, "href"), normalizeInlineText(collectRawText(node)))
	case "img":
		if !hasAttr(node, "src") {
			return
		}
		alt := normalizeInlineText(nodeAttr(node, "alt"))
		c.emit(colorImageLink + markup.Escape(alt))
		c.link(KindImage, nodeAttr(node, "src"), alt)
	case "b", "strong":
		c.wrap(node, "%B", "%b")
	case "i", "em", "small":
		c.wrap(node, colorItalics, colorPop)
	case "code", "kbd", "samp", "tt":
		c.verbatim++
		c.walk(node)
		c.verbatim--
	case "sup":
		c.emit("^")
		c.walk(node)
	case "q":
		c.wrap(node, `"`, `"`)
	default:
		c.walk(node)
	}
}

// link registers a link and closes its color with the link's number.
func (c *converter) link(kind LinkKind, url, text string) {
	c.links = append(c.links, Link{Kind: kind, URL: url, Text: text})
	c.emit(fmt.Sprintf("[%d]%s", c.first+len(c.links)-1, colorPop))
}

func (c *converter) text(s string) {
	if c.verbatim > 0 {
		c.emit(markup.Escape(strings.ReplaceAll(s, "\r\n", "\n")))
		return
	}
	s = collapseSpace(s)
	if c.space {
		s = strings.TrimLeft(s, " ")
	}
	if s == "" {
		return
	}
	c.emit(markup.Escape(s))
}

// collapseSpace folds every whitespace run, newlines included, into a
// single space, keeping a leading or trailing one.
func collapseSpace(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	if isSpace(s[0]) {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Join(strings.Fields(s), " "))
	if len(s) > 1 && isSpace(s[len(s)-1]) && strings.TrimSpace(s) != "" {
		b.WriteByte(' ')
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func normalizeInlineText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
