// Package article turns story HTML into theme markup for the reader and
// collects the links it contains.
package article

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/glabrego/canto-ng/internal/markup"
)

type LinkKind string

const (
	KindLink  LinkKind = "link"
	KindImage LinkKind = "image"
)

type Link struct {
	Kind LinkKind
	URL  string
	Text string
}

// Attributes are the story attributes the reader needs on top of the
// ones every view already holds.
var Attributes = []string{"description", "content", "links", "media_content", "enclosures"}

type Options struct {
	ShowDescription bool
	EnumerateLinks  bool
	ShowEnclosures  bool
	// Cleanup drops site furniture such as "[edit]" markers and
	// newsletter plugs, keyed on the story link's host.
	Cleanup bool
}

var DefaultOptions = Options{
	ShowDescription: true,
	Cleanup:         true,
}

var (
	reEntity = regexp.MustCompile(`&#?[0-9A-Za-z]{1,32};`)
	reQuoted = regexp.MustCompile(`"(.*?)"`)
	reBlank  = regexp.MustCompile(`\n{3,}`)
)

// Compose builds the reader text for one story. Link 0 is always the
// story's own link; links found in the body follow in document order.
func Compose(attrs map[string]any, opts Options) (string, []Link) {
	link := stringAttr(attrs, "link")
	links := []Link{{Kind: KindLink, URL: link, Text: "mainlink"}}

	var b strings.Builder
	b.WriteString(colorTitle + "%B" + markup.Escape(stringAttr(attrs, "title")) + "%b\n")

	body := mainBody(attrs)
	if opts.ShowEnclosures {
		body += enclosureLinks(attrs)
	}
	content, found := Convert(body, len(links))
	links = append(links, found...)
	if opts.Cleanup {
		content = applyReaderPostprocessing(content, link)
	}

	if opts.ShowDescription {
		b.WriteString(reQuoted.ReplaceAllString(content, colorQuote+`"${1}"`+colorPop))
	}

	if opts.EnumerateLinks {
		b.WriteString("\n\n")
		for i, l := range links {
			color := colorLink
			if l.Kind == KindImage {
				color = colorImageLink
			}
			fmt.Fprintf(&b, "%s[%%B%d%%b][%s]: %s%s\n\n", color, i, markup.Escape(l.Text), markup.Escape(l.URL), colorPop)
		}
	}
	return strings.TrimRight(b.String(), " \t\v\n"), links
}

// Convert renders an HTML fragment as markup. Link markers are numbered
// from first.
func Convert(raw string, first int) (string, []Link) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	doc, err := nethtml.Parse(strings.NewReader("<html><body>" + unknownEntities(raw) + "</body></html>"))
	if err != nil {
		return markup.Escape(html.UnescapeString(raw)), nil
	}
	body := findBodyNode(doc)
	if body == nil {
		return markup.Escape(html.UnescapeString(raw)), nil
	}
	c := &converter{first: first, space: true}
	c.walk(body)
	return tidy(c.out.String()), c.links
}

// unknownEntities swaps references the HTML tables cannot resolve for a
// visible placeholder; the parser would otherwise print them verbatim.
func unknownEntities(raw string) string {
	return reEntity.ReplaceAllStringFunc(raw, func(ent string) string {
		if html.UnescapeString(ent) == ent {
			return "[?]"
		}
		return ent
	})
}

func tidy(s string) string {
	s = reBlank.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n ")
}

// mainBody prefers a text-typed content entry over the description.
func mainBody(attrs map[string]any) string {
	body := stringAttr(attrs, "description")
	contents, _ := attrs["content"].([]any)
	for _, item := range contents {
		c, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if typ, _ := c["type"].(string); strings.Contains(typ, "text") {
			if v, ok := c["value"].(string); ok {
				body = v
			}
		}
	}
	return body
}

// enclosureLinks renders enclosures and media as anchors so they are
// numbered along with the body's links.
func enclosureLinks(attrs map[string]any) string {
	var b strings.Builder
	add := func(href, typ string) {
		if href == "" {
			return
		}
		if typ == "" {
			typ = "unknown"
		}
		if b.Len() == 0 {
			b.WriteString("<br><br>")
		}
		fmt.Fprintf(&b, `<a href="%s">(%s)</a><br>`, html.EscapeString(href), html.EscapeString(typ))
	}
	for _, item := range listAttr(attrs, "enclosures") {
		add(stringAttr(item, "href"), stringAttr(item, "type"))
	}
	for _, item := range listAttr(attrs, "media_content") {
		add(stringAttr(item, "url"), stringAttr(item, "type"))
	}
	return b.String()
}

func stringAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func listAttr(attrs map[string]any, key string) []map[string]any {
	items, _ := attrs[key].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func findBodyNode(node *nethtml.Node) *nethtml.Node {
	if node == nil {
		return nil
	}
	if node.Type == nethtml.ElementNode && strings.EqualFold(node.Data, "body") {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findBodyNode(child); found != nil {
			return found
		}
	}
	return nil
}

func nodeAttr(node *nethtml.Node, name string) string {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

func hasAttr(node *nethtml.Node, name string) bool {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return true
		}
	}
	return false
}

func collectRawText(node *nethtml.Node) string {
	if node == nil {
		return ""
	}
	if node.Type == nethtml.TextNode {
		return node.Data
	}
	var b strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(collectRawText(child))
	}
	return b.String()
}
