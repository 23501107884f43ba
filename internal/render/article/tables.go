package article

import (
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/glabrego/canto-ng/internal/markup"
)

// table prints one line per row with cells separated by bars. Header
// cells are bold. Links inside cells are kept as plain text.
func (c *converter) table(node *nethtml.Node) {
	rows := tableRows(node)
	if len(rows) == 0 {
		return
	}
	header := rowHasHeader(node)
	c.emit("\n")
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = markup.Escape(cell)
			if i == 0 && header {
				cells[j] = "%B" + cells[j] + "%b"
			}
		}
		c.emit("| " + strings.Join(cells, " | ") + " |\n")
		if i == 0 && header {
			sep := make([]string, len(row))
			for j := range sep {
				sep[j] = "---"
			}
			c.emit("| " + strings.Join(sep, " | ") + " |\n")
		}
	}
}

func tableRows(tableNode *nethtml.Node) [][]string {
	rows := make([][]string, 0, 8)
	var walk func(*nethtml.Node)
	walk = func(node *nethtml.Node) {
		if node == nil {
			return
		}
		if node.Type == nethtml.ElementNode && strings.ToLower(node.Data) == "tr" {
			row := make([]string, 0, 4)
			for cell := node.FirstChild; cell != nil; cell = cell.NextSibling {
				if cell.Type != nethtml.ElementNode {
					continue
				}
				tag := strings.ToLower(cell.Data)
				if tag != "th" && tag != "td" {
					continue
				}
				row = append(row, normalizeInlineText(collectRawText(cell)))
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(tableNode)
	return rows
}

func rowHasHeader(tableNode *nethtml.Node) bool {
	var found bool
	var walk func(*nethtml.Node)
	walk = func(node *nethtml.Node) {
		if found || node == nil {
			return
		}
		if node.Type == nethtml.ElementNode && strings.ToLower(node.Data) == "th" {
			found = true
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(tableNode)
	return found
}
