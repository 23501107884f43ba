package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var namedKeys = map[string]string{
	" ":         "space",
	"pgdown":    "npage",
	"pgup":      "ppage",
	"shift+tab": "btab",
	"esc":       "escape",
	"delete":    "dc",
	"insert":    "ic",
}

// keyName turns a key event into the name used by the key config
// sections: "space", "npage", "C-x", "M-x" or the key itself.
func keyName(msg tea.KeyMsg) string {
	s := msg.String()
	if name, ok := namedKeys[s]; ok {
		return name
	}
	switch {
	case strings.HasPrefix(s, "ctrl+"):
		return "C-" + strings.TrimPrefix(s, "ctrl+")
	case strings.HasPrefix(s, "alt+"):
		return "M-" + strings.TrimPrefix(s, "alt+")
	}
	return s
}

// printable returns the text a key inserts into the input line, if any.
func printable(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeySpace:
		return " "
	case tea.KeyRunes:
		if msg.Alt {
			return ""
		}
		return string(msg.Runes)
	}
	return ""
}
