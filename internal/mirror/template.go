package mirror

import (
	"strconv"

	"github.com/glabrego/canto-ng/internal/tui/theme"
)

// ConfigVersion is the config_version written by this front-end.
const ConfigVersion = 1

const (
	DefaultStoryFormat = "%[1]%?{en}([%i] :)%?{ren}([%x] :)%?{sel}(%{selected}:%{unselected})" +
		"%?{rd}(%{read}:%{unread})%?{m}(%{marked}:%{unmarked})%t" +
		"%?{m}(%{marked_end}:%{unmarked_end})%?{rd}(%{read_end}:%{unread_end})" +
		"%?{sel}(%{selected_end}:%{unselected_end})%0"

	DefaultTagFormat = "%[1]%?{sel}(%{selected}:%{unselected})%?{c}([+]:[-])" +
		"%?{en}([%{to}]:)%?{aen}([%{vto}]:) %t [%B%2%n%1%b]" +
		"%?{sel}(%{selected_end}:%{unselected_end})%0"
)

func window(float bool, align, border string) map[string]any {
	return map[string]any{
		"maxwidth":  0,
		"maxheight": 0,
		"float":     float,
		"align":     align,
		"border":    border,
	}
}

func textboxKeys() map[string]any {
	return map[string]any{
		"down":  "scroll-down",
		"up":    "scroll-up",
		"npage": "page-down",
		"ppage": "page-up",
		"space": "destroy",
	}
}

// ColorDefaults is the color section of a fresh version 1 config.
func ColorDefaults() map[string]any {
	c := map[string]any{"deffg": -1, "defbg": -1}
	for n, pair := range theme.DefaultPairs() {
		if pair.BG == -1 {
			c[strconv.Itoa(n)] = pair.FG
			continue
		}
		c[strconv.Itoa(n)] = map[string]any{"fg": pair.FG, "bg": pair.BG}
	}
	for name, pair := range theme.DefaultNames() {
		c[name] = pair
	}
	return c
}

// Template returns a fresh copy of the built-in CantoCurses config.
func Template() Node {
	return FromValue(map[string]any{
		"browser": map[string]any{
			"path": "firefox %u",
			"text": false,
		},
		"tags":     `maintag:.*`,
		"tagorder": []string{},
		"tag": map[string]any{
			"format":         DefaultTagFormat,
			"selected":       "%R",
			"unselected":     "",
			"selected_end":   "%r",
			"unselected_end": "",
		},
		"update": map[string]any{
			"style": "append",
			"auto": map[string]any{
				"interval": 20,
				"enabled":  true,
			},
		},
		"reader": map[string]any{
			"window":           window(true, "topleft", "smart"),
			"enumerate_links":  false,
			"show_description": true,
			"show_enclosures":  true,
			"key": map[string]any{
				"space": "destroy",
				"d":     "toggle reader.show_description",
				"l":     "toggle reader.enumerate_links",
				"g":     "goto",
				"f":     "fetch",
				"y":     "yank",
				"down":  "scroll-down",
				"up":    "scroll-up",
				"j":     "scroll-down",
				"k":     "scroll-up",
				"npage": "page-down",
				"ppage": "page-up",
				"n":     "destroy & rel-set-cursor 1 & item-state read & reader",
				"p":     "destroy & rel-set-cursor -1 & item-state read & reader",
			},
		},
		"taglist": map[string]any{
			"window":                   window(false, "neutral", "none"),
			"tags_enumerated":          false,
			"tags_enumerated_absolute": false,
			"hide_empty_tags":          true,
			"border":                   false,
			"search_attributes":        []string{"title"},
			"key": map[string]any{
				"space": "foritem & item-state read & reader",
				"g":     "foritems & goto & item-state read & clearitems",
				"E":     "toggle taglist.tags_enumerated",
				"e":     "toggle story.enumerated",
				"R":     "item-state read *",
				"U":     "item-state -read *",
				"r":     "tag-state read",
				"u":     "tag-state -read",
				"npage": "page-down",
				"ppage": "page-up",
				"down":  "rel-set-cursor 1",
				"j":     "rel-set-cursor 1",
				"up":    "rel-set-cursor -1",
				"k":     "rel-set-cursor -1",
				"C-u":   "unset-cursor",
				"+":     "promote",
				"-":     "demote",
				"J":     "next-tag",
				"K":     "prev-tag",
				"c":     "toggle-collapse",
				"C":     "collapse *",
				"V":     "uncollapse *",
				"$":     "item-state read tag,0-.",
				"/":     "search",
				"?":     "search-regex",
				"n":     "next-marked",
				"p":     "prev-marked",
				"M":     "item-state -marked *",
				"y":     "foritem & yank & clearitems",
			},
			"cursor": map[string]any{
				"type":   "edge",
				"scroll": "scroll",
				"edge":   5,
			},
		},
		"story": map[string]any{
			"enumerated":     false,
			"format":         DefaultStoryFormat,
			"format_attrs":   []string{"title"},
			"selected":       "%R",
			"unselected":     "",
			"selected_end":   "%r",
			"unselected_end": "",
			"read":           "%[read]",
			"unread":         "%[unread]%B",
			"read_end":       "%0",
			"unread_end":     "%b%0",
			"marked":         "*%[marked]%B",
			"unmarked":       "",
			"marked_end":     "%b%0",
			"unmarked_end":   "",
		},
		"input": map[string]any{
			"window": window(false, "bottom", "none"),
			"key": map[string]any{
				"left":      "left",
				"right":     "right",
				"backspace": "backspace",
				"C-a":       "home",
				"C-e":       "end",
				"enter":     "submit",
				"C-g":       "cancel",
				"tab":       "complete",
			},
		},
		"errorbox": map[string]any{
			"window": window(true, "topleft", "full"),
			"key":    textboxKeys(),
		},
		"infobox": map[string]any{
			"window": window(true, "topleft", "full"),
			"key":    textboxKeys(),
		},
		"main": map[string]any{
			"key": map[string]any{
				":":  "command",
				"q":  "quit",
				"\\": "refresh",
			},
		},
		"screen": map[string]any{
			"key": map[string]any{
				"tab": "focus-rel 1",
			},
		},
		"color":               ColorDefaults(),
		"kill_daemon_on_exit": false,
		"config_version":      ConfigVersion,
	})
}

// TagTemplate is the config a tag gets before the daemon sends its own.
func TagTemplate() Node {
	return FromValue(map[string]any{
		"enumerated": false,
		"collapsed":  false,
		"extra_tags": []string{},
		"transform":  "",
	})
}
