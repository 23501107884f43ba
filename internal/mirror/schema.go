package mirror

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Validator checks a leaf value. It returns the coerced value to store;
// old is the value being replaced.
type Validator func(v, old Node) (Node, error)

// Schema mirrors the shape of a config tree: sections hold children,
// leaves hold a validator.
type Schema struct {
	Check    Validator
	Children map[string]*Schema
}

func leaf(v Validator) *Schema { return &Schema{Check: v} }

func section(children map[string]*Schema) *Schema { return &Schema{Children: children} }

var errBadValue = errors.New("invalid value")

func validateUint(v, _ Node) (Node, error) {
	switch v.Kind {
	case KindInt:
		if v.I >= 0 {
			return v, nil
		}
	case KindString:
		if n, err := strconv.Atoi(strings.TrimSpace(v.S)); err == nil && n >= 0 {
			return Int(n), nil
		}
	}
	return Node{}, fmt.Errorf("%w: want a non-negative integer", errBadValue)
}

func validateBool(v, _ Node) (Node, error) {
	switch v.Kind {
	case KindBool:
		return v, nil
	case KindString:
		switch strings.ToLower(v.S) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
	}
	return Node{}, fmt.Errorf("%w: want a boolean", errBadValue)
}

func validateString(v, _ Node) (Node, error) {
	if v.Kind != KindString {
		return Node{}, fmt.Errorf("%w: want a string", errBadValue)
	}
	return v, nil
}

func oneOf(choices ...string) Validator {
	return func(v, _ Node) (Node, error) {
		if v.Kind == KindString {
			for _, c := range choices {
				if v.S == c {
					return v, nil
				}
			}
		}
		return Node{}, fmt.Errorf("%w: want one of %s", errBadValue, strings.Join(choices, ", "))
	}
}

func validateRegexp(v, _ Node) (Node, error) {
	if v.Kind != KindString {
		return Node{}, fmt.Errorf("%w: want a regular expression", errBadValue)
	}
	if _, err := regexp.Compile(v.S); err != nil {
		return Node{}, fmt.Errorf("%w: %v", errBadValue, err)
	}
	return v, nil
}

func validateStringList(v, _ Node) (Node, error) {
	if v.Kind != KindList {
		return Node{}, fmt.Errorf("%w: want a list of strings", errBadValue)
	}
	return List(v.L...), nil
}

var (
	floatAligns = []string{"topleft", "topright", "center", "neutral", "bottomleft", "bottomright"}
	tileAligns  = []string{"top", "left", "bottom", "right", "neutral"}
)

func validateWindow(v, old Node) (Node, error) {
	if v.Kind != KindMap {
		return Node{}, fmt.Errorf("%w: window settings must be a section", errBadValue)
	}
	w := fillFrom(v, old, "border", "maxwidth", "maxheight", "align", "float")

	if _, err := oneOf("full", "none", "smart")(w.M["border"], Node{}); err != nil {
		return Node{}, fmt.Errorf("border: %w", err)
	}
	if w.M["float"].Kind != KindBool {
		return Node{}, fmt.Errorf("float: %w: want a boolean", errBadValue)
	}
	for _, dim := range []string{"maxwidth", "maxheight"} {
		if n := w.M[dim]; n.Kind != KindInt || n.I < 0 {
			return Node{}, fmt.Errorf("%s: %w: want a non-negative integer", dim, errBadValue)
		}
	}
	aligns := tileAligns
	if w.M["float"].B {
		aligns = floatAligns
	}
	if _, err := oneOf(aligns...)(w.M["align"], Node{}); err != nil {
		return Node{}, fmt.Errorf("align %s: %w", w.M["align"], err)
	}
	return w, nil
}

// validateKeys accepts a key→command map. Bindings missing from the new
// map are kept from the old one; an empty command unbinds.
func validateKeys(v, old Node) (Node, error) {
	if v.Kind != KindMap {
		return Node{}, fmt.Errorf("%w: key bindings must be a section", errBadValue)
	}
	for key, cmd := range v.M {
		if cmd.Kind != KindString {
			return Node{}, fmt.Errorf("key %q: %w: want a command string", key, errBadValue)
		}
	}
	out := v.Clone()
	if old.Kind == KindMap {
		for key, cmd := range old.M {
			if _, ok := out.M[key]; !ok {
				out.M[key] = cmd
			}
		}
	}
	return out, nil
}

var colorNames = map[string]int{
	"default": -1,
	"black":   0,
	"red":     1,
	"green":   2,
	"yellow":  3,
	"blue":    4,
	"magenta": 5,
	"cyan":    6,
	"white":   7,
}

func colorValue(v Node) (int, bool) {
	switch v.Kind {
	case KindInt:
		return v.I, v.I >= -1 && v.I <= 255
	case KindString:
		if n, err := strconv.Atoi(v.S); err == nil {
			return n, n >= -1 && n <= 255
		}
		n, ok := colorNames[strings.ToLower(v.S)]
		return n, ok
	}
	return 0, false
}

// validateColor accepts a color index, a color name, or an {fg, bg} pair.
func validateColor(v, _ Node) (Node, error) {
	if n, ok := colorValue(v); ok {
		return Int(n), nil
	}
	if v.Kind == KindMap {
		out := map[string]Node{}
		for _, part := range []string{"fg", "bg"} {
			if c, ok := v.M[part]; ok {
				if n, ok := colorValue(c); ok {
					out[part] = Int(n)
				}
			}
		}
		if len(out) > 0 {
			return Map(out), nil
		}
	}
	return Node{}, fmt.Errorf("%w: want a color from -1 to 255 or an fg/bg pair", errBadValue)
}

func validatePairRef(v, _ Node) (Node, error) {
	n := v
	if v.Kind == KindString {
		i, err := strconv.Atoi(v.S)
		if err != nil {
			return Node{}, fmt.Errorf("%w: want a color pair number", errBadValue)
		}
		n = Int(i)
	}
	if n.Kind != KindInt || n.I < 1 || n.I > 256 {
		return Node{}, fmt.Errorf("%w: want a color pair from 1 to 256", errBadValue)
	}
	return n, nil
}

func validateCursor(v, old Node) (Node, error) {
	if v.Kind != KindMap {
		return Node{}, fmt.Errorf("%w: cursor settings must be a section", errBadValue)
	}
	c := fillFrom(v, old, "type", "scroll", "edge")
	if _, err := oneOf("edge", "top", "middle", "bottom")(c.M["type"], Node{}); err != nil {
		return Node{}, fmt.Errorf("cursor type: %w", err)
	}
	if _, err := oneOf("scroll", "page")(c.M["scroll"], Node{}); err != nil {
		return Node{}, fmt.Errorf("cursor scroll: %w", err)
	}
	if e := c.M["edge"]; e.Kind != KindInt || e.I < 0 {
		return Node{}, fmt.Errorf("cursor edge: %w: want an integer >= 0", errBadValue)
	}
	return c, nil
}

func fillFrom(v, old Node, keys ...string) Node {
	out := v.Clone()
	for _, k := range keys {
		if _, ok := out.M[k]; ok {
			continue
		}
		if old.Kind == KindMap {
			if d, ok := old.M[k]; ok {
				out.M[k] = d.Clone()
			}
		}
	}
	return out
}

func windowSchema() *Schema { return leaf(validateWindow) }
func keySchema() *Schema    { return leaf(validateKeys) }

// NamedColors are the symbolic color entries of the color section.
var NamedColors = []string{
	"unread", "read", "reader_link", "reader_image_link", "reader_quote",
	"reader_italics", "marked", "error", "pending", "enum_hints",
}

func colorSchema() *Schema {
	children := map[string]*Schema{
		"deffg": leaf(validateColor),
		"defbg": leaf(validateColor),
	}
	for i := 1; i <= 256; i++ {
		children[strconv.Itoa(i)] = leaf(validateColor)
	}
	for _, name := range NamedColors {
		children[name] = leaf(validatePairRef)
	}
	return section(children)
}

// mainSchema builds the validator tree for the CantoCurses section. The
// tagorder validator needs the live tag list, so it is supplied by the
// mirror.
func mainSchema(tagOrder Validator) *Schema {
	str := leaf(validateString)
	return section(map[string]*Schema{
		"browser": section(map[string]*Schema{
			"path": str,
			"text": leaf(validateBool),
		}),
		"tags":     leaf(validateRegexp),
		"tagorder": leaf(tagOrder),
		"tag": section(map[string]*Schema{
			"format":         str,
			"selected":       str,
			"unselected":     str,
			"selected_end":   str,
			"unselected_end": str,
		}),
		"update": section(map[string]*Schema{
			"style": leaf(oneOf("maintain", "append", "prepend")),
			"auto": section(map[string]*Schema{
				"interval": leaf(validateUint),
				"enabled":  leaf(validateBool),
			}),
		}),
		"reader": section(map[string]*Schema{
			"window":           windowSchema(),
			"enumerate_links":  leaf(validateBool),
			"show_description": leaf(validateBool),
			"show_enclosures":  leaf(validateBool),
			"key":              keySchema(),
		}),
		"taglist": section(map[string]*Schema{
			"window":                   windowSchema(),
			"tags_enumerated":          leaf(validateBool),
			"tags_enumerated_absolute": leaf(validateBool),
			"hide_empty_tags":          leaf(validateBool),
			"border":                   leaf(validateBool),
			"search_attributes":        leaf(validateStringList),
			"key":                      keySchema(),
			"cursor":                   leaf(validateCursor),
		}),
		"story": section(map[string]*Schema{
			"enumerated":     leaf(validateBool),
			"format":         str,
			"format_attrs":   leaf(validateStringList),
			"selected":       str,
			"unselected":     str,
			"selected_end":   str,
			"unselected_end": str,
			"read":           str,
			"unread":         str,
			"read_end":       str,
			"unread_end":     str,
			"marked":         str,
			"unmarked":       str,
			"marked_end":     str,
			"unmarked_end":   str,
		}),
		"input": section(map[string]*Schema{
			"window": windowSchema(),
			"key":    keySchema(),
		}),
		"errorbox": section(map[string]*Schema{
			"window": windowSchema(),
			"key":    keySchema(),
		}),
		"infobox": section(map[string]*Schema{
			"window": windowSchema(),
			"key":    keySchema(),
		}),
		"main":                section(map[string]*Schema{"key": keySchema()}),
		"screen":              section(map[string]*Schema{"key": keySchema()}),
		"color":               colorSchema(),
		"kill_daemon_on_exit": leaf(validateBool),
		"config_version":      leaf(validateUint),
	})
}

func tagSchema() *Schema {
	return section(map[string]*Schema{
		"enumerated": leaf(validateBool),
		"collapsed":  leaf(validateBool),
		"extra_tags": leaf(validateStringList),
		"transform":  leaf(validateString),
	})
}
