package markup

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnbalanced = errors.New("unbalanced conditional")

// Env maps interpolation keys to values. String values are inserted as-is,
// so callers escape plain text with Escape before adding it.
type Env map[string]any

// Node is either Text or Cond.
type Node interface {
	node()
}

// Text is a run of markup that still carries its interpolations and style
// codes.
type Text string

// Cond is a %?{expr}(then:else) conditional.
type Cond struct {
	Expr string
	Then Tree
	Else Tree
}

func (Text) node() {}
func (Cond) node() {}

type Tree []Node

// Parse splits every conditional out of s, recursively.
func Parse(s string) (Tree, error) {
	var tree Tree
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			tree = append(tree, Text(text.String()))
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			text.WriteByte(c)
			if i+1 < len(s) {
				i++
				text.WriteByte(s[i])
			}
		case c == '%' && strings.HasPrefix(s[i:], "%?{"):
			flush()
			cond, next, err := parseCond(s, i)
			if err != nil {
				return nil, err
			}
			tree = append(tree, cond)
			i = next - 1
		case c == '%' && strings.HasPrefix(s[i:], "%{"):
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated %%{ at %d", ErrUnbalanced, i)
			}
			text.WriteString(s[i : i+end+1])
			i += end
		default:
			text.WriteByte(c)
		}
	}
	flush()
	return tree, nil
}

// parseCond parses the conditional starting at s[start] and returns the
// index just past its closing paren.
func parseCond(s string, start int) (Cond, int, error) {
	i := start + len("%?{")
	end := strings.IndexByte(s[i:], '}')
	if end < 0 {
		return Cond{}, 0, fmt.Errorf("%w: unterminated condition at %d", ErrUnbalanced, start)
	}
	code := s[i : i+end]
	i += end + 1
	if i >= len(s) || s[i] != '(' {
		return Cond{}, 0, fmt.Errorf("%w: expected ( after %%?{%s}", ErrUnbalanced, code)
	}
	i++

	depth, braces := 1, 0
	branchStart := i
	var thenRaw string
	haveThen := false
	for ; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			i++
		case c == '{':
			braces++
		case c == '}' && braces > 0:
			braces--
		case braces > 0:
		case c == '(':
			depth++
		case c == ':' && depth == 1 && !haveThen:
			thenRaw = s[branchStart:i]
			haveThen = true
			branchStart = i + 1
		case c == ')':
			depth--
			if depth > 0 {
				continue
			}
			elseRaw := s[branchStart:i]
			if !haveThen {
				thenRaw, elseRaw = elseRaw, ""
			}
			then, err := Parse(thenRaw)
			if err != nil {
				return Cond{}, 0, err
			}
			els, err := Parse(elseRaw)
			if err != nil {
				return Cond{}, 0, err
			}
			return Cond{Expr: code, Then: then, Else: els}, i + 1, nil
		}
	}
	return Cond{}, 0, fmt.Errorf("%w: missing ) for %%?{%s}", ErrUnbalanced, code)
}

// Eval flattens the tree against env. Conditions and %{expr} run through the
// expression evaluator; single-character interpolations are looked up in
// env; every other code is passed through for the renderer.
func (t Tree) Eval(env Env) (string, error) {
	var out strings.Builder
	if err := t.eval(&out, env); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (t Tree) eval(out *strings.Builder, env Env) error {
	for _, n := range t {
		switch n := n.(type) {
		case Text:
			if err := evalText(out, string(n), env); err != nil {
				return err
			}
		case Cond:
			v, err := EvalValue(n.Expr, env)
			if err != nil {
				return err
			}
			branch := n.Else
			if Truthy(v) {
				branch = n.Then
			}
			if err := branch.eval(out, env); err != nil {
				return err
			}
		}
	}
	return nil
}

func evalText(out *strings.Builder, s string, env Env) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			out.WriteByte(c)
			if i+1 < len(s) {
				i++
				out.WriteByte(s[i])
			}
			continue
		}
		if c != '%' || i+1 >= len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		switch k := s[i]; k {
		case '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return fmt.Errorf("%w: unterminated %%{", ErrUnbalanced)
			}
			v, err := EvalValue(s[i+1:i+end], env)
			if err != nil {
				return err
			}
			out.WriteString(Format(v))
			i += end
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				out.WriteString("%[")
				continue
			}
			out.WriteString("%" + s[i:i+end+1])
			i += end
		default:
			if v, ok := env[string(k)]; ok {
				out.WriteString(Format(v))
				continue
			}
			out.WriteByte('%')
			out.WriteByte(k)
		}
	}
	return nil
}

// Render parses and evaluates s in one call.
func Render(s string, env Env) (string, error) {
	tree, err := Parse(s)
	if err != nil {
		return "", err
	}
	return tree.Eval(env)
}

// Escape makes plain text safe to embed in markup.
func Escape(s string) string {
	if !strings.ContainsAny(s, `\%`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if r == '\\' || r == '%' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Strip removes codes and escapes, leaving only printable text. Conditionals
// are not evaluated, so s should already be flattened.
func Strip(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '%':
			if i+1 >= len(s) {
				continue
			}
			i++
			if s[i] == '[' {
				if end := strings.IndexByte(s[i:], ']'); end >= 0 {
					i += end
				}
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
