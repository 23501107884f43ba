package command

import (
	"strings"
	"unicode"
)

// Token is one shell word with its byte span in the source line. Start is
// where the word begins (including any opening quote) and End is where it
// stops.
type Token struct {
	Text   string
	Start  int
	End    int
	Quoted bool
}

// Tokens splits line into words using POSIX-like rules:
//   - unquoted whitespace separates words
//   - single quotes keep everything literally up to the next single quote
//   - double quotes keep everything; backslash escapes only " and \ inside
//   - outside quotes a backslash escapes the next character
//
// Quoted and unquoted runs that touch form one word. An unterminated quote
// runs to the end of the line.
func Tokens(line string) []Token {
	var (
		out      []Token
		buf      strings.Builder
		start    = -1
		quoted   bool
		inSingle bool
		inDouble bool
		esc      bool
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		out = append(out, Token{Text: buf.String(), Start: start, End: end, Quoted: quoted})
		buf.Reset()
		start = -1
		quoted = false
	}
	begin := func(i int) {
		if start < 0 {
			start = i
		}
	}

	for i, r := range line {
		if esc {
			if inDouble && r != '"' && r != '\\' {
				buf.WriteRune('\\')
			}
			buf.WriteRune(r)
			esc = false
			continue
		}
		switch {
		case inSingle:
			if r == '\'' {
				inSingle = false
				continue
			}
			buf.WriteRune(r)
		case inDouble:
			switch r {
			case '"':
				inDouble = false
			case '\\':
				esc = true
			default:
				buf.WriteRune(r)
			}
		case r == '\'':
			begin(i)
			inSingle, quoted = true, true
		case r == '"':
			begin(i)
			inDouble, quoted = true, true
		case r == '\\':
			begin(i)
			esc = true
		case unicode.IsSpace(r):
			flush(i)
		default:
			begin(i)
			buf.WriteRune(r)
		}
	}
	if esc && !inDouble {
		buf.WriteRune('\\')
	}
	flush(len(line))
	return out
}

// Split returns just the words of line.
func Split(line string) []string {
	toks := Tokens(line)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}

func needsQuote(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(`'"\&;|$`+"`", r)
}

// Quote returns s in a form Split reads back as the single word s.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, needsQuote) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Join quotes each word and joins them with spaces.
func Join(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	return strings.Join(quoted, " ")
}

// SplitChain splits a command string at every & that is not quoted or
// escaped. Each part is trimmed; empty parts are dropped.
func SplitChain(line string) []string {
	var out []string
	last := 0
	for _, cut := range append(chainCuts(line), len(line)) {
		if part := strings.TrimSpace(line[last:cut]); part != "" {
			out = append(out, part)
		}
		last = cut + 1
	}
	return out
}

// chainCuts returns the byte offsets of the separating &s in line.
func chainCuts(line string) []int {
	var (
		cuts     []int
		inSingle bool
		inDouble bool
		esc      bool
	)
	for i, r := range line {
		if esc {
			esc = false
			continue
		}
		switch {
		case inSingle:
			inSingle = r != '\''
		case r == '\\':
			esc = true
		case inDouble:
			inDouble = r != '"'
		case r == '\'':
			inSingle = true
		case r == '"':
			inDouble = true
		case r == '&':
			cuts = append(cuts, i)
		}
	}
	return cuts
}
