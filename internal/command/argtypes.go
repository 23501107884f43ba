package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// DomainAll is the domain an int-range starts in.
const DomainAll = "all"

// Builtin argument types.
func Builtins() []ArgType {
	return []ArgType{
		{
			Name: "string",
			Help: "Any text",
			Factory: func() ([]string, Validator) {
				return nil, func(raw string) (any, error) { return raw, nil }
			},
		},
		{
			Name: "word",
			Help: "A single word without whitespace",
			Factory: func() ([]string, Validator) {
				return nil, validateWord
			},
		},
		{
			Name: "int",
			Help: "An integer",
			Factory: func() ([]string, Validator) {
				return nil, func(raw string) (any, error) {
					n, err := strconv.Atoi(strings.TrimSpace(raw))
					if err != nil {
						return nil, fmt.Errorf("not an integer: %q", raw)
					}
					return n, nil
				}
			},
		},
	}
}

func validateWord(raw string) (any, error) {
	if raw == "" || strings.ContainsFunc(raw, unicode.IsSpace) {
		return nil, fmt.Errorf("not a single word: %q", raw)
	}
	return raw, nil
}

// Enum builds a type that accepts one of the words values returns. An empty
// raw value is accepted as "" so handlers can report the current state.
func Enum(name, help string, values func() []string) ArgType {
	return ArgType{
		Name: name,
		Help: help,
		Factory: func() ([]string, Validator) {
			vals := values()
			sorted := append([]string(nil), vals...)
			sort.Strings(sorted)
			return sorted, func(raw string) (any, error) {
				if raw == "" {
					return "", nil
				}
				for _, v := range vals {
					if v == raw {
						return raw, nil
					}
				}
				return nil, fmt.Errorf("unknown %s: %q", name, raw)
			}
		},
	}
}

// RangeSpec is the state an int-range is resolved against. Domains maps a
// domain name to the objects it indexes; DomainAll must be present. Syms
// maps domain to symbol to indices, e.g. "*" to every index and "." to the
// current one.
type RangeSpec[T comparable] struct {
	Name     string
	Domains  map[string][]T
	Syms     map[string]map[string][]int
	Fallback []T
	Log      *slog.Logger
}

type rangeIndex struct {
	domain string
	idx    int
}

var errNoBound = errors.New("no such bound")

func (s RangeSpec[T]) bound(domain, raw string, stop bool) (int, error) {
	if sym, ok := s.Syms[domain][raw]; ok {
		if len(sym) == 0 {
			return 0, errNoBound
		}
		if stop {
			return sym[len(sym)-1], nil
		}
		return sym[0], nil
	}
	return strconv.Atoi(raw)
}

func (s RangeSpec[T]) warn(msg string, args ...any) {
	if s.Log != nil {
		s.Log.Info(fmt.Sprintf(msg, args...))
	}
}

// IntRange resolves a comma list of indices, ranges, symbols and domain
// switches into a de-duplicated list of objects, in the order given.
// Indices that fall outside their domain are reported and skipped. When
// nothing resolves the fallback is returned.
func IntRange[T comparable](s RangeSpec[T], input string) []T {
	domain := DomainAll
	var idxs []rangeIndex
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := s.Domains[item]; ok {
			domain = item
			continue
		}
		if dash := strings.Index(item, "-"); dash > 0 {
			size := len(s.Domains[domain])
			start, err := s.bound(domain, item[:dash], false)
			if err != nil {
				s.warn("%s: bad range start %q", s.Name, item[:dash])
				continue
			}
			if start < 0 || start >= size {
				s.warn("%s: range start %d outside 0-%d", s.Name, start, size-1)
				continue
			}
			stop, err := s.bound(domain, item[dash+1:], true)
			if err != nil {
				s.warn("%s: bad range stop %q", s.Name, item[dash+1:])
				continue
			}
			if stop < 0 || stop >= size {
				s.warn("%s: range stop %d outside 0-%d", s.Name, stop, size-1)
				continue
			}
			for i := start; i <= stop; i++ {
				idxs = append(idxs, rangeIndex{domain, i})
			}
			continue
		}
		if sym, ok := s.Syms[domain][item]; ok {
			for _, i := range sym {
				idxs = append(idxs, rangeIndex{domain, i})
			}
			continue
		}
		n, err := strconv.Atoi(item)
		if err != nil {
			s.warn("%s: ignoring %q", s.Name, item)
			continue
		}
		idxs = append(idxs, rangeIndex{domain, n})
	}

	seenIdx := map[rangeIndex]struct{}{}
	seen := map[T]struct{}{}
	var out []T
	for _, ri := range idxs {
		if _, dup := seenIdx[ri]; dup {
			continue
		}
		seenIdx[ri] = struct{}{}
		objs := s.Domains[ri.domain]
		if ri.idx < 0 || ri.idx >= len(objs) {
			s.warn("%s: index %d outside %s (%d items)", s.Name, ri.idx, ri.domain, len(objs))
			continue
		}
		obj := objs[ri.idx]
		if _, dup := seen[obj]; dup {
			continue
		}
		seen[obj] = struct{}{}
		out = append(out, obj)
	}
	if len(out) == 0 {
		return append([]T(nil), s.Fallback...)
	}
	return out
}

// RangeType registers an int-range argument. spec is evaluated each time
// the type is used so indices refer to what is on screen at that moment.
// Domain names complete.
func RangeType[T comparable](name, help string, spec func() RangeSpec[T]) ArgType {
	return ArgType{
		Name: name,
		Help: help,
		Factory: func() ([]string, Validator) {
			s := spec()
			s.Name = name
			completions := make([]string, 0, len(s.Domains))
			for d := range s.Domains {
				if d != DomainAll {
					completions = append(completions, d)
				}
			}
			sort.Strings(completions)
			return completions, func(raw string) (any, error) {
				return IntRange(s, raw), nil
			}
		},
	}
}
