package mirror

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindBool
	KindString
	KindList
	KindMap
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindOpaque:
		return "opaque"
	}
	return "invalid"
}

// Node is one value of a config tree. Exactly one payload field is
// meaningful, selected by Kind. Values the mirror does not understand are
// carried as KindOpaque so they round-trip untouched.
type Node struct {
	Kind Kind
	I    int
	B    bool
	S    string
	L    []string
	M    map[string]Node
	Raw  any
}

func Int(v int) Node       { return Node{Kind: KindInt, I: v} }
func Bool(v bool) Node     { return Node{Kind: KindBool, B: v} }
func String(v string) Node { return Node{Kind: KindString, S: v} }
func Opaque(v any) Node    { return Node{Kind: KindOpaque, Raw: v} }

func List(items ...string) Node {
	return Node{Kind: KindList, L: append([]string{}, items...)}
}

func Map(m map[string]Node) Node {
	if m == nil {
		m = map[string]Node{}
	}
	return Node{Kind: KindMap, M: m}
}

// FromValue converts decoded JSON (or plain Go values) into a Node.
func FromValue(v any) Node {
	switch t := v.(type) {
	case Node:
		return t.Clone()
	case nil:
		return Opaque(nil)
	case bool:
		return Bool(t)
	case int:
		return Int(t)
	case int64:
		return Int(int(t))
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return Int(int(t))
		}
		return Opaque(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Int(int(n))
		}
		if f, err := t.Float64(); err == nil {
			return Opaque(f)
		}
		return Opaque(t.String())
	case string:
		return String(t)
	case []string:
		return List(t...)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return Opaque(t)
			}
			items = append(items, s)
		}
		return List(items...)
	case map[string]any:
		m := make(map[string]Node, len(t))
		for k, child := range t {
			m[k] = FromValue(child)
		}
		return Map(m)
	case map[string]Node:
		return Map(t).Clone()
	}
	return Opaque(v)
}

// Value converts n back into plain Go values suitable for JSON encoding.
func (n Node) Value() any {
	switch n.Kind {
	case KindInt:
		return n.I
	case KindBool:
		return n.B
	case KindString:
		return n.S
	case KindList:
		return append([]string{}, n.L...)
	case KindMap:
		out := make(map[string]any, len(n.M))
		for k, child := range n.M {
			out[k] = child.Value()
		}
		return out
	case KindOpaque:
		return n.Raw
	}
	return nil
}

func (n Node) Clone() Node {
	switch n.Kind {
	case KindList:
		return List(n.L...)
	case KindMap:
		m := make(map[string]Node, len(n.M))
		for k, child := range n.M {
			m[k] = child.Clone()
		}
		return Map(m)
	}
	return n
}

func Equal(a, b Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.I == b.I
	case KindBool:
		return a.B == b.B
	case KindString:
		return a.S == b.S
	case KindList:
		if len(a.L) != len(b.L) {
			return false
		}
		for i := range a.L {
			if a.L[i] != b.L[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.M) != len(b.M) {
			return false
		}
		for k, av := range a.M {
			bv, ok := b.M[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindOpaque:
		return reflect.DeepEqual(a.Raw, b.Raw)
	}
	return true
}

// Get walks a dotted path through nested maps.
func (n Node) Get(path string) (Node, bool) {
	cur := n
	for _, key := range splitPath(path) {
		if cur.Kind != KindMap {
			return Node{}, false
		}
		child, ok := cur.M[key]
		if !ok {
			return Node{}, false
		}
		cur = child
	}
	return cur, true
}

// Set stores v at a dotted path, creating intermediate maps. It fails when
// an intermediate value exists and is not a map.
func (n *Node) Set(path string, v Node) bool {
	keys := splitPath(path)
	if len(keys) == 0 {
		return false
	}
	if n.Kind != KindMap {
		return false
	}
	cur := n.M
	for _, key := range keys[:len(keys)-1] {
		child, ok := cur[key]
		if !ok {
			child = Map(nil)
			cur[key] = child
		}
		if child.Kind != KindMap {
			return false
		}
		cur = child.M
	}
	cur[keys[len(keys)-1]] = v
	return true
}

func (n Node) Keys() []string {
	keys := make([]string, 0, len(n.M))
	for k := range n.M {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (n Node) String() string {
	switch n.Kind {
	case KindInt, KindBool, KindOpaque:
		raw, err := json.Marshal(n.Value())
		if err != nil {
			return "?"
		}
		return string(raw)
	case KindString:
		return n.S
	}
	raw, err := json.Marshal(n.Value())
	if err != nil {
		return "?"
	}
	return string(raw)
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
