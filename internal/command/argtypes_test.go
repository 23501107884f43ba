package command

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func storySpec(log *slog.Logger) RangeSpec[string] {
	all := []string{"s0", "s1", "s2", "s3", "s4"}
	return RangeSpec[string]{
		Name: "item-list",
		Domains: map[string][]string{
			DomainAll: all,
			"tag":     {"s2", "s3"},
		},
		Syms: map[string]map[string][]int{
			DomainAll: {"*": {0, 1, 2, 3, 4}, ".": {2}},
			"tag":     {"*": {0, 1}, ".": {0}},
		},
		Fallback: []string{"s2"},
		Log:      log,
	}
}

func TestIntRange(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"0", []string{"s0"}},
		{"3,1", []string{"s3", "s1"}},
		{"1-3", []string{"s1", "s2", "s3"}},
		{"1,1,1-2", []string{"s1", "s2"}},
		{"*", []string{"s0", "s1", "s2", "s3", "s4"}},
		{"1,*", []string{"s1", "s0", "s2", "s3", "s4"}},
		{".", []string{"s2"}},
		{"0-.", []string{"s0", "s1", "s2"}},
		{".-4", []string{"s2", "s3", "s4"}},
		{"1-*", []string{"s1", "s2", "s3", "s4"}},
		{"tag,*", []string{"s2", "s3"}},
		{"tag,1,all,0", []string{"s3", "s0"}},
		{"tag,0,all,2", []string{"s2"}},
		{"tag,0-.", []string{"s2"}},
		{"", []string{"s2"}},
		{"bogus", []string{"s2"}},
		{"3-1", []string{"s2"}},
		{" 4 , 0 ", []string{"s4", "s0"}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, IntRange(storySpec(nil), tc.in))
		})
	}
}

func TestIntRange_ReportsOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	got := IntRange(storySpec(log), "1,9,tag,5,0-7")
	require.Equal(t, []string{"s1"}, got)

	out := buf.String()
	require.Equal(t, 3, strings.Count(out, "item-list"), out)
	require.Contains(t, out, "index 9 outside all")
	require.Contains(t, out, "range stop 7 outside")
}

func TestIntRange_FallbackIsCopied(t *testing.T) {
	spec := storySpec(nil)
	got := IntRange(spec, "")
	got[0] = "changed"
	require.Equal(t, "s2", spec.Fallback[0])
}

func TestRangeType_CompletesDomains(t *testing.T) {
	typ := RangeType("item-list", "stories", func() RangeSpec[string] { return storySpec(nil) })
	completions, validate := typ.Factory()
	require.Equal(t, []string{"tag"}, completions)

	v, err := validate("0,1")
	require.NoError(t, err)
	require.Equal(t, []string{"s0", "s1"}, v)
}

func TestEnum(t *testing.T) {
	typ := Enum("style", "update style", func() []string { return []string{"maintain", "append", "prepend"} })
	completions, validate := typ.Factory()
	require.Equal(t, []string{"append", "maintain", "prepend"}, completions)

	v, err := validate("append")
	require.NoError(t, err)
	require.Equal(t, "append", v)

	_, err = validate("sideways")
	require.Error(t, err)

	v, err = validate("")
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestBuiltinInt(t *testing.T) {
	typ := Builtins()[2]
	require.Equal(t, "int", typ.Name)
	_, validate := typ.Factory()
	v, err := validate("-1")
	require.NoError(t, err)
	require.Equal(t, -1, v)
	_, err = validate("one")
	require.Error(t, err)
}
