package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Inbound is a decoded daemon message. The set of implementations is closed;
// consumers switch over it exhaustively.
type Inbound interface {
	inbound()
}

type Version struct{ Value float64 }

type Configs struct{ Sections map[string]any }

type ListTags struct{ Tags []string }

type NewTags struct{ Tags []string }

type DelTags struct{ Tags []string }

type TagChange struct{ Tag string }

type Items struct {
	Tag string
	IDs []string
}

type ItemsDone struct{}

type Attributes struct{ Stories map[string]map[string]any }

type Pong struct{}

type Errors struct{ Entries map[string]any }

type Info struct{ Text string }

type Except struct{ Text string }

// Hangup is synthesized by the reader when the socket closes.
type Hangup struct{ Err error }

func (Version) inbound()    {}
func (Configs) inbound()    {}
func (ListTags) inbound()   {}
func (NewTags) inbound()    {}
func (DelTags) inbound()    {}
func (TagChange) inbound()  {}
func (Items) inbound()      {}
func (ItemsDone) inbound()  {}
func (Attributes) inbound() {}
func (Pong) inbound()       {}
func (Errors) inbound()     {}
func (Info) inbound()       {}
func (Except) inbound()     {}
func (Hangup) inbound()     {}

// Decode turns a raw frame into its typed variant.
func Decode(m Message) (Inbound, error) {
	switch m.Cmd {
	case CmdVersion:
		var v float64
		if err := unmarshal(m.Args, &v); err != nil {
			return nil, fmt.Errorf("decode VERSION: %w", err)
		}
		return Version{Value: v}, nil
	case CmdConfigs:
		sections := map[string]any{}
		if err := unmarshal(m.Args, &sections); err != nil {
			return nil, fmt.Errorf("decode CONFIGS: %w", err)
		}
		return Configs{Sections: sections}, nil
	case CmdListTags, CmdNewTags, CmdDelTags:
		var tags []string
		if err := unmarshal(m.Args, &tags); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Cmd, err)
		}
		switch m.Cmd {
		case CmdListTags:
			return ListTags{Tags: tags}, nil
		case CmdNewTags:
			return NewTags{Tags: tags}, nil
		}
		return DelTags{Tags: tags}, nil
	case CmdTagChange:
		var tag string
		if err := unmarshal(m.Args, &tag); err != nil {
			return nil, fmt.Errorf("decode TAGCHANGE: %w", err)
		}
		return TagChange{Tag: tag}, nil
	case CmdItems:
		byTag := map[string][]string{}
		if err := unmarshal(m.Args, &byTag); err != nil {
			return nil, fmt.Errorf("decode ITEMS: %w", err)
		}
		if len(byTag) != 1 {
			return nil, fmt.Errorf("decode ITEMS: expected one tag, got %d", len(byTag))
		}
		for tag, ids := range byTag {
			return Items{Tag: tag, IDs: ids}, nil
		}
	case CmdItemsDone:
		return ItemsDone{}, nil
	case CmdAttributes:
		stories := map[string]map[string]any{}
		if err := unmarshal(m.Args, &stories); err != nil {
			return nil, fmt.Errorf("decode ATTRIBUTES: %w", err)
		}
		return Attributes{Stories: stories}, nil
	case CmdPong:
		return Pong{}, nil
	case CmdErrors:
		entries := map[string]any{}
		if err := unmarshal(m.Args, &entries); err != nil {
			return nil, fmt.Errorf("decode ERRORS: %w", err)
		}
		return Errors{Entries: entries}, nil
	case CmdInfo, CmdExcept:
		text := textArg(m.Args)
		if m.Cmd == CmdInfo {
			return Info{Text: text}, nil
		}
		return Except{Text: text}, nil
	}
	return nil, fmt.Errorf("unknown daemon command %q", m.Cmd)
}

// Messages flattens the daemon's {key: [value, [ok, symptom]]} error shape.
func (e Errors) Messages() []string {
	keys := make([]string, 0, len(e.Entries))
	for k := range e.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		val, symptom := "", ""
		if pair, ok := e.Entries[k].([]any); ok && len(pair) == 2 {
			val = fmt.Sprint(pair[0])
			if detail, ok := pair[1].([]any); ok && len(detail) == 2 {
				symptom = fmt.Sprint(detail[1])
			}
		} else {
			val = fmt.Sprint(e.Entries[k])
		}
		if symptom == "" {
			out = append(out, fmt.Sprintf("%s = %s", k, val))
			continue
		}
		out = append(out, fmt.Sprintf("%s = %s : %s", k, val, symptom))
	}
	return out
}

func unmarshal(raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func textArg(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
