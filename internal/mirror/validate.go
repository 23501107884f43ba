package mirror

import (
	"fmt"
	"sort"
)

// Validate checks cur against s, falling back to old wherever a value is
// missing or rejected. cur must be a private copy; it is repaired in place.
//
// changes holds every leaf whose value differs from old. deletions holds
// children that old has but cur lacked, and for list leaves the entries
// that were dropped. Keys outside the schema are left alone and never
// reported. Each rejected value is passed to report.
func Validate(cur, old Node, s *Schema, report func(path string, err error)) (changes, deletions Node) {
	changes, deletions = Map(nil), Map(nil)
	if cur.Kind != KindMap || s == nil || s.Children == nil {
		return changes, deletions
	}
	if old.Kind != KindMap {
		old = Map(nil)
	}
	validateSection(cur.M, old.M, s.Children, "", changes.M, deletions.M, report)
	return changes, deletions
}

func validateSection(cur, old map[string]Node, schema map[string]*Schema, prefix string, changes, deletions map[string]Node, report func(string, error)) {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sch := schema[key]
		path := prefix + key
		prev, hadPrev := old[key]

		v, ok := cur[key]
		if !ok {
			if !hadPrev {
				continue
			}
			cur[key] = prev.Clone()
			deletions[key] = prev.Clone()
			continue
		}

		if sch.Children != nil {
			if v.Kind != KindMap {
				report(path, fmt.Errorf("%w: want a section", errBadValue))
				if hadPrev {
					cur[key] = prev.Clone()
				}
				continue
			}
			var prevMap map[string]Node
			if prev.Kind == KindMap {
				prevMap = prev.M
			}
			ch, del := map[string]Node{}, map[string]Node{}
			validateSection(v.M, prevMap, sch.Children, path+".", ch, del, report)
			if len(ch) > 0 {
				changes[key] = Map(ch)
			}
			if len(del) > 0 {
				deletions[key] = Map(del)
			}
			continue
		}

		nv, err := sch.Check(v, prev)
		if err != nil {
			report(path, fmt.Errorf("config %s was bad (%s), reverting to (%s): %w", path, v, prev, err))
			if hadPrev {
				cur[key] = prev.Clone()
			} else {
				delete(cur, key)
			}
			continue
		}
		cur[key] = nv
		if hadPrev && Equal(nv, prev) {
			continue
		}
		if nv.Kind == KindList && prev.Kind == KindList {
			if dropped := listDiff(nv.L, prev.L); len(dropped) > 0 {
				deletions[key] = List(dropped...)
			}
		}
		changes[key] = nv.Clone()
	}
}

// listDiff returns the entries of old missing from cur.
func listDiff(cur, old []string) []string {
	have := make(map[string]struct{}, len(cur))
	for _, s := range cur {
		have[s] = struct{}{}
	}
	var dropped []string
	for _, s := range old {
		if _, ok := have[s]; !ok {
			dropped = append(dropped, s)
		}
	}
	return dropped
}
