package store

// Update styles accepted by update.style.
const (
	StyleMaintain = "maintain"
	StyleAppend   = "append"
	StylePrepend  = "prepend"
)

// Reconcile computes the story order a view should show after its core
// moved from shown to ids. Stories that left the core are dropped unless
// keep holds them; those survive as undead, at their old position relative
// to their neighbors.
//
// maintain follows the daemon order for everything. append keeps the shown
// order and adds new ids after it, prepend adds them before.
func Reconcile(shown, ids []string, style string, keep func(id string) bool) (order, undead []string) {
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}
	wasShown := make(map[string]struct{}, len(shown))
	for _, id := range shown {
		wasShown[id] = struct{}{}
	}

	var kept []string
	for _, id := range shown {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
			continue
		}
		if keep != nil && keep(id) {
			kept = append(kept, id)
			undead = append(undead, id)
		}
	}
	var fresh []string
	for _, id := range ids {
		if _, ok := wasShown[id]; !ok {
			fresh = append(fresh, id)
		}
	}

	switch style {
	case StyleMaintain:
		order = maintainOrder(shown, ids, undead)
	case StylePrepend:
		order = append(append(order, fresh...), kept...)
	default:
		order = append(append(order, kept...), fresh...)
	}
	return order, undead
}

// maintainOrder is ids with each undead id placed after the nearest
// surviving story that preceded it on screen.
func maintainOrder(shown, ids, undead []string) []string {
	if len(undead) == 0 {
		return append([]string(nil), ids...)
	}
	dead := make(map[string]struct{}, len(undead))
	for _, id := range undead {
		dead[id] = struct{}{}
	}
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}

	after := map[string][]string{}
	var lead []string
	prev := ""
	for _, id := range shown {
		if _, ok := dead[id]; ok {
			if prev == "" {
				lead = append(lead, id)
			} else {
				after[prev] = append(after[prev], id)
			}
			continue
		}
		if _, ok := present[id]; ok {
			prev = id
		}
	}

	out := make([]string, 0, len(ids)+len(undead))
	out = append(out, lead...)
	for _, id := range ids {
		out = append(out, id)
		out = append(out, after[id]...)
	}
	return out
}
