package mirror

import (
	"reflect"

	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/protocol"
)

const (
	VarErrorMsg       = "error_msg"
	VarInfoMsg        = "info_msg"
	VarInputPrompt    = "input_prompt"
	VarReaderItem     = "reader_item"
	VarReaderOffset   = "reader_offset"
	VarErrorboxOffset = "errorbox_offset"
	VarInfoboxOffset  = "infobox_offset"
	VarSelected       = "selected"
	VarProtectedIDs   = "protected_ids"
)

// Identified is implemented by story handles stored in the selected and
// reader_item vars.
type Identified interface {
	ItemID() string
}

func defaultVars() map[string]any {
	return map[string]any{
		VarErrorMsg:       "",
		VarInfoMsg:        "",
		VarInputPrompt:    "",
		VarReaderItem:     nil,
		VarReaderOffset:   0,
		VarErrorboxOffset: 0,
		VarInfoboxOffset:  0,
		VarSelected:       nil,
		VarProtectedIDs:   []string{},
	}
}

// Var returns the value of a front-end variable, or nil if it is unset.
func (m *Mirror) Var(name string) any {
	m.vmu.RLock()
	defer m.vmu.RUnlock()
	return m.vars[name]
}

func (m *Mirror) VarString(name string) string {
	s, _ := m.Var(name).(string)
	return s
}

func (m *Mirror) VarInt(name string) int {
	n, _ := m.Var(name).(int)
	return n
}

// SetVar assigns a variable and publishes var_change when the value moved.
// Messages always publish so a repeated error is shown again. Changing the
// selected story or the reader item moves the daemon's filter protection
// from the old story to the new one.
func (m *Mirror) SetVar(name string, value any) {
	var requests []request

	m.vmu.Lock()
	old := m.vars[name]
	message := name == VarErrorMsg || name == VarInfoMsg
	if sameValue(old, value) && !(message && value != "") {
		m.vmu.Unlock()
		return
	}
	if name == VarSelected || name == VarReaderItem {
		ids, _ := m.vars[VarProtectedIDs].([]string)
		if prev, ok := old.(Identified); ok && prev != nil {
			ids = removeOne(ids, prev.ItemID())
			requests = append(requests, request{cmd: protocol.CmdUnprotect, args: map[string]any{"filter-immune": []string{prev.ItemID()}}})
		}
		if next, ok := value.(Identified); ok && next != nil {
			ids = append(ids, next.ItemID())
			requests = append(requests, request{cmd: protocol.CmdProtect, args: map[string]any{"filter-immune": []string{next.ItemID()}}})
		}
		m.vars[VarProtectedIDs] = ids
	}
	m.vars[name] = value
	m.vmu.Unlock()

	m.mu.RLock()
	out := m.out
	m.mu.RUnlock()
	for _, r := range requests {
		if err := out.Write(r.cmd, r.args); err != nil {
			m.log.Warn("protection write failed", "cmd", r.cmd, "error", err)
		}
	}
	m.bus.Publish(hooks.VarChange, map[string]any{name: value})
}

// ProtectedIDs lists ids that must survive ITEMSDONE pruning.
func (m *Mirror) ProtectedIDs() []string {
	m.vmu.RLock()
	defer m.vmu.RUnlock()
	ids, _ := m.vars[VarProtectedIDs].([]string)
	return append([]string(nil), ids...)
}

// Info and Error let the mirror act as the log tee's sink.
func (m *Mirror) Info(msg string)  { m.SetVar(VarInfoMsg, msg) }
func (m *Mirror) Error(msg string) { m.SetVar(VarErrorMsg, msg) }

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func removeOne(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
