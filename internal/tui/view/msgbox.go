package view

import (
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/markup"
	"github.com/glabrego/canto-ng/internal/mirror"
)

// NewErrorBox shows error_msg until it is dismissed.
func NewErrorBox(env *Env) *TextBox {
	return newMessageBox(env, "errorbox", mirror.VarErrorMsg, "%[error]", "%0")
}

// NewInfoBox shows info_msg.
func NewInfoBox(env *Env) *TextBox {
	return newMessageBox(env, "infobox", mirror.VarInfoMsg, "", "")
}

func newMessageBox(env *Env, name, msgVar, open, close string) *TextBox {
	t := newTextBox(env, name, func() string {
		return open + markup.Escape(env.Mirror.VarString(msgVar)) + close
	})
	t.extra = func() ([]command.Command, []command.ArgType) {
		return []command.Command{{
			Name: "destroy", Group: name, Help: "Dismiss the message",
			Run: func([]any) error {
				env.Mirror.SetVar(t.offsetVar(), 0)
				env.Mirror.SetVar(msgVar, "")
				return nil
			},
		}}, nil
	}
	return t
}

// MessageVar is the var a message box displays.
func MessageVar(name string) string {
	switch name {
	case "errorbox":
		return mirror.VarErrorMsg
	case "infobox":
		return mirror.VarInfoMsg
	}
	return ""
}

// Sink collects user-facing log records into the message vars. A message
// arriving while an earlier one is still shown is appended below it.
type Sink struct {
	Mirror *mirror.Mirror
}

func (s Sink) Info(msg string)  { s.add(mirror.VarInfoMsg, msg) }
func (s Sink) Error(msg string) { s.add(mirror.VarErrorMsg, msg) }

func (s Sink) add(name, msg string) {
	if cur := s.Mirror.VarString(name); cur != "" {
		msg = cur + "\n" + msg
	}
	s.Mirror.SetVar(name, msg)
}
