package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/markup"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/actions"
)

var errUnknownRemote = errors.New("unknown remote command")

// gui holds the commands that exist regardless of which window has focus.
type gui struct {
	screen   *Screen
	svc      Service
	mirror   *mirror.Mirror
	dispatch *command.Dispatcher
	fx       *effects
	log      *slog.Logger
	owner    hooks.Owner

	exitTimeout      time.Duration
	reconnectTimeout time.Duration
	exiting          bool
}

func (g *gui) register() {
	reg := g.dispatch.Registry()
	reg.RegisterArgTypes(g.owner, command.Builtins()...)
	reg.RegisterArgTypes(g.owner, g.optionType())
	reg.RegisterAliases(g.owner, command.DefaultAliases())
	reg.RegisterCommands(g.owner, g.commands()...)
}

func (g *gui) commands() []command.Command {
	text := func(name, prompt string) []command.Arg {
		return []command.Arg{{Name: name, Type: "string", Prompt: prompt}}
	}
	return []command.Command{
		{Name: "command", Group: "gui", Help: "Run a command line",
			Args: text("line", ":"),
			Run:  func(a []any) error { return g.dispatch.Execute(a[0].(string)) }},
		{Name: "quit", Group: "gui", Help: "Leave the front-end",
			Run: func([]any) error { g.quit(); return nil }},
		{Name: "exit", Group: "gui", Help: "Leave the front-end",
			Run: func([]any) error { g.quit(); return nil }},
		{Name: "toggle", Group: "gui", Help: "Flip a boolean option",
			Args: []command.Arg{{Name: "opt", Type: "option", Prompt: "opt: "}},
			Run:  func(a []any) error { return g.mirror.Toggle(a[0].(string)) }},
		{Name: "bind", Group: "gui", Help: "Show or change what a key runs",
			Args: []command.Arg{{Name: "key", Type: "word", Prompt: "key: "}, {Name: "cmd", Type: "string"}},
			Run:  func(a []any) error { return g.bind(a[0].(string), a[1].(string)) }},
		{Name: "tags", Group: "gui", Help: "Show or set the regex selecting visible tags",
			Args: []command.Arg{{Name: "regex", Type: "string"}},
			Run:  func(a []any) error { return g.tags(a[0].(string)) }},
		{Name: "refresh", Group: "gui", Help: "Fetch every visible tag again",
			Run: func([]any) error { g.svc.Refresh(); return nil }},
		{Name: "reconnect", Group: "gui", Help: "Connect to the daemon again",
			Run: func([]any) error {
				g.fx.add(actions.ReconnectCmd(g.svc, g.reconnectTimeout))
				return nil
			}},
		{Name: "transform", Group: "gui", Help: "Set the daemon's global transform",
			Args: text("transform", "transform: "),
			Run:  func(a []any) error { return g.svc.Transform(a[0].(string), false) }},
		{Name: "temp-transform", Group: "gui", Help: "Set a transform for this connection only",
			Args: text("transform", "transform: "),
			Run:  func(a []any) error { return g.svc.Transform(a[0].(string), true) }},
		{Name: "remote", Group: "gui", Help: "Run a remote-style command against the mirrored config",
			Args: text("args", "remote: "),
			Run:  func(a []any) error { return g.remote(command.Split(a[0].(string))) }},
		{Name: "help", Group: "gui", Help: "List commands, or describe one",
			Args: []command.Arg{{Name: "command", Type: "string"}},
			Run:  func(a []any) error { return g.help(a[0].(string)) }},
	}
}

// optionType accepts any existing option path of the front-end config.
func (g *gui) optionType() command.ArgType {
	return command.ArgType{
		Name: "option", Help: "A config option, as a dotted path",
		Factory: func() ([]string, command.Validator) {
			return optionPaths(g.mirror.Conf(), ""), func(raw string) (any, error) {
				raw = strings.TrimSpace(raw)
				if _, ok := g.mirror.Opt(raw); !ok || raw == "" {
					return nil, fmt.Errorf("unknown option: %s", raw)
				}
				return raw, nil
			}
		},
	}
}

func optionPaths(n mirror.Node, prefix string) []string {
	if n.Kind != mirror.KindMap {
		return []string{prefix}
	}
	var out []string
	for _, k := range n.Keys() {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out = append(out, optionPaths(n.M[k], path)...)
	}
	return out
}

func (g *gui) quit() {
	if g.exiting {
		return
	}
	g.exiting = true
	g.fx.add(actions.ExitCmd(g.svc, g.exitTimeout))
}

func (g *gui) bind(key, cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		if cur, ok := g.screen.Binding(key); ok {
			g.log.Info(fmt.Sprintf("%s = %s", key, cur))
		} else {
			g.log.Info(fmt.Sprintf("%s is unbound.", key))
		}
		return nil
	}
	return g.screen.Bind(key, cmd)
}

func (g *gui) tags(regex string) error {
	if strings.TrimSpace(regex) == "" {
		g.log.Info("tags = " + g.mirror.OptString("tags"))
		return nil
	}
	return g.mirror.SetOpt("tags", regex)
}

// remote applies the config-editing subset of the remote tool's commands
// through the mirror.
func (g *gui) remote(words []string) error {
	if len(words) == 0 {
		return fmt.Errorf("remote: %w", command.ErrBadArgument)
	}
	switch words[0] {
	case "one-config":
		return g.oneConfig(words[1:])
	case "addfeed":
		if len(words) < 2 {
			return fmt.Errorf("addfeed: %w: missing URL", command.ErrBadArgument)
		}
		return g.mirror.AddFeed(words[1], strings.Join(words[2:], " "))
	case "delfeed":
		if len(words) < 2 {
			return fmt.Errorf("delfeed: %w: missing feed", command.ErrBadArgument)
		}
		return g.mirror.DelFeed(strings.Join(words[1:], " "))
	case "listfeeds":
		for _, f := range g.mirror.Feeds() {
			if f.Name != "" {
				g.log.Info(fmt.Sprintf("%s  %s", f.Name, f.URL))
			} else {
				g.log.Info(f.URL)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", errUnknownRemote, words[0])
}

// oneConfig handles "one-config [--eval] path [value]". Without a value
// the current setting is shown.
func (g *gui) oneConfig(args []string) error {
	eval := false
	if len(args) > 0 && args[0] == "--eval" {
		eval, args = true, args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("one-config: %w: missing option", command.ErrBadArgument)
	}
	path := args[0]
	if len(args) == 1 {
		g.log.Info(fmt.Sprintf("%s = %s", path, g.currentValue(path)))
		return nil
	}
	raw := strings.Join(args[1:], " ")
	var value any = raw
	if eval {
		v, err := markup.EvalValue(raw, nil)
		if err != nil {
			return fmt.Errorf("one-config %s: %w", path, err)
		}
		value = v
	}
	return g.mirror.SetPath(path, value)
}

func (g *gui) currentValue(path string) string {
	section, rest, _ := strings.Cut(path, ".")
	switch section {
	case "CantoCurses":
		if n, ok := g.mirror.Opt(rest); ok {
			return n.String()
		}
	case "defaults":
		if v, ok := g.mirror.Defaults()[rest]; ok {
			return fmt.Sprint(v)
		}
	}
	return "(unset)"
}

func (g *gui) help(name string) error {
	reg := g.dispatch.Registry()
	name = strings.TrimSpace(name)
	if name == "" {
		groups := reg.Groups()
		names := make([]string, 0, len(groups))
		for group := range groups {
			names = append(names, group)
		}
		sort.Strings(names)
		for _, group := range names {
			var cmds []string
			for _, c := range groups[group] {
				cmds = append(cmds, c.Name)
			}
			g.log.Info(fmt.Sprintf("%s: %s", group, strings.Join(cmds, ", ")))
		}
		return nil
	}
	c, ok := reg.Command(name)
	if !ok {
		if long, aliased := reg.Alias(name); aliased {
			g.log.Info(fmt.Sprintf("%s is an alias for %s", name, long))
			return nil
		}
		return fmt.Errorf("%w: %s", command.ErrUnknownCommand, name)
	}
	usage := c.Name
	for _, a := range c.Args {
		usage += " [" + a.Name + "]"
	}
	g.log.Info(usage + "\n" + c.Help)
	return nil
}
