package command

import (
	"errors"
	"sort"
	"sync"

	"github.com/glabrego/canto-ng/internal/hooks"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad argument")
	ErrCancelled      = errors.New("cancelled")
)

// Validator checks one raw argument and converts it to the value the
// handler receives.
type Validator func(raw string) (any, error)

// ArgType is a named argument kind. Factory is called each time the type is
// used, so completions reflect current state.
type ArgType struct {
	Name    string
	Help    string
	Factory func() (completions []string, validate Validator)
	// PreComplete runs before completions are computed.
	PreComplete func()
}

// Arg declares one argument of a command. When the argument is missing and
// Prompt is set, the user is asked for it.
type Arg struct {
	Name   string
	Type   string
	Prompt string
}

type Command struct {
	Name  string
	Args  []Arg
	Help  string
	Group string
	Run   func(args []any) error
}

type layer[T any] struct {
	owner hooks.Owner
	v     T
}

type stack[T any] map[string][]layer[T]

func (s stack[T]) push(owner hooks.Owner, name string, v T) {
	s[name] = append(s[name], layer[T]{owner: owner, v: v})
}

func (s stack[T]) top(name string) (T, bool) {
	layers := s[name]
	if len(layers) == 0 {
		var zero T
		return zero, false
	}
	return layers[len(layers)-1].v, true
}

func (s stack[T]) drop(owner hooks.Owner) {
	for name, layers := range s {
		kept := layers[:0]
		for _, l := range layers {
			if l.owner != owner {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(s, name)
			continue
		}
		s[name] = kept
	}
}

func (s stack[T]) names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry holds commands, aliases and argument types. Every entry is a
// stack of layers: the most recent registration shadows older ones, and
// removing an owner uncovers whatever it shadowed.
type Registry struct {
	mu      sync.RWMutex
	cmds    stack[Command]
	aliases stack[string]
	types   stack[ArgType]
}

func NewRegistry() *Registry {
	return &Registry{
		cmds:    stack[Command]{},
		aliases: stack[string]{},
		types:   stack[ArgType]{},
	}
}

func (r *Registry) RegisterCommands(owner hooks.Owner, cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		r.cmds.push(owner, c.Name, c)
	}
}

func (r *Registry) RegisterAliases(owner hooks.Owner, aliases map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range sortedKeys(aliases) {
		r.aliases.push(owner, name, aliases[name])
	}
}

func (r *Registry) RegisterArgTypes(owner hooks.Owner, types ...ArgType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.types.push(owner, t.Name, t)
	}
}

// UnregisterAll removes every layer owner registered.
func (r *Registry) UnregisterAll(owner hooks.Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds.drop(owner)
	r.aliases.drop(owner)
	r.types.drop(owner)
}

func (r *Registry) Command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cmds.top(name)
}

func (r *Registry) Alias(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aliases.top(name)
}

func (r *Registry) ArgType(name string) (ArgType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types.top(name)
}

// Commands lists the visible command names, sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cmds.names()
}

// Aliases returns the visible alias table.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.aliases))
	for name := range r.aliases {
		out[name], _ = r.aliases.top(name)
	}
	return out
}

// Groups maps each help group to its visible commands.
func (r *Registry) Groups() map[string][]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]Command{}
	for _, name := range r.cmds.names() {
		c, _ := r.cmds.top(name)
		out[c.Group] = append(out[c.Group], c)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
