package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

// Prompter asks the user for a missing argument. It must return at once;
// resume runs later with the answer, or with ErrCancelled.
type Prompter func(label string, resume func(answer string, err error))

// Dispatcher parses command lines against a Registry and runs them.
type Dispatcher struct {
	reg    *Registry
	prompt Prompter
	log    *slog.Logger
}

func NewDispatcher(reg *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{reg: reg, log: logger.With("component", "command")}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

// SetPrompter installs the input prompt used for missing arguments.
func (d *Dispatcher) SetPrompter(p Prompter) { d.prompt = p }

// errSuspended means a prompt took over; the rest of the work continues in
// its callback.
var errSuspended = errors.New("suspended on prompt")

// Execute runs every &-separated command in line, in order. The first
// failure stops the chain; commands before it have already run. If a
// command prompts for input, Execute returns nil and the chain resumes once
// the prompt is answered; later failures are logged.
func (d *Dispatcher) Execute(line string) error {
	err := d.chain(SplitChain(line))
	if errors.Is(err, errSuspended) {
		return nil
	}
	return err
}

func (d *Dispatcher) chain(cmds []string) error {
	for i, line := range cmds {
		rest := cmds[i+1:]
		err := d.run(line, func(err error) {
			if err == nil && len(rest) > 0 {
				err = d.chain(rest)
			}
			if err != nil && !errors.Is(err, errSuspended) {
				d.report(err)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) report(err error) {
	if errors.Is(err, ErrCancelled) {
		d.log.Debug("command cancelled")
		return
	}
	d.log.Error(err.Error())
}

// Expand applies the alias table once to the words of a command: the
// longest alias whose words prefix the command, and which does not name a
// command itself, is replaced by its expansion.
func (d *Dispatcher) Expand(words []string) []string {
	best, bestLen := "", 0
	for alias := range d.reg.Aliases() {
		if _, isCmd := d.reg.Command(alias); isCmd {
			continue
		}
		aw := Split(alias)
		if len(aw) == 0 || len(aw) > len(words) || !hasPrefix(words, aw) {
			continue
		}
		if len(aw) > bestLen || (len(aw) == bestLen && alias > best) {
			best, bestLen = alias, len(aw)
		}
	}
	if bestLen == 0 {
		return words
	}
	long, _ := d.reg.Alias(best)
	d.log.Debug("alias expanded", "alias", best, "to", long)
	return append(Split(long), words[bestLen:]...)
}

// Resolve finds the command named by the longest prefix of words.
func (d *Dispatcher) Resolve(words []string) (Command, []string, bool) {
	for n := len(words); n > 0; n-- {
		if c, ok := d.reg.Command(strings.Join(words[:n], " ")); ok {
			return c, words[n:], true
		}
	}
	return Command{}, nil, false
}

type call struct {
	cmd  Command
	args []string
	vals []any
}

// raw returns the text for argument i. The last declared argument takes
// everything that is left, re-quoted.
func (c *call) raw(i int) (string, bool) {
	if i >= len(c.args) {
		return "", false
	}
	if i == len(c.cmd.Args)-1 && len(c.args)-i > 1 {
		return Join(c.args[i:]), true
	}
	return c.args[i], true
}

func (d *Dispatcher) run(line string, then func(error)) error {
	words := d.Expand(Split(line))
	if len(words) == 0 {
		return nil
	}
	cmd, args, ok := d.Resolve(words)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, words[0])
	}
	d.log.Debug("running command", "name", cmd.Name, "args", args)
	return d.bind(&call{cmd: cmd, args: args}, then)
}

func (d *Dispatcher) bind(c *call, then func(error)) error {
	for i := len(c.vals); i < len(c.cmd.Args); i++ {
		arg := c.cmd.Args[i]
		raw, present := c.raw(i)
		if !present && arg.Prompt != "" && d.prompt != nil {
			d.prompt(arg.Prompt, func(answer string, err error) {
				if err == nil {
					err = d.accept(c, i, answer)
				}
				if err == nil {
					err = d.bind(c, then)
				}
				if errors.Is(err, errSuspended) {
					return
				}
				then(err)
			})
			return errSuspended
		}
		if err := d.accept(c, i, raw); err != nil {
			return err
		}
	}
	if c.cmd.Run == nil {
		return nil
	}
	if err := c.cmd.Run(c.vals); err != nil {
		return fmt.Errorf("%s: %w", c.cmd.Name, err)
	}
	return nil
}

func (d *Dispatcher) accept(c *call, i int, raw string) error {
	arg := c.cmd.Args[i]
	typ, ok := d.reg.ArgType(arg.Type)
	if !ok || typ.Factory == nil {
		return fmt.Errorf("%s: unknown argument type %q", c.cmd.Name, arg.Type)
	}
	_, validate := typ.Factory()
	v, err := validate(raw)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", c.cmd.Name, ErrBadArgument, err)
	}
	c.vals = append(c.vals, v)
	return nil
}

// Complete returns the candidates for the word being typed at the end of
// line. In the command word that is every command and alias; after it, the
// completions of the argument type in that position.
func (d *Dispatcher) Complete(line string) []string {
	if cuts := chainCuts(line); len(cuts) > 0 {
		line = line[cuts[len(cuts)-1]+1:]
	}
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	toks := Tokens(line)
	var done []string
	prefix := ""
	for _, t := range toks {
		if t.End == len(line) {
			prefix = t.Text
			break
		}
		done = append(done, t.Text)
	}

	if len(done) == 0 {
		return matching(append(d.reg.Commands(), sortedKeys(d.reg.Aliases())...), prefix)
	}

	cmd, args, ok := d.Resolve(d.Expand(done))
	if !ok {
		return nil
	}
	k := len(args)
	if k >= len(cmd.Args) {
		return nil
	}
	typ, ok := d.reg.ArgType(cmd.Args[k].Type)
	if !ok || typ.Factory == nil {
		return nil
	}
	if typ.PreComplete != nil {
		typ.PreComplete()
	}
	completions, _ := typ.Factory()
	return matching(completions, prefix)
}

func matching(candidates []string, prefix string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range candidates {
		if !strings.HasPrefix(c, prefix) {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func hasPrefix(words, prefix []string) bool {
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}
