// Package console implements the device's diagnostic command tables.
//
// Commands are organised as nested Engines: the top-level "matter" command
// dispatches to a sub-engine holding "esp", "onboardingcodes" and
// "config", and "esp" dispatches further. A line typed at the REPL or
// received by the UDP remote console is tokenized with Split and run with
// Exec.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Errors returned by the engine.
var (
	ErrDuplicateCommand = errors.New("console: duplicate command")
	ErrUnknownCommand   = errors.New("console: unknown command")
	ErrInvalidArgs      = errors.New("console: invalid arguments")
	ErrUnavailable      = errors.New("console: feature not available")
)

// Handler runs a command. args excludes the command name.
type Handler func(ctx context.Context, args []string, out io.Writer) error

// Command is one entry of a command table.
type Command struct {
	Name        string
	Description string
	Handler     Handler
}

// Engine is a command table.
type Engine struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewEngine returns an empty command table.
func NewEngine() *Engine {
	return &Engine{commands: make(map[string]Command)}
}

// RegisterCommands adds cmds to the table. Nothing is registered when any
// name is empty or already taken.
func (e *Engine) RegisterCommands(cmds ...Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		if c.Name == "" || c.Handler == nil {
			return fmt.Errorf("%w: command %q needs a name and a handler", ErrInvalidArgs, c.Name)
		}
		if _, ok := e.commands[c.Name]; ok || seen[c.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, c.Name)
		}
		seen[c.Name] = true
	}
	for _, c := range cmds {
		e.commands[c.Name] = c
	}
	return nil
}

// ForEachCommand calls fn for every command in name order until fn
// returns an error.
func (e *Engine) ForEachCommand(fn func(Command) error) error {
	e.mu.RLock()
	cmds := make([]Command, 0, len(e.commands))
	for _, c := range e.commands {
		cmds = append(cmds, c)
	}
	e.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	for _, c := range cmds {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Exec runs the command named by args[0] with the remaining args. With no
// args it prints the table.
func (e *Engine) Exec(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return e.PrintHelp(out)
	}
	e.mu.RLock()
	c, ok := e.commands[args[0]]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	return c.Handler(ctx, args[1:], out)
}

// PrintHelp writes one line per command.
func (e *Engine) PrintHelp(out io.Writer) error {
	return e.ForEachCommand(func(c Command) error {
		_, err := fmt.Fprintf(out, "  %-20s %s\n", c.Name, c.Description)
		return err
	})
}

// Dispatch returns a handler that runs args on sub, so a command can own a
// nested table.
func Dispatch(sub *Engine) Handler {
	return func(ctx context.Context, args []string, out io.Writer) error {
		return sub.Exec(ctx, args, out)
	}
}
