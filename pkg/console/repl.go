package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// DefaultPrompt is the REPL prompt.
const DefaultPrompt = "> "

// REPL reads command lines from rw until EOF or ctx is done. Command
// errors are printed and do not end the loop. Cancellation is noticed
// between lines.
func (e *Engine) REPL(ctx context.Context, rw io.ReadWriter, prompt string) error {
	t := term.NewTerminal(rw, prompt)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.ExecLine(ctx, line, t); err != nil {
			fmt.Fprintf(t, "Error: %v\n", err)
		}
	}
}

// ExecLine tokenizes line and runs it. Blank lines do nothing.
func (e *Engine) ExecLine(ctx context.Context, line string, out io.Writer) error {
	args, err := Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	return e.Exec(ctx, args, out)
}

type stdio struct {
	io.Reader
	io.Writer
}

// RunStdio runs the REPL on the process's standard input and output,
// switching the terminal to raw mode when stdin is a TTY.
func (e *Engine) RunStdio(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, oldState)
	}
	return e.REPL(ctx, stdio{os.Stdin, os.Stdout}, DefaultPrompt)
}
