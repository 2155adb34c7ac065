package console

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// Terminal is the local line editor console. Lines are kept in an in-memory
// history for the session.
type Terminal struct {
	rl *readline.Instance
}

// NewTerminal opens the terminal with the given prompt.
func NewTerminal(prompt string) (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       prompt,
		HistoryLimit: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open console: %w", err)
	}
	return &Terminal{rl: rl}, nil
}

// Stdout returns a writer that prints above the prompt.
func (t *Terminal) Stdout() io.Writer { return t.rl.Stdout() }

// Close releases the terminal. A blocked ReadLine returns io.EOF.
func (t *Terminal) Close() error { return t.rl.Close() }

// ReadLine reads one line. End of input yields io.EOF and Ctrl-C yields
// readline.ErrInterrupt.
func (t *Terminal) ReadLine() (string, error) {
	return t.rl.Readline()
}

// Feed forwards every terminal line to out until end of input, an interrupt
// or ctx is done. It prints "Exiting..." on end of input and "^C" on an
// interrupt.
func (t *Terminal) Feed(ctx context.Context, out chan<- Line) error {
	stdout := t.Stdout()
	for {
		text, err := t.ReadLine()
		switch {
		case err == nil:
		case errors.Is(err, readline.ErrInterrupt):
			fmt.Fprintln(stdout, "^C")
			return nil
		case errors.Is(err, io.EOF):
			if ctx.Err() == nil {
				fmt.Fprintln(stdout, "Exiting...")
			}
			return nil
		default:
			fmt.Fprintf(stdout, "Received err: %v\n", err)
			fmt.Fprintln(stdout, "Exiting...")
			return err
		}

		select {
		case out <- Line{Text: text, Out: stdout}:
		case <-ctx.Done():
			return nil
		}
	}
}
