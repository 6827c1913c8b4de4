// Package terminal renders command output and answers confirmation requests
// on the user's terminal.
package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/log"
)

// Terminal is the command line's input and output.
type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	ansi        bool
	interactive bool
	lock        sync.Mutex
}

// New detects whether in and out are attached to a terminal.
func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:          bufio.NewReader(in),
		out:         out,
		ansi:        isTerminal(out),
		interactive: isTerminal(in) && isTerminal(out),
	}
}

// NewStdio is New(os.Stdin, os.Stdout).
func NewStdio() *Terminal { return New(os.Stdin, os.Stdout) }

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsANSITerminal reports whether output supports colour.
func (t *Terminal) IsANSITerminal() bool { return t.ansi }

// Interactive reports whether the user can answer prompts.
func (t *Terminal) Interactive() bool { return t.interactive }

// Printf writes formatted output.
func (t *Terminal) Printf(format string, args ...any) {
	t.lock.Lock()
	defer t.lock.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// PrintJSON pretty prints a JSON document, coloured on ANSI terminals.
func (t *Terminal) PrintJSON(data []byte) {
	formatted := pretty.Pretty(data)
	if t.ansi {
		formatted = pretty.Color(formatted, nil)
	}
	t.Printf("%s", formatted)
}

// PrintValue marshals v and pretty prints it.
func (t *Terminal) PrintValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	t.PrintJSON(data)
	return nil
}

// Table writes aligned rows under a header.
func (t *Terminal) Table(header []string, rows [][]string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	w := tabwriter.NewWriter(t.out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush() //nolint:errcheck
}

// Confirm asks a yes/no question. Anything but "y" or "yes" is a no.
func (t *Terminal) Confirm(prompt string) (bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	fmt.Fprintf(t.out, "%s [y/N] ", prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ServeConfirmations answers the channel's confirmation requests by
// prompting, until ctx is cancelled. Requests are declined when the terminal
// is not interactive.
func (t *Terminal) ServeConfirmations(ctx context.Context, fb *feedback.Channel) {
	logger := log.FromContext(ctx).Scope("terminal")
	fb.Serve(ctx, func(request *feedback.Confirmation) {
		if !t.interactive {
			logger.Warnf("%s declined: not running in a terminal, pass --yes to confirm", request.Prompt)
			request.Decline()
			return
		}
		yes, err := t.Confirm(request.Prompt)
		if err != nil {
			logger.Warnf("%s", err)
		}
		if yes {
			request.Accept()
		} else {
			request.Decline()
		}
	})
}

type contextKey struct{}

// ContextWithTerminal stores t in ctx.
func ContextWithTerminal(ctx context.Context, t *Terminal) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the Terminal in ctx, or one on stdio.
func FromContext(ctx context.Context) *Terminal {
	if t, ok := ctx.Value(contextKey{}).(*Terminal); ok {
		return t
	}
	return NewStdio()
}
