package webrepl

import (
	"bytes"
	"context"
	"os"

	"golang.org/x/term"
)

// detachKey ends an interactive terminal session (Ctrl-]).
const detachKey = 0x1D

// Terminal bridges the local terminal to the device console for
// interactive use. It puts the local terminal into raw mode so control
// characters (Ctrl-C, Ctrl-D, tab completion) reach the device REPL
// instead of the local shell. Console output arrives via the session's
// OnConsole callback, which the caller wires to stdout.
type Terminal struct {
	session *Session
	in      *os.File
}

// NewTerminal creates a terminal bridge reading local input from in,
// normally os.Stdin.
func NewTerminal(session *Session, in *os.File) *Terminal {
	return &Terminal{
		session: session,
		in:      in,
	}
}

// Run pumps local input to the device console until the detach key
// (Ctrl-]) is pressed, ctx is done, or the session closes. The
// terminal is restored before returning.
func (t *Terminal) Run(ctx context.Context) error {
	fd := int(t.in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	errCh := make(chan error, 1)
	go t.inputLoop(errCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (t *Terminal) inputLoop(errCh chan<- error) {
	buf := make([]byte, 128)
	for {
		n, err := t.in.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		data := buf[:n]

		if i := bytes.IndexByte(data, detachKey); i >= 0 {
			if i > 0 {
				t.session.SendConsole(append([]byte(nil), data[:i]...))
			}
			errCh <- nil
			return
		}

		if err := t.session.SendConsole(append([]byte(nil), data...)); err != nil {
			errCh <- err
			return
		}
	}
}
