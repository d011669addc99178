// Package session implements spec.md §4.8's event loop for curses mode:
// a socket-reader goroutine feeding the receive window (channel.Open) and
// gocui's own keybinding callbacks feeding the send path (channel.Seal).
// The two goroutines share the AuthContext; its sequence counters are
// serialized by the AuthContext's own mutex.
//
// Line mode has no gocui screen to own, so it is driven directly from
// cmd/ktalk instead of through this package (SPEC_FULL.md §4.7/§4.9).
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"blitter.com/go/ktalk/internal/channel"
	"blitter.com/go/ktalk/internal/frame"
	"blitter.com/go/ktalk/internal/krb5auth"
	"blitter.com/go/ktalk/internal/logger"
	"blitter.com/go/ktalk/internal/tui"
)

// Run starts the curses-mode UI, wires it to conn/ctx, displays banner,
// and blocks until the peer hangs up, a fatal protocol error occurs, or
// the user interrupts (SIGINT/SIGTERM). On interrupt it returns nil after
// printing spec.md §4.9's "exiting due to interrupt" message; any other
// termination returns the error that caused it. conn is the same
// *frame.Conn the handshake ran over, so the buffered reader it
// accumulated carries forward into the chat loop (see internal/frame's
// Conn doc comment).
func Run(conn *frame.Conn, ctx *krb5auth.AuthContext, banner string) error {
	ui, err := tui.New()
	if err != nil {
		return fmt.Errorf("session: starting terminal UI: %w", err)
	}

	var interrupted atomic.Bool
	var sessionErr atomic.Value // holds error

	ui.OnLine = func(line []byte) {
		blob, err := channel.Seal(ctx, line)
		if err != nil {
			sessionErr.Store(fmt.Errorf("session: sealing line: %w", err))
			ui.Quit()
			return
		}
		if err := frame.WriteFrame(conn, blob); err != nil {
			sessionErr.Store(fmt.Errorf("session: writing frame: %w", err))
			ui.Quit()
		}
	}

	go readLoop(conn, ctx, ui, &sessionErr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		interrupted.Store(true)
		ui.Quit()
	}()

	ui.DisplayBanner(banner)

	if err := ui.Run(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if interrupted.Load() {
		fmt.Fprintln(os.Stderr, "exiting due to interrupt")
		return nil
	}
	if v := sessionErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// readLoop is the socket-reader goroutine of spec.md §4.8 step 2: read
// one frame, open it, display it, repeat until the peer hangs up or a
// protocol error occurs. A clean io.EOF ends the session without error.
func readLoop(conn *frame.Conn, ctx *krb5auth.AuthContext, ui *tui.UI, sessionErr *atomic.Value) {
	for {
		blob, err := frame.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				sessionErr.Store(fmt.Errorf("session: reading frame: %w", err))
				logger.Err(fmt.Sprintf("session: reading frame: %v", err))
			}
			ui.Quit()
			return
		}
		line, err := channel.Open(ctx, blob)
		if err != nil {
			sessionErr.Store(fmt.Errorf("session: %w", err))
			logger.Err(fmt.Sprintf("session: open: %v", err))
			ui.Quit()
			return
		}
		ui.DisplayLine(line)
	}
}
