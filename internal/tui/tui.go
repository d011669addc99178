// Package tui implements the split-pane curses-mode terminal UI of
// spec.md §4.7: a scrolling receive_win over a one-line sep_win over a
// scrolling send_win, using github.com/jroimartin/gocui — present in the
// retrieval pack's dolthub-dolt manifest as a real go.mod dependency. The
// teacher itself has no curses UI (xs/xsd are line-oriented remote-shell
// clients), so this package is the one place ktalk leans on gocui's own
// documented API/idiom rather than the teacher's code directly.
package tui

import (
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"
)

const (
	receiveViewName = "receive"
	sepViewName     = "sep"
	sendViewName    = "send"

	// maxLineLen is the composition buffer's fixed capacity, including
	// the trailing NUL, per spec.md §4.7.
	maxLineLen = 1024
)

// UI owns the three gocui views and the in-progress composition buffer.
type UI struct {
	g   *gocui.Gui
	buf []byte

	// OnLine is invoked with a completed ChatLine (terminated by CR or
	// LF, trailing NUL appended) whenever the composition buffer fills
	// a line, per spec.md §4.7's last bullet. Set before calling Run.
	OnLine func(line []byte)
}

// New constructs a UI bound to a fresh gocui.Gui in curses mode: raw-ish
// terminal, no echo, no line buffering, keypad on — all handled for us by
// termbox underneath gocui, per spec.md §4.7.
func New() (*UI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, fmt.Errorf("tui: creating gui: %w", err)
	}
	u := &UI{g: g}
	g.Cursor = true
	g.SetManagerFunc(u.layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, func(*gocui.Gui, *gocui.View) error {
		return gocui.ErrQuit
	}); err != nil {
		g.Close()
		return nil, fmt.Errorf("tui: binding quit key: %w", err)
	}
	return u, nil
}

// layout computes receive_win's height as floor(rows/2), a 1-row sep_win,
// and gives the remainder to send_win — rebuilt on every call, which
// gocui makes automatically on a terminal resize (SPEC_FULL.md §4.8's
// documented replacement for a hand-rolled SIGWINCH flag).
func (u *UI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	recvH := maxY / 2

	if v, err := g.SetView(receiveViewName, 0, 0, maxX-1, recvH-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "received"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(sepViewName, 0, recvH, maxX-1, recvH+1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
		fmt.Fprint(v, strings.Repeat("-", maxX))
	}

	if v, err := g.SetView(sendViewName, 0, recvH+2, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "compose"
		v.Wrap = true
		v.Autoscroll = true
		v.Editable = true
		v.Editor = gocui.EditorFunc(u.edit)
		if _, err := g.SetCurrentView(sendViewName); err != nil {
			return err
		}
	}
	return nil
}

// edit implements spec.md §4.7's per-keystroke input handling as a
// gocui.Editor: backspace erases one buffered byte (a no-op on an empty
// buffer, per spec.md §8's boundary case); a printable character or CR/LF
// appends to the buffer and echoes to send_win; CR/LF additionally
// completes and ships the line.
//
// termbox (gocui's backend) reports DEL as the distinct KeyBackspace2
// event rather than as a printable rune, so spec.md §9's documented
// "code > 32 admits DEL" ambiguity never actually arises here; it only
// surfaces in the line-mode fallback's raw byte reader in cmd/ktalk,
// which matches the original behavior verbatim since it has no such
// pre-classified key model to fall back on.
func (u *UI) edit(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
	switch {
	case key == gocui.KeyBackspace || key == gocui.KeyBackspace2:
		if len(u.buf) == 0 {
			return // no-op on empty buffer, per spec.md §8
		}
		u.buf = u.buf[:len(u.buf)-1]
		v.EditDelete(true)

	case key == gocui.KeyEnter:
		u.appendAndEcho(v, '\n')
		u.completeLine(v)

	case ch > 32:
		u.appendAndEcho(v, ch)
		if ch == '\r' || ch == '\n' {
			u.completeLine(v)
		}
	}
}

func (u *UI) appendAndEcho(v *gocui.View, ch rune) {
	if len(u.buf)+1 >= maxLineLen { // leave room for the trailing NUL
		return
	}
	u.buf = append(u.buf, byte(ch))
	v.EditWrite(ch)
}

// completeLine seals off the composition buffer as a ChatLine (appending
// the trailing NUL spec.md §3 requires on the wire), hands it to OnLine,
// and resets the buffer to empty.
func (u *UI) completeLine(v *gocui.View) {
	line := append(append([]byte{}, u.buf...), 0)
	u.buf = u.buf[:0]
	v.Clear()
	if u.OnLine != nil {
		u.OnLine(line)
	}
}

// DisplayLine prints a decrypted ChatLine to the receive window, trimming
// the trailing NUL terminator that's present on the wire but not meant
// to be displayed (spec.md §3/§8 scenario 3).
func (u *UI) DisplayLine(line []byte) {
	u.g.Update(func(g *gocui.Gui) error {
		v, err := g.View(receiveViewName)
		if err != nil {
			return err
		}
		fmt.Fprint(v, trimNUL(line))
		return nil
	})
}

// DisplayBanner prints the StartupBanner in reverse video, per spec.md
// §4.7's "visually distinct attribute" requirement.
func (u *UI) DisplayBanner(banner string) {
	u.g.Update(func(g *gocui.Gui) error {
		v, err := g.View(receiveViewName)
		if err != nil {
			return err
		}
		fmt.Fprintf(v, "\x1b[7m%s\x1b[0m\n", banner)
		return nil
	})
}

// Quit asks the gocui main loop to exit on its next iteration.
func (u *UI) Quit() {
	u.g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
}

// Run hands control to gocui's own event loop, which multiplexes
// keyboard input and resize events (SPEC_FULL.md §4.8). It returns nil on
// a clean gocui.ErrQuit, matching spec.md §4.9's "interrupt -> exit 0"
// path.
func (u *UI) Run() error {
	defer u.g.Close()
	if err := u.g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func trimNUL(b []byte) string {
	if i := indexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
