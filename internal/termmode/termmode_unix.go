// +build linux freebsd darwin

// Package termmode provides the raw/cooked terminal-mode switch and
// terminal-size query that spec.md's line mode (curses off, spec.md
// §4.7) needs directly, including line mode's cooked-mode restoration on
// fatal error or interrupt (spec.md §4.9). Curses mode
// delegates raw-mode handling entirely to gocui/termbox instead of this
// package (SPEC_FULL.md §4.7/§4.8).
//
// Ported from the teacher's termmode_bsd.go, which itself notes it
// brought these in from golang/crypto/ssh/terminal because the stdlib
// terminal reorg hadn't landed yet; that reorg is now golang.org/x/term,
// but ktalk keeps the teacher's own unix.Termios-based implementation
// rather than adding yet another terminal library, and upgrades its
// GetSize from the teacher's "exec('stty size')" TODO to a direct
// TIOCGWINSZ ioctl via golang.org/x/sys/unix.
package termmode

import (
	"errors"

	"golang.org/x/sys/unix"
)

// State is the terminal state captured by MakeRaw, to be handed back to
// Restore.
type State struct {
	termios unix.Termios
}

// MakeRaw puts the terminal connected to fd into raw mode (no echo, no
// line buffering, per spec.md §4.7's curses-mode contract) and returns
// the previous state so it can be restored.
func MakeRaw(fd uintptr) (*State, error) {
	var oldState State
	termios, err := unix.IoctlGetTermios(int(fd), ioctlGetTermios)
	if err != nil {
		return nil, err
	}
	oldState.termios = *termios

	newState := oldState.termios
	newState.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	newState.Oflag &^= unix.OPOST
	newState.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	newState.Cflag &^= unix.CSIZE | unix.PARENB
	newState.Cflag |= unix.CS8
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(int(fd), ioctlSetTermios, &newState); err != nil {
		return nil, err
	}
	return &oldState, nil
}

// Restore restores fd to the terminal state captured by MakeRaw.
func Restore(fd uintptr, state *State) error {
	if state == nil {
		return errors.New("termmode: nil State")
	}
	return unix.IoctlSetTermios(int(fd), ioctlSetTermios, &state.termios)
}

// GetSize queries the terminal's current size directly via TIOCGWINSZ,
// replacing the teacher's `exec.Command("stty", "size")` with an ioctl —
// the improvement the teacher's own GetSize left as a TODO.
func GetSize(fd uintptr) (cols, rows int, err error) {
	ws, err := unix.IoctlGetWinsize(int(fd), unix.TIOCGWINSZ)
	if err != nil {
		return 80, 24, err // failsafe, matching the teacher's stty fallback
	}
	return int(ws.Col), int(ws.Row), nil
}
