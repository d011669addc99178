// +build windows

// ktalk's curses mode depends on gocui/termbox for raw-mode handling on
// all platforms; this file only backs the line-mode fallback's cooked/
// raw switch on Windows, and like the teacher's own termmode_windows.go,
// it's honest about being a thin stub rather than real console-mode
// manipulation.
package termmode

import "errors"

type State struct{}

func MakeRaw(fd uintptr) (*State, error) {
	return &State{}, nil
}

func Restore(fd uintptr, state *State) error {
	if state == nil {
		return errors.New("termmode: nil State")
	}
	return nil
}

func GetSize(fd uintptr) (cols, rows int, err error) {
	return 80, 24, nil
}
