// +build windows

// Package logger wraps UNIX syslog for other platforms; Windows has no
// stdlib syslog, so this stand-in routes the same calls to stderr.
package logger

import (
	"fmt"
	"os"
)

type Priority = int
type Writer = os.File

const (
	LOG_EMERG Priority = iota
	LOG_ALERT
	LOG_CRIT
	LOG_ERR
	LOG_WARNING
	LOG_NOTICE
	LOG_INFO
	LOG_DEBUG
)

// Facility, per /usr/include/sys/syslog.h (kept numerically aligned with
// logger_linux.go's real syslog constants even though Windows has no
// syslog daemon to route it to).
const (
	_ Priority = iota << 3 // LOG_KERN
	_                      // LOG_USER
	_                      // LOG_MAIL
	LOG_DAEMON
)

var (
	tagPrefix string
	opened    bool
)

// New records the tag used to prefix subsequent log lines; there's no
// syslog daemon to dial on Windows, so this always succeeds.
func New(flags Priority, tag string) (w *Writer, e error) {
	tagPrefix = tag
	opened = true
	return os.Stderr, nil
}

// Debug writes s to stderr if New has been called.
func Debug(s string) error {
	if !opened {
		return nil
	}
	_, err := fmt.Fprintf(os.Stderr, "%s: debug: %s\n", tagPrefix, s)
	return err
}

// Err writes s to stderr if New has been called.
func Err(s string) error {
	if !opened {
		return nil
	}
	_, err := fmt.Fprintf(os.Stderr, "%s: err: %s\n", tagPrefix, s)
	return err
}

func Close() error { return nil }
