// ktalk: an interactive, end-to-end encrypted two-party chat utility
// authenticated by a user-to-user Kerberos V5 exchange. One side runs as
// listener (server role), the other as connector (client role); see
// spec.md §1/§6.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"blitter.com/go/ktalk/internal/channel"
	"blitter.com/go/ktalk/internal/frame"
	"blitter.com/go/ktalk/internal/invite"
	"blitter.com/go/ktalk/internal/krb5auth"
	"blitter.com/go/ktalk/internal/logger"
	"blitter.com/go/ktalk/internal/session"
	"blitter.com/go/ktalk/internal/termmode"
	"blitter.com/go/ktalk/internal/transport"

	isatty "github.com/mattn/go-isatty"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0]) // nolint: errcheck
	fmt.Fprintf(os.Stderr, "  %s [-d] [-c] [-e messenger] peer_principal         (listener role)\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s [-d] [-c] peer_principal host port             (connector role)\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

// run implements spec.md §9's single top-level handler: every error
// frontier below returns here, where the terminal is restored (if a raw
// mode was entered) and the diagnostic is formatted as
// "<context>: <diagnostic>" before the process exits 1. The interrupt
// path, a clean peer hangup, the end of local input and a normal curses
// quit exit 0.
func run() int {
	var (
		debug     bool
		noCurse   bool
		messenger string
		kcpMode   bool
	)
	flag.BoolVar(&debug, "d", false, "debug tracing to syslog (stderr on Windows)")
	flag.BoolVar(&noCurse, "c", false, "disable curses mode (line mode)")
	flag.StringVar(&messenger, "e", "", "external invitation `messenger` program (listener only)")
	flag.BoolVar(&kcpMode, "kcp", false, "use KCP (reliable UDP) transport instead of TCP")
	flag.Usage = usage
	flag.Parse()

	if debug {
		if _, err := logger.New(logger.LOG_DEBUG|logger.LOG_DAEMON, "ktalk"); err != nil {
			fmt.Fprintf(os.Stderr, "ktalk: debug logging: %v\n", err)
		}
	}

	// Force no local service keytab: authentication is strictly
	// user-to-user, per spec.md §6 "Environment".
	os.Setenv("KRB5_KTNAME", "/dev/null")

	args := flag.Args()
	if len(args) != 1 && len(args) != 3 {
		flag.Usage()
		return 1
	}

	ccachePath := ccacheDefault()

	// As in the teacher's own xs.go, curses/raw-mode input only makes
	// sense on a real interactive terminal; fall back to line mode
	// otherwise rather than failing to initialize termbox.
	if !noCurse && !isatty.IsTerminal(os.Stdin.Fd()) {
		logger.Debug("ktalk: stdin is not a tty, falling back to line mode")
		noCurse = true
	}

	if len(args) == 1 {
		return runListener(args[0], !noCurse, messenger, kcpMode, ccachePath)
	}

	port, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		return 1
	}
	return runConnector(args[0], args[1], port, !noCurse, kcpMode, ccachePath)
}

func localUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func ccacheDefault() string {
	if p := os.Getenv("KRB5CCNAME"); p != "" {
		return strings.TrimPrefix(p, "FILE:")
	}
	if u, err := user.Current(); err == nil {
		return fmt.Sprintf("/tmp/krb5cc_%s", u.Uid)
	}
	return "/tmp/krb5cc"
}

func runListener(peerPrincipal string, curses bool, messenger string, kcpMode bool, ccachePath string) int {
	conn, port, localAddr, remoteAddr, err := transport.Listen(kcpMode)
	if err != nil {
		return fail("ktalk: listen", err)
	}
	defer conn.Close()
	fmt.Printf("waiting on port %d\n", port)

	local, err := krb5auth.EndpointFromAddr(localAddr)
	if err != nil {
		return fail("ktalk: local endpoint", err)
	}
	remote, err := krb5auth.EndpointFromAddr(remoteAddr)
	if err != nil {
		return fail("ktalk: remote endpoint", err)
	}

	emitInvitation(peerPrincipal, messenger, port)

	// fc carries both the handshake frames below and the chat frames of
	// runSession over one persistent buffered reader (frame.Conn) so no
	// bytes the kernel delivers ahead of a frame boundary get dropped
	// between the handshake and the chat loop.
	fc := frame.NewConn(conn)
	result, err := krb5auth.RunListener(fc, ccachePath, local, remote, peerPrincipal)
	if err != nil {
		return fail("ktalk: handshake", err)
	}

	return runSession(fc, result, curses)
}

func runConnector(peerPrincipal, host string, port int, curses bool, kcpMode bool, ccachePath string) int {
	conn, localAddr, remoteAddr, err := transport.Dial(host, port, kcpMode)
	if err != nil {
		return fail("ktalk: dial", err)
	}
	defer conn.Close()

	local, err := krb5auth.EndpointFromAddr(localAddr)
	if err != nil {
		return fail("ktalk: local endpoint", err)
	}
	remote, err := krb5auth.EndpointFromAddr(remoteAddr)
	if err != nil {
		return fail("ktalk: remote endpoint", err)
	}

	name, realm, ok := splitPrincipal(peerPrincipal)
	if !ok {
		return fail("ktalk: usage", fmt.Errorf("peer principal %q must be user@REALM", peerPrincipal))
	}

	fc := frame.NewConn(conn)
	result, err := krb5auth.RunConnector(fc, ccachePath, local, remote, name, realm)
	if err != nil {
		return fail("ktalk: handshake", err)
	}

	return runSession(fc, result, curses)
}

func splitPrincipal(p string) (name, realm string, ok bool) {
	name, realm, ok = strings.Cut(p, "@")
	return name, strings.ToUpper(realm), ok
}

func emitInvitation(peerPrincipal, messenger string, port int) {
	host, err := invite.LocalHostLabel()
	if err != nil {
		logger.Err(fmt.Sprintf("ktalk: invite: %v", err))
		return
	}
	sender := invite.SenderIdentity(localUsername())
	invite.Emit(&invite.StubBus{}, messenger, peerPrincipal, sender, host, port)
}

// runSession dispatches to curses mode (internal/session) or the line
// mode fallback, which is driven directly here rather than through
// internal/session since it owns no gocui screen (SPEC_FULL.md §4.7). fc
// is the same frame.Conn the handshake used, so the persistent buffered
// reader carries forward into the chat loop (see runListener/runConnector).
func runSession(fc *frame.Conn, result krb5auth.Result, curses bool) int {
	if curses {
		if err := session.Run(fc, result.Ctx, result.Banner); err != nil {
			return fail("ktalk", err)
		}
		return 0
	}
	return runLineMode(fc, result)
}

// maxLineLen mirrors internal/tui's composition buffer capacity, per
// spec.md §4.7.
const maxLineLen = 1024

// runLineMode implements spec.md §4.7's line-mode fallback: no gocui
// screen, raw terminal input read and echoed a byte at a time (mirroring
// curses mode's own per-keystroke composition logic but printed linearly
// to stdout), received frames printed to stdout, and SIGWINCH handled
// explicitly here rather than absorbed by gocui — SPEC_FULL.md §4.9.
//
// Unlike internal/tui's gocui.Editor, which receives backspace and DEL as
// distinct, pre-classified key events from termbox, this path reads raw
// bytes and so faces spec.md §9's documented open question head-on: the
// `b > 32` printable gate is checked before the 0x08/0x7F backspace
// check, so DEL (127) is treated as a printable character here, exactly
// as the original's ambiguity describes.
func runLineMode(fc *frame.Conn, result krb5auth.Result) int {
	fmt.Println(result.Banner)

	// Raw mode only applies to a terminal; piped or redirected stdin is
	// read as it comes.
	var state *termmode.State
	if isatty.IsTerminal(os.Stdin.Fd()) {
		var err error
		state, err = termmode.MakeRaw(os.Stdin.Fd())
		if err != nil {
			return fail("ktalk: terminal", err)
		}
		defer termmode.Restore(os.Stdin.Fd(), state)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGWINCH)

	readErrCh := make(chan error, 1)
	go func() {
		for {
			blob, err := frame.ReadFrame(fc)
			if err != nil {
				readErrCh <- err
				return
			}
			line, err := channel.Open(result.Ctx, blob)
			if err != nil {
				readErrCh <- err
				return
			}
			os.Stdout.Write(bytes.TrimRight(trimNUL(line), "\r\n"))
			os.Stdout.Write([]byte("\r\n"))
		}
	}()

	lineCh := make(chan []byte, 1)
	go func() {
		r := bufio.NewReader(os.Stdin)
		var buf []byte
		for {
			b, err := r.ReadByte()
			if err != nil {
				close(lineCh)
				return
			}
			var line []byte
			buf, line = composeByte(buf, b)
			if line != nil {
				lineCh <- line
			}
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGWINCH {
				if cols, rows, err := termmode.GetSize(os.Stdout.Fd()); err == nil {
					logger.Debug(fmt.Sprintf("ktalk: resize %dx%d", cols, rows))
				}
				continue
			}
			termmode.Restore(os.Stdin.Fd(), state)
			fmt.Fprintln(os.Stderr, "exiting due to interrupt")
			return 0

		case err := <-readErrCh:
			if err == io.EOF {
				return 0
			}
			return fail("ktalk: session", err)

		case line, ok := <-lineCh:
			if !ok {
				return 0
			}
			blob, err := channel.Seal(result.Ctx, line)
			if err != nil {
				return fail("ktalk: session", err)
			}
			if err := frame.WriteFrame(fc, blob); err != nil {
				return fail("ktalk: session", err)
			}
		}
	}
}

// composeByte applies spec.md §4.7's per-keystroke rules to one raw input
// byte, echoing to stdout as it goes, and returns the completed ChatLine
// once CR or LF arrives: like internal/tui's Enter handling, the line ends
// in '\n' (when the buffer has room for it) followed by the trailing NUL.
func composeByte(buf []byte, b byte) (newBuf, completed []byte) {
	switch {
	case b > 32:
		if len(buf)+1 >= maxLineLen {
			return buf, nil
		}
		os.Stdout.Write([]byte{b})
		return append(buf, b), nil
	case b == '\r' || b == '\n':
		os.Stdout.Write([]byte("\r\n"))
		if len(buf)+1 < maxLineLen {
			buf = append(buf, '\n')
		}
		return nil, append(buf, 0)
	case b == 0x08 || b == 0x7f:
		if len(buf) == 0 {
			return buf, nil
		}
		os.Stdout.Write([]byte("\b \b"))
		return buf[:len(buf)-1], nil
	default:
		return buf, nil
	}
}

func trimNUL(b []byte) []byte {
	if i := len(b) - 1; i >= 0 && b[i] == 0 {
		return b[:i]
	}
	return b
}

func fail(context string, err error) int {
	fmt.Fprintf(os.Stderr, "%s: %v\n", context, err)
	return 1
}
