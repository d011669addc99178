// Package transport implements spec.md §4.3's listener and connector
// setup: sequential port probing with a fixed backlog on the listener
// side, single-address resolution on the connector side, and (as an
// enrichment carried over from the teacher's own dual-transport design in
// xsnet/net.go's Dial/Listen) an optional KCP-over-UDP transport in place
// of plain TCP.
package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// StartPort is the first port the listener tries, per spec.md §4.3.
const StartPort = 2050

// Listen binds to 0.0.0.0, starting at StartPort and incrementing on
// address-in-use until bind succeeds, then accepts exactly one connection
// before closing the listening socket, per spec.md §4.3. The stdlib
// net.Listen doesn't expose a way to pin the kernel backlog to spec.md's
// stated value of 5 (it always sizes the backlog from
// /proc/sys/net/core/somaxconn); since this listener only ever accepts one
// connection before closing, the backlog value has no observable effect
// here. kcpMode selects the teacher's alternate UDP-based transport
// (SPEC_FULL.md §3) instead of plain TCP.
func Listen(kcpMode bool) (conn net.Conn, port int, local, remote net.Addr, err error) {
	for port = StartPort; ; port++ {
		var ln net.Listener
		addr := fmt.Sprintf("0.0.0.0:%d", port)
		if kcpMode {
			ln, err = kcpListen(addr)
		} else {
			ln, err = net.Listen("tcp", addr)
		}
		if err == nil {
			defer ln.Close()
			c, aerr := ln.Accept()
			if aerr != nil {
				return nil, 0, nil, nil, fmt.Errorf("transport: accept: %w", aerr)
			}
			return c, port, c.LocalAddr(), c.RemoteAddr(), nil
		}
		if !isAddrInUse(err) {
			return nil, 0, nil, nil, fmt.Errorf("transport: listening on %s: %w", addr, err)
		}
		// address in use: try the next port, per spec.md §4.3's port-hunt.
	}
}

// Dial resolves host's first address and connects to (address, port), per
// spec.md §4.3. kcpMode mirrors Listen's transport choice.
func Dial(host string, port int, kcpMode bool) (conn net.Conn, local, remote net.Addr, err error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: resolving %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, nil, nil, fmt.Errorf("transport: no addresses found for %s", host)
	}
	ipport := net.JoinHostPort(addrs[0], fmt.Sprintf("%d", port))

	var c net.Conn
	if kcpMode {
		c, err = kcpDial(ipport)
	} else {
		c, err = net.Dial("tcp", ipport)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: dialing %s: %w", ipport, err)
	}
	return c, c.LocalAddr(), c.RemoteAddr(), nil
}

func isAddrInUse(err error) bool {
	return err != nil && errors.Is(err, syscall.EADDRINUSE)
}
