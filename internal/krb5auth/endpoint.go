// Package krb5auth implements the user-to-user Kerberos 5 handshake that
// produces the shared AuthContext spec.md §4.5 describes: one state
// machine for the listener role, one for the connector role, both built on
// github.com/jcmturner/gokrb5/v8.
package krb5auth

import (
	"fmt"
	"net"

	"github.com/jcmturner/gokrb5/v8/iana/addrtype"
	"github.com/jcmturner/gokrb5/v8/types"
)

// Endpoint is a (IPv4 address, TCP port) pair, as spec.md §3 defines it.
type Endpoint struct {
	IP   net.IP
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// EndpointFromAddr bridges a socket-level address (as returned by
// net.Conn.LocalAddr/RemoteAddr) into an Endpoint. This is spec.md §4.2's
// address bridge, minus the auth-library representation, which
// HostAddress below supplies.
//
// Both *net.TCPAddr (plain TCP) and *net.UDPAddr (the SPEC_FULL.md §3
// -kcp transport, whose sessions are UDP-backed underneath kcp-go) are
// accepted: the address bridge binds to whatever the live socket actually
// reports, not to a specific transport.
func EndpointFromAddr(a net.Addr) (Endpoint, error) {
	var ip net.IP
	var port int
	switch addr := a.(type) {
	case *net.TCPAddr:
		ip, port = addr.IP, addr.Port
	case *net.UDPAddr:
		ip, port = addr.IP, addr.Port
	default:
		return Endpoint{}, fmt.Errorf("krb5auth: address %v is not a TCP or UDP endpoint", a)
	}
	v4 := ip.To4()
	if v4 == nil {
		return Endpoint{}, fmt.Errorf("krb5auth: address %v is not IPv4", a)
	}
	return Endpoint{IP: v4, Port: port}, nil
}

// HostAddress renders the Endpoint as gokrb5's address representation,
// addrtype Internet carrying the 4-octet address, for binding into AP-REQ
// authenticators and AuthContext address checks (spec.md §4.2, §4.5).
func (e Endpoint) HostAddress() types.HostAddress {
	return types.HostAddress{
		AddrType: addrtype.IPv4,
		Address:  []uint8(e.IP.To4()),
	}
}
