package krb5auth

import (
	"net"
	"testing"

	"github.com/jcmturner/gokrb5/v8/iana/addrtype"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPrincipal(t *testing.T) {
	require.Equal(t, "alice@TEST", CanonicalPrincipal("alice", "test"))
	require.Equal(t, "alice@TEST", CanonicalPrincipal("alice@test", "other"))
}

func TestPrincipalsEqual(t *testing.T) {
	require.True(t, PrincipalsEqual("alice@TEST", "ALICE@test", "test"))
	require.False(t, PrincipalsEqual("alice@TEST", "bob@TEST", "test"))
}

func TestComposeBannerMismatchWarning(t *testing.T) {
	banner := composeBanner("bob@TEST", "alice@TEST", "TEST")
	require.Contains(t, banner, "WARNING")
	require.Contains(t, banner, "Foreign party authenticates as bob@TEST")
}

func TestComposeBannerMatch(t *testing.T) {
	banner := composeBanner("bob@TEST", "bob", "TEST")
	require.NotContains(t, banner, "WARNING")
}

func TestSequenceDiscipline(t *testing.T) {
	ctx := NewAuthContext(Endpoint{IP: net.IPv4(127, 0, 0, 1), Port: 1}, Endpoint{IP: net.IPv4(127, 0, 0, 1), Port: 2})
	require.EqualValues(t, 0, ctx.NextSendSeq())
	require.EqualValues(t, 1, ctx.NextSendSeq())

	require.NoError(t, ctx.CheckRecvSeq(0))
	require.NoError(t, ctx.CheckRecvSeq(1))
	require.Error(t, ctx.CheckRecvSeq(1)) // replay of seq 1
	require.Error(t, ctx.CheckRecvSeq(3)) // reorder/gap
}

func TestEndpointFromAddr(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 2051}
	ep, err := EndpointFromAddr(addr)
	require.NoError(t, err)
	require.Equal(t, 2051, ep.Port)
	require.Equal(t, addrtype.IPv4, ep.HostAddress().AddrType)
}

func TestEndpointFromAddrUDP(t *testing.T) {
	// kcp-go sessions (the -kcp transport, SPEC_FULL.md §3) report
	// *net.UDPAddr from LocalAddr/RemoteAddr, not *net.TCPAddr.
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 2051}
	ep, err := EndpointFromAddr(addr)
	require.NoError(t, err)
	require.Equal(t, 2051, ep.Port)
}
