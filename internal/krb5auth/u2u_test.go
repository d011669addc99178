package krb5auth

import (
	"net"
	"testing"

	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/require"
)

func TestCheckAddressRestrictionUnrestricted(t *testing.T) {
	remote := Endpoint{IP: net.IPv4(10, 0, 0, 2), Port: 2051}
	require.NoError(t, checkAddressRestriction(nil, remote))
}

func TestCheckAddressRestrictionMatch(t *testing.T) {
	remote := Endpoint{IP: net.IPv4(10, 0, 0, 2), Port: 2051}
	restricted := []types.HostAddress{remote.HostAddress()}
	require.NoError(t, checkAddressRestriction(restricted, remote))
}

func TestCheckAddressRestrictionMismatch(t *testing.T) {
	remote := Endpoint{IP: net.IPv4(10, 0, 0, 2), Port: 2051}
	other := Endpoint{IP: net.IPv4(10, 0, 0, 9), Port: 2051}
	restricted := []types.HostAddress{other.HostAddress()}
	require.Error(t, checkAddressRestriction(restricted, remote))
}
