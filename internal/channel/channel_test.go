package channel

import (
	"net"
	"testing"

	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/require"

	"blitter.com/go/ktalk/internal/krb5auth"
)

func testContext(t *testing.T) *krb5auth.AuthContext {
	t.Helper()
	ctx := krb5auth.NewAuthContext(
		krb5auth.Endpoint{IP: net.IPv4(127, 0, 0, 1), Port: 2051},
		krb5auth.Endpoint{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
	)
	ctx.SessionKey = types.EncryptionKey{
		KeyType:  18, // aes256-cts-hmac-sha1-96
		KeyValue: make([]byte, 32),
	}
	return ctx
}

func TestSealOpenRoundTrip(t *testing.T) {
	ctx := testContext(t)
	line := []byte("hello\r\n\x00")

	blob, err := Seal(ctx, line)
	require.NoError(t, err)

	open := testContext(t)
	open.SessionKey = ctx.SessionKey
	got, err := Open(open, blob)
	require.NoError(t, err)
	require.Equal(t, line, got)
}

func TestOpenRejectsReplay(t *testing.T) {
	ctx := testContext(t)
	blob, err := Seal(ctx, []byte("hello\r\n\x00"))
	require.NoError(t, err)

	open := testContext(t)
	open.SessionKey = ctx.SessionKey
	_, err = Open(open, blob)
	require.NoError(t, err)

	_, err = Open(open, blob)
	require.Error(t, err, "second delivery of the same sealed blob must fail")
}

func TestOpenRejectsReorder(t *testing.T) {
	ctx := testContext(t)
	blobA, err := Seal(ctx, []byte("first\r\n\x00"))
	require.NoError(t, err)
	blobB, err := Seal(ctx, []byte("second\r\n\x00"))
	require.NoError(t, err)

	open := testContext(t)
	open.SessionKey = ctx.SessionKey
	_, err = Open(open, blobB)
	require.Error(t, err, "delivering the second blob before the first must fail")
	_, err = Open(open, blobA)
	_ = err // state is already desynced; the channel is fatally done per spec.md §4.6/§7
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	ctx := testContext(t)
	blob, err := Seal(ctx, []byte("hello\r\n\x00"))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	open := testContext(t)
	open.SessionKey = ctx.SessionKey
	_, err = Open(open, blob)
	require.Error(t, err)
}
