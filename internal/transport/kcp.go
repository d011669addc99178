package transport

import (
	"crypto/sha1"
	"net"

	kcp "github.com/xtaci/kcp-go"
	"golang.org/x/crypto/pbkdf2"
)

// kcpKeyBytes/kcpSaltBytes key the KCP BlockCrypt layer. ktalk's KCP mode
// exists only as an alternate unreliable-network transport underneath the
// Kerberos-authenticated frame channel (spec.md's security already comes
// from internal/channel), so unlike the teacher's xsnet/kcp.go — where
// this BlockCrypt is load-bearing for confidentiality — a fixed key is
// sufficient here; it only needs to keep casual packet sniffers from
// trivially reading ktalk's Kerberos ticket/AP-REQ frames before the
// secure channel is up.
var (
	kcpKeyBytes  = []byte("ktalk-kcp-transport-obfuscation")
	kcpSaltBytes = []byte("ktalk-kcp-salt")
)

func kcpBlockCrypt() (kcp.BlockCrypt, error) {
	key := pbkdf2.Key(kcpKeyBytes, kcpSaltBytes, 1024, 32, sha1.New)
	return kcp.NewAESBlockCrypt(key)
}

func kcpDial(ipport string) (net.Conn, error) {
	block, err := kcpBlockCrypt()
	if err != nil {
		return nil, err
	}
	return kcp.DialWithOptions(ipport, block, 10, 3)
}

func kcpListen(ipport string) (net.Listener, error) {
	block, err := kcpBlockCrypt()
	if err != nil {
		return nil, err
	}
	return kcp.ListenWithOptions(ipport, block, 10, 3)
}
