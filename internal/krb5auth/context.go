package krb5auth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jcmturner/gokrb5/v8/types"
)

// AuthContext is the opaque session state spec.md §3 describes: the
// session key plus the local/remote sequence counters and the bound
// Endpoints. During a chat session the send path and the receive path run
// on different goroutines; mu serializes their access to the sequence
// counters (see SPEC_FULL.md §4.8).
type AuthContext struct {
	mu sync.Mutex

	SessionKey types.EncryptionKey
	Local      Endpoint
	Remote     Endpoint

	// DoSequence mirrors the classic krb5 AuthContext "do sequence" flag:
	// both sides configure it at setup and never change it afterward.
	DoSequence bool

	sendSeq uint64
	recvSeq uint64

	// PeerPrincipal is filled in once the handshake reaches Ready.
	PeerPrincipal string
}

// NewAuthContext binds an AuthContext to the endpoints of an established
// TCP connection, per spec.md §4.5's CtxReady/CtxInit steps. Endpoints
// must come from querying the live socket (LocalAddr/RemoteAddr), never
// from a hostname guess — spec.md §4.5's key invariant.
func NewAuthContext(local, remote Endpoint) *AuthContext {
	return &AuthContext{
		Local:      local,
		Remote:     remote,
		DoSequence: true,
	}
}

// NextSendSeq returns the next local sequence number and advances the
// counter. Called exactly once per Seal.
func (a *AuthContext) NextSendSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	seq := a.sendSeq
	a.sendSeq++
	return seq
}

// CheckRecvSeq verifies that seq is the next expected remote sequence
// number and advances the counter on success. Any gap, repeat, or
// out-of-order value is rejected, giving Open its replay/reorder guarantee
// (spec.md §4.6, §8).
func (a *AuthContext) CheckRecvSeq(seq uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.recvSeq {
		return fmt.Errorf("krb5auth: sequence mismatch: got %d, want %d", seq, a.recvSeq)
	}
	a.recvSeq++
	return nil
}

// CanonicalPrincipal normalizes a principal string to "user@REALM",
// uppercasing the realm and appending defaultRealm when the caller omitted
// one. This resolves spec.md §9's open question: the original compares
// principals without realm canonicalization, which spuriously warns when
// the command-line argument omits "@REALM". ktalk canonicalizes both sides
// of the spec.md §4.5 Verified-step comparison through this helper before
// comparing case-insensitively.
func CanonicalPrincipal(principal, defaultRealm string) string {
	name, realm, ok := strings.Cut(principal, "@")
	if !ok {
		realm = defaultRealm
	}
	return name + "@" + strings.ToUpper(realm)
}

// PrincipalsEqual reports whether two principal strings are the same
// identity once both are canonicalized against defaultRealm.
func PrincipalsEqual(a, b, defaultRealm string) bool {
	return strings.EqualFold(CanonicalPrincipal(a, defaultRealm), CanonicalPrincipal(b, defaultRealm))
}

func splitPrincipalName(p types.PrincipalName, realm string) string {
	return strings.Join(p.NameString, "/") + "@" + realm
}
