package krb5auth

import (
	"fmt"
	"time"

	"github.com/jcmturner/gokrb5/v8/messages"

	"blitter.com/go/ktalk/internal/frame"
	"blitter.com/go/ktalk/internal/logger"
)

// State is a handshake state, per the tables in spec.md §4.5. Both roles
// start in StateInit and terminate in StateReady or StateFailed.
type State int

const (
	StateInit State = iota
	StateListenerTgtAcquired
	StateListenerTicketSent
	StateListenerCtxReady
	StateListenerVerified
	StateConnectorCtxInit
	StateConnectorTicketRcvd
	StateConnectorCredsReady
	StateConnectorApReqReady
	StateReady
	StateFailed
)

// Result is what a successful handshake hands back to the caller: the
// bound AuthContext and the StartupBanner text spec.md §3/§7 describes.
type Result struct {
	Ctx    *AuthContext
	Banner string
}

// RunListener drives the Listener state machine of spec.md §4.5's table:
// Init -> TgtAcquired -> TicketSent -> CtxReady -> Verified -> Ready.
//
// rw carries the frame-codec wire protocol; local/remote are the already-
// queried socket endpoints (never a hostname guess, per the key invariant
// in spec.md §4.5); expectedPeer is the command-line peer argument used
// to compose the mismatch warning.
func RunListener(rw frameReadWriter, ccachePath string, local, remote Endpoint, expectedPeer string) (Result, error) {
	trace := func(s State) { logger.Debug(fmt.Sprintf("krb5auth: listener -> %v", s)) }
	trace(StateInit)

	_, cc, err := LoadCredentials(ccachePath)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener: %w", err)
	}

	tgt, tgtKey, err := ListenerTGT(cc)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener TgtAcquired: %w", err)
	}
	trace(StateListenerTgtAcquired)

	tgtBytes, err := tgt.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener marshaling TGT: %w", err)
	}
	if err := frame.WriteFrame(rw, tgtBytes); err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener sending TGT frame: %w", err)
	}
	trace(StateListenerTicketSent)

	ctx := NewAuthContext(local, remote)
	ctx.SessionKey = tgtKey
	trace(StateListenerCtxReady)

	apReqBytes, err := frame.ReadFrame(rw)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener reading AP-REQ frame: %w", err)
	}
	var apReq messages.APReq
	if err := apReq.Unmarshal(apReqBytes); err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener unmarshaling AP-REQ: %w", err)
	}
	peerPrincipal, err := VerifyAPReq(apReq, tgtKey, remote, time.Now())
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener verifying AP-REQ: %w", err)
	}
	// The chat key is the session key inside the user-to-user ticket, the
	// same key the connector got back from the KDC; VerifyAPReq decrypted
	// only its own copy of the ticket.
	if err := apReq.Ticket.DecryptEncPart(tgtKey); err != nil {
		return Result{}, fmt.Errorf("krb5auth: listener decrypting AP-REQ ticket: %w", err)
	}
	ctx.SessionKey = apReq.Ticket.DecryptedEncPart.Key
	ctx.PeerPrincipal = peerPrincipal
	trace(StateListenerVerified)

	banner := composeBanner(peerPrincipal, expectedPeer, cc.DefaultPrincipal.Realm)
	trace(StateReady)

	return Result{Ctx: ctx, Banner: banner}, nil
}

// RunConnector drives the Connector state machine of spec.md §4.5's
// table: Init -> CtxInit -> TicketRcvd -> CredsReady -> ApReqReady ->
// Ready.
func RunConnector(rw frameReadWriter, ccachePath string, local, remote Endpoint, peerPrincipal, peerRealm string) (Result, error) {
	trace := func(s State) { logger.Debug(fmt.Sprintf("krb5auth: connector -> %v", s)) }
	trace(StateInit)

	cl, cc, err := LoadCredentials(ccachePath)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector: %w", err)
	}

	ctx := NewAuthContext(local, remote)
	trace(StateConnectorCtxInit)

	tgtBytes, err := frame.ReadFrame(rw)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector reading TGT frame: %w", err)
	}
	var peerTGT messages.Ticket
	if err := peerTGT.Unmarshal(tgtBytes); err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector unmarshaling TGT: %w", err)
	}
	trace(StateConnectorTicketRcvd)

	tkt, key, err := ConnectorU2UCreds(cl, cc, peerTGT, peerPrincipal, peerRealm)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector CredsReady: %w", err)
	}
	ctx.SessionKey = key
	trace(StateConnectorCredsReady)

	apReq, err := BuildAPReq(tkt, key, cc.GetClientPrincipalName(), cc.DefaultPrincipal.Realm)
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector building AP-REQ: %w", err)
	}
	trace(StateConnectorApReqReady)

	apReqBytes, err := apReq.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector marshaling AP-REQ: %w", err)
	}
	if err := frame.WriteFrame(rw, apReqBytes); err != nil {
		return Result{}, fmt.Errorf("krb5auth: connector sending AP-REQ frame: %w", err)
	}
	trace(StateReady)

	ctx.PeerPrincipal = CanonicalPrincipal(peerPrincipal, peerRealm)
	return Result{Ctx: ctx, Banner: fmt.Sprintf("Connected to %s", ctx.PeerPrincipal)}, nil
}

// composeBanner implements spec.md §4.5's Verified step and §7's
// user-visible mismatch warning, canonicalizing both sides before the
// case-insensitive compare (spec.md §9 open question, resolved in
// SPEC_FULL.md §6).
func composeBanner(authenticatedPeer, expectedPeer, defaultRealm string) string {
	banner := fmt.Sprintf("Foreign party authenticates as %s", authenticatedPeer)
	if expectedPeer == "" || PrincipalsEqual(authenticatedPeer, expectedPeer, defaultRealm) {
		return banner
	}
	return fmt.Sprintf("WARNING: expected peer %s, but %s",
		CanonicalPrincipal(expectedPeer, defaultRealm), banner)
}

func (s State) String() string {
	names := map[State]string{
		StateInit:                "Init",
		StateListenerTgtAcquired: "TgtAcquired",
		StateListenerTicketSent:  "TicketSent",
		StateListenerCtxReady:    "CtxReady",
		StateListenerVerified:    "Verified",
		StateConnectorCtxInit:    "CtxInit",
		StateConnectorTicketRcvd: "TicketRcvd",
		StateConnectorCredsReady: "CredsReady",
		StateConnectorApReqReady: "ApReqReady",
		StateReady:               "Ready",
		StateFailed:              "Failed",
	}
	if n, ok := names[s]; ok {
		return n
	}
	return "Unknown"
}

// frameReadWriter is the minimal surface the handshake needs from the TCP
// connection: an io.Reader/io.Writer pair suitable for frame.ReadFrame /
// frame.WriteFrame.
type frameReadWriter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}
