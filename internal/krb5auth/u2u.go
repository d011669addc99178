package krb5auth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"
)

// u2u.go assembles the one classic Kerberos flow gokrb5's public
// client.Client API doesn't hand you directly: a user-to-user exchange
// where the "service" is another logged-in user's TGT rather than a
// keytab-backed service principal (spec.md §4.5, §6 "Key invariants").
// Everything here is built from gokrb5's lower-level ticket/key/crypto
// primitives rather than its AS/TGS/SPNEGO-oriented client calls — see
// DESIGN.md for why this one seam exists.

// LoadCredentials opens the caller's credential cache and the client
// bound to it. KRB5_KTNAME is expected to already be forced to a no-op
// path by the caller (spec.md §6 "Environment") so no service keytab is
// ever consulted.
func LoadCredentials(ccachePath string) (*client.Client, *credentials.CCache, error) {
	cc, err := credentials.LoadCCache(ccachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("krb5auth: loading credential cache %s: %w", ccachePath, err)
	}
	cl, err := client.NewFromCCache(cc, nil, client.DisablePAFXFAST(true))
	if err != nil {
		return nil, nil, fmt.Errorf("krb5auth: building client from ccache: %w", err)
	}
	return cl, cc, nil
}

// OwnPrincipal returns the caller's own principal, canonicalized.
func OwnPrincipal(cc *credentials.CCache) string {
	return splitPrincipalName(cc.GetClientPrincipalName(), cc.DefaultPrincipal.Realm)
}

// ListenerTGT retrieves the TGT for the caller's own realm from the
// credential cache, implementing the Listener's Init -> TgtAcquired step.
// The TGT ticket is what gets shipped to the connector as the "second
// ticket" of the user-to-user exchange.
func ListenerTGT(cc *credentials.CCache) (messages.Ticket, types.EncryptionKey, error) {
	realm := cc.DefaultPrincipal.Realm
	krbtgtPrincipal := types.PrincipalName{
		NameType:   nametype.KRB_NT_SRV_INST,
		NameString: []string{"krbtgt", realm},
	}
	cred, ok := cc.GetEntry(krbtgtPrincipal)
	if !ok {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: no TGT for realm %s in credential cache", realm)
	}
	var tgt messages.Ticket
	if err := tgt.Unmarshal(cred.Ticket); err != nil {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: unmarshaling cached TGT: %w", err)
	}
	return tgt, cred.Key, nil
}

const (
	// AP-REQ option bit positions, per RFC 4120 §5.5.1.
	flagUseSessionKey  = 1
	flagMutualRequired = 2

	// KDC-REQ option bit position, per RFC 4120 §5.4.1.
	flagEncTktInSkey = 28
)

// ConnectorU2UCreds asks the KDC for a user-to-user credential for (caller
// -> peer) using the peer's TGT as the second ticket, implementing the
// Connector's TicketRcvd -> CredsReady step. client.Client's exported
// GetServiceTicket only ever asks for a keytab-backed service ticket; it
// has no ENC-TKT-IN-SKEY/additional-tickets path, so there is no public
// call that does this (see DESIGN.md). This builds the TGS-REQ directly
// from messages.NewTGSReq plus the ENC-TKT-IN-SKEY KDCOption and the
// peer's TGT as the request's second ticket, and speaks the exchange over
// a plain TCP connection to the realm's KDC per RFC 4120 §7.2.2 framing —
// the same wire shape cl already trusts for AS/TGS, just not one
// client.Client exposes a method for.
func ConnectorU2UCreds(cl *client.Client, cc *credentials.CCache, peerTGT messages.Ticket, peerPrincipal, peerRealm string) (messages.Ticket, types.EncryptionKey, error) {
	cname, err := types.ParseSPNString(peerPrincipal)
	if err != nil {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: parsing peer principal %s: %w", peerPrincipal, err)
	}

	ownTGT, ownSessionKey, err := ListenerTGT(cc)
	if err != nil {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: loading own TGT for U2U request: %w", err)
	}

	req, err := messages.NewTGSReq(cc.GetClientPrincipalName(), cc.DefaultPrincipal.Realm, cl.Config, ownTGT, ownSessionKey, cname, false)
	if err != nil {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: building TGS-REQ: %w", err)
	}
	types.SetFlag(&req.ReqBody.KDCOptions, flagEncTktInSkey)
	req.ReqBody.AdditionalTickets = []messages.Ticket{peerTGT}

	rep, err := sendTGSReq(req, peerRealm, cl.Config)
	if err != nil {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: U2U TGS exchange: %w", err)
	}
	if err := rep.DecryptEncPart(ownSessionKey); err != nil {
		return messages.Ticket{}, types.EncryptionKey{}, fmt.Errorf("krb5auth: decrypting TGS-REP: %w", err)
	}
	return rep.Ticket, rep.DecryptedEncPart.Key, nil
}

// sendTGSReq marshals req and exchanges it with one of realm's KDCs over
// TCP, returning the parsed TGS-REP. A KRB-ERROR reply is surfaced as an
// error rather than a zero-value TGSRep.
func sendTGSReq(req messages.TGSReq, realm string, c *config.Config) (messages.TGSRep, error) {
	_, kdcs, err := c.GetKDCs(realm, false)
	if err != nil || len(kdcs) == 0 {
		return messages.TGSRep{}, fmt.Errorf("resolving KDC for realm %s: %w", realm, err)
	}
	var kdc string
	for _, addr := range kdcs {
		kdc = addr
		break
	}

	b, err := req.Marshal()
	if err != nil {
		return messages.TGSRep{}, fmt.Errorf("marshaling TGS-REQ: %w", err)
	}

	conn, err := net.Dial("tcp", kdc)
	if err != nil {
		return messages.TGSRep{}, fmt.Errorf("dialing KDC %s: %w", kdc, err)
	}
	defer conn.Close()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return messages.TGSRep{}, fmt.Errorf("writing TGS-REQ length: %w", err)
	}
	if _, err := conn.Write(b); err != nil {
		return messages.TGSRep{}, fmt.Errorf("writing TGS-REQ body: %w", err)
	}

	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return messages.TGSRep{}, fmt.Errorf("reading TGS-REP length: %w", err)
	}
	respLen := binary.BigEndian.Uint32(hdr[:])
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return messages.TGSRep{}, fmt.Errorf("reading TGS-REP body: %w", err)
	}

	var rep messages.TGSRep
	if err := rep.Unmarshal(resp); err != nil {
		var kerr messages.KRBError
		if uErr := kerr.Unmarshal(resp); uErr == nil {
			return messages.TGSRep{}, fmt.Errorf("KDC returned error: %s", kerr.EText)
		}
		return messages.TGSRep{}, fmt.Errorf("unmarshaling TGS-REP: %w", err)
	}
	return rep, nil
}

// BuildAPReq produces an AP-REQ against tkt/sessKey for cname, with the
// "use session key" and "mutual required" options set, implementing the
// Connector's CredsReady -> ApReqReady step (spec.md §4.5). useSessionKey
// tells the listener to authenticate the ticket against the TGT session
// key it already holds rather than a long-term service key — the
// defining property of user-to-user auth.
func BuildAPReq(tkt messages.Ticket, sessKey types.EncryptionKey, cname types.PrincipalName, realm string) (messages.APReq, error) {
	auth, err := types.NewAuthenticator(realm, cname)
	if err != nil {
		return messages.APReq{}, fmt.Errorf("krb5auth: building authenticator: %w", err)
	}
	auth.Cksum = types.Checksum{CksumType: int32(crypto.GetChecksumHash(sessKey.KeyType))}

	apReq, err := messages.NewAPReq(tkt, sessKey, auth)
	if err != nil {
		return messages.APReq{}, fmt.Errorf("krb5auth: building AP-REQ: %w", err)
	}
	apReq.APOptions = types.NewKrbFlags()
	types.SetFlag(&apReq.APOptions, flagUseSessionKey)
	types.SetFlag(&apReq.APOptions, flagMutualRequired)
	return apReq, nil
}

// VerifyAPReq decrypts and validates an incoming AP-REQ against the
// listener's own TGT session key (since the ticket inside it is the
// listener's own TGT used as a second ticket), recovering the connector's
// authenticated principal and the time the Authenticator carried — used
// to reject stale replays of the handshake itself, not to be confused
// with the chat channel's own sequence-based replay defense (spec.md
// §4.6). remote is the Endpoint the live socket actually reports for the
// peer (never a hostname guess, per spec.md §4.5's key invariant); it is
// checked against the ticket's own address restriction, if the KDC that
// issued the TGT set one.
func VerifyAPReq(apReq messages.APReq, tgtSessionKey types.EncryptionKey, remote Endpoint, now time.Time) (string, error) {
	if err := apReq.Ticket.DecryptEncPart(tgtSessionKey); err != nil {
		return "", fmt.Errorf("krb5auth: decrypting AP-REQ ticket: %w", err)
	}
	if err := checkAddressRestriction(apReq.Ticket.DecryptedEncPart.Addresses, remote); err != nil {
		return "", err
	}
	auth, err := apReq.DecryptAuthenticator(apReq.Ticket.DecryptedEncPart.Key)
	if err != nil {
		return "", fmt.Errorf("krb5auth: decrypting authenticator: %w", err)
	}
	if auth.CTime.Sub(now).Abs() > 5*time.Minute {
		return "", fmt.Errorf("krb5auth: authenticator timestamp %v outside clock skew tolerance", auth.CTime)
	}
	return splitPrincipalName(auth.CName, auth.CRealm), nil
}

// checkAddressRestriction enforces a ticket's caddr list, if the issuing
// KDC set one (many realms issue addressless tickets, the RFC 4120 §5.3
// default, in which case restricted is empty and this is a no-op).
// remote.HostAddress renders the live socket's Endpoint in the same
// addrtype/octet form the ticket's own caddr entries use, so the two can
// be compared directly.
func checkAddressRestriction(restricted []types.HostAddress, remote Endpoint) error {
	if len(restricted) == 0 {
		return nil
	}
	want := remote.HostAddress()
	for _, a := range restricted {
		if a.AddrType == want.AddrType && bytes.Equal(a.Address, want.Address) {
			return nil
		}
	}
	return fmt.Errorf("krb5auth: peer address %s not in ticket's address restriction list", remote)
}
