// Package channel implements the secure chat channel of spec.md §4.6:
// Seal/Open over a krb5auth.AuthContext, with the sequence-number
// discipline that gives the channel its ordering and replay guarantees.
//
// Where the teacher's xsnet.Conn.WritePacket/Read pair build their own
// stream cipher + HMAC framing (internal/krb5auth's teacher forebear),
// channel.Seal/Open instead wrap gokrb5's GSS-API token format
// (gssapi.WrapToken), which already carries a sequence number and an
// integrity checksum keyed off the session key — the direct analogue of
// xsnet's "do sequence"-gated HMAC check.
package channel

import (
	"fmt"

	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"

	"blitter.com/go/ktalk/internal/krb5auth"
)

// Seal applies integrity and confidentiality to line using ctx's session
// key, advancing the local sequence counter. Per spec.md §4.6/§7, a seal
// failure is fatal: it indicates local key corruption, not a condition to
// retry.
func Seal(ctx *krb5auth.AuthContext, line []byte) ([]byte, error) {
	seq := ctx.NextSendSeq()
	wt, err := gssapi.NewInitiatorWrapToken(line, ctx.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("channel: seal: building wrap token: %w", err)
	}
	wt.SndSeqNum = seq
	if err := wt.SetCheckSum(ctx.SessionKey, keyusage.GSSAPI_INITIATOR_SEAL); err != nil {
		return nil, fmt.Errorf("channel: seal: checksumming wrap token: %w", err)
	}
	blob, err := wt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("channel: seal: marshaling wrap token: %w", err)
	}
	return blob, nil
}

// Open verifies integrity, confidentiality, and the monotonically
// increasing sequence number of blob against ctx, returning the recovered
// ChatLine (trailing NUL included, per spec.md §3). Per spec.md §4.6/§7,
// an open failure is fatal: it may indicate an attack or a desynced
// channel, and this layer has no meaningful recovery.
func Open(ctx *krb5auth.AuthContext, blob []byte) ([]byte, error) {
	var wt gssapi.WrapToken
	if err := wt.Unmarshal(blob, false); err != nil {
		return nil, fmt.Errorf("channel: open: unmarshaling wrap token: %w", err)
	}
	ok, err := wt.Verify(ctx.SessionKey, keyusage.GSSAPI_INITIATOR_SEAL)
	if err != nil || !ok {
		return nil, fmt.Errorf("channel: open: integrity check failed: %w", err)
	}
	if err := ctx.CheckRecvSeq(wt.SndSeqNum); err != nil {
		return nil, fmt.Errorf("channel: open: %w", err)
	}
	return wt.Payload, nil
}
