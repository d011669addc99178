// Package frame implements the length-prefixed octet-string codec that
// carries every message of the ktalk wire protocol: ticket blobs, AP-REQs,
// and sealed chat lines alike all travel as one frame.
//
// A frame is a decimal ASCII length, a single NUL byte, then exactly that
// many payload bytes. The design mirrors the teacher's packet framing in
// xsnet/net.go (explicit length header, retry-until-done reads/writes) but
// trades xsnet's binary big-endian length + HMAC header for the simpler
// human-readable prefix spec.md calls for.
package frame

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// MaxPayload is the largest payload a frame may carry, in bytes.
const MaxPayload = 1024

// Conn wraps a byte stream with a persistent buffered reader so that
// repeated ReadFrame calls against the same stream (the handshake frames
// of internal/krb5auth followed by the chat frames of internal/session)
// share one bufio.Reader instead of each call constructing and discarding
// its own. A fresh bufio.Reader per call would read ahead into whatever
// the underlying Read happens to return in one shot — which, on a real
// socket, is often more than one frame's worth — and then drop those
// buffered-but-unconsumed bytes the moment the temporary reader went out
// of scope. Conn is the fix: one bufio.Reader for the life of the
// connection.
type Conn struct {
	*bufio.Reader
	io.Writer
}

// NewConn wraps rw for repeated framed reads/writes over its lifetime.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{Reader: bufio.NewReader(rw), Writer: rw}
}

// WriteFrame emits payload as one frame: its decimal length, a NUL, then
// the payload itself. Short writes are retried until the whole frame is on
// the wire or an error occurs, matching xsnet.WritePacket's "no partial
// writes visible to callers" contract.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxPayload {
		return fmt.Errorf("frame: refusing to write payload of length %d", len(payload))
	}
	header := []byte(strconv.Itoa(len(payload)))
	header = append(header, 0)
	if err := writeAll(w, header); err != nil {
		return fmt.Errorf("frame: writing length header: %w", err)
	}
	if err := writeAll(w, payload); err != nil {
		return fmt.Errorf("frame: writing payload: %w", err)
	}
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// ReadFrame reads one frame from r: a decimal ASCII length, a NUL
// terminator, then exactly that many payload bytes. It fails if the stream
// closes before the NUL is seen, if the accumulated prefix isn't a valid
// non-negative decimal, if the length is zero, or if it exceeds
// MaxPayload.
//
// An io.EOF returned with a zero-length accumulated prefix is a clean
// close and is returned unwrapped so callers can distinguish it from a
// genuine protocol violation (EOF mid-header or mid-payload).
func ReadFrame(r io.Reader) ([]byte, error) {
	type byteReader interface {
		io.Reader
		io.ByteReader
	}
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var hdr []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(hdr) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("frame: reading length header: %w", err)
		}
		if b == 0 {
			break
		}
		hdr = append(hdr, b)
		if len(hdr) > len(strconv.Itoa(MaxPayload)) {
			return nil, fmt.Errorf("frame: length header too long (no NUL seen)")
		}
	}

	length, err := strconv.Atoi(string(hdr))
	if err != nil {
		return nil, fmt.Errorf("frame: unparseable length %q: %w", hdr, err)
	}
	if length <= 0 || length > MaxPayload {
		return nil, fmt.Errorf("frame: length %d out of range (0, %d]", length, MaxPayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("frame: unexpected EOF mid-payload (wanted %d bytes): %w", length, err)
		}
		return nil, fmt.Errorf("frame: reading payload: %w", err)
	}
	return payload, nil
}
