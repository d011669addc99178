package frame

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("x"),
		[]byte("hello\r\n\x00"),
		bytes.Repeat([]byte("a"), MaxPayload),
	}
	for _, p := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, p))
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestWriteRejectsOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteFrame(&buf, nil))
	require.Error(t, WriteFrame(&buf, bytes.Repeat([]byte("a"), MaxPayload+1)))
}

func TestReadRejectsBadLength(t *testing.T) {
	cases := []string{
		"0\x00",
		"1025\x00" + strings.Repeat("a", 1025),
		"notanumber\x00abc",
	}
	for _, c := range cases {
		_, err := ReadFrame(strings.NewReader(c))
		require.Error(t, err)
	}
}

func TestReadCleanCloseOnEmptyStream(t *testing.T) {
	_, err := ReadFrame(strings.NewReader(""))
	require.ErrorIs(t, err, io.EOF)
}

func TestReadUnexpectedEOFMidPayload(t *testing.T) {
	_, err := ReadFrame(strings.NewReader("10\x00ab"))
	require.Error(t, err)
}

func TestReadUnexpectedEOFMidHeader(t *testing.T) {
	_, err := ReadFrame(strings.NewReader("12"))
	require.Error(t, err)
}

// TestConnPreservesReadAheadAcrossFrames guards against regressing to a
// fresh bufio.Reader per ReadFrame call. bytes.Buffer.Read (like a real
// socket under load) happily hands back more than one frame's worth of
// bytes in a single Read; a Conn must carry the leftover bytes forward to
// the next ReadFrame call instead of discarding them.
func TestConnPreservesReadAheadAcrossFrames(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, WriteFrame(&wire, []byte("first")))
	require.NoError(t, WriteFrame(&wire, []byte("second")))

	c := NewConn(&wire)
	got1, err := ReadFrame(c)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got1)

	got2, err := ReadFrame(c)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got2)
}
