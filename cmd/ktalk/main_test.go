package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPrincipal(t *testing.T) {
	name, realm, ok := splitPrincipal("alice@test.example")
	require.True(t, ok)
	require.Equal(t, "alice", name)
	require.Equal(t, "TEST.EXAMPLE", realm)

	_, _, ok = splitPrincipal("alice")
	require.False(t, ok)
}

func TestTrimNUL(t *testing.T) {
	require.Equal(t, []byte("hello"), trimNUL([]byte("hello\x00")))
	require.Equal(t, []byte("hello"), trimNUL([]byte("hello")))
}

func TestComposeByteAppendsAndCompletesLine(t *testing.T) {
	var buf []byte
	var line []byte

	for _, b := range []byte("hi") {
		buf, line = composeByte(buf, b)
		require.Nil(t, line)
	}
	require.Equal(t, []byte("hi"), buf)

	buf, line = composeByte(buf, '\n')
	require.Equal(t, []byte("hi\n\x00"), line)
	require.Empty(t, buf)
}

func TestComposeByteBackspaceOnEmptyIsNoOp(t *testing.T) {
	buf, line := composeByte(nil, 0x08)
	require.Nil(t, line)
	require.Empty(t, buf)
}

func TestComposeByteBackspaceErasesOneByte(t *testing.T) {
	buf := []byte("ab")
	buf, line := composeByte(buf, 0x08)
	require.Nil(t, line)
	require.Equal(t, []byte("a"), buf)
}

func TestComposeByteDELTreatedAsPrintable(t *testing.T) {
	// Documents spec.md §9's open question: the raw byte-level composer
	// checks the printable gate (b > 32) before the 0x7F backspace case,
	// so DEL is appended to the buffer rather than erasing from it.
	buf, line := composeByte([]byte("a"), 0x7f)
	require.Nil(t, line)
	require.Equal(t, []byte{'a', 0x7f}, buf)
}

func TestComposeByteRejectsOverCapacity(t *testing.T) {
	buf := bytes.Repeat([]byte{'x'}, maxLineLen-1)
	newBuf, line := composeByte(buf, 'y')
	require.Nil(t, line)
	require.Equal(t, buf, newBuf, "byte beyond capacity must be dropped, not appended")
}
