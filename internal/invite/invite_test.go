package invite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSenderIdentityStripsRealm(t *testing.T) {
	require.Equal(t, "alice", SenderIdentity("alice@ATHENA.MIT.EDU"))
	require.Equal(t, "alice@OTHER.REALM", SenderIdentity("alice@OTHER.REALM"))
}

func TestBodyFormat(t *testing.T) {
	body := Body("alice", "example", 2051)
	require.Contains(t, body, "ktalk alice example 2051")
	require.Contains(t, body, "add ktools")
}

func TestStubBusPublish(t *testing.T) {
	bus := &StubBus{}
	require.NoError(t, bus.Publish(Message{Recipient: "bob@TEST", Body: "hi"}))
	require.Len(t, bus.Log, 1)
	require.Equal(t, "bob@TEST", bus.Log[0].Recipient)
}
