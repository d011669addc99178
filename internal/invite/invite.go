// Package invite implements spec.md §4.4's invitation emitter: composing
// the human-readable invitation, and delivering it either by spawning a
// user-supplied messenger program or by publishing to a notification bus.
//
// Failure here is always non-fatal (spec.md §4.4's last paragraph) — the
// listener keeps waiting on its socket regardless, since a human can
// always dial in out-of-band.
package invite

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"blitter.com/go/ktalk/internal/logger"
)

// Bus is the out-of-band notification transport spec.md §6 describes.
// ktalk ships only a process-local stub; a real deployment supplies its
// own implementation wired to its site's notification service (the
// classic MIT `zephyr` service, for the original `ktalk` this spec is
// drawn from) — spec.md §1 puts the transport itself out of scope.
type Bus interface {
	Publish(msg Message) error
}

// Message is the notification-bus body spec.md §6 specifies.
type Message struct {
	Class     string
	Instance  string
	Recipient string
	Kind      string
	Signature string
	Body      string
}

// Body is the fixed invitation text spec.md §6 specifies.
func Body(sender, host string, port int) string {
	return fmt.Sprintf(
		"This user is requesting a krb5 user to user encrypted communication channel.\n"+
			"To open the channel type:\n\n"+
			"   add ktools\n"+
			"   ktalk %s %s %d\n\n"+
			"at the Athena%% prompt.\n",
		sender, host, port)
}

// LocalHostLabel canonicalizes the local hostname, stripping a trailing
// ".mit.edu" (case-insensitive), per spec.md §4.4.
func LocalHostLabel() (string, error) {
	h, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("invite: hostname: %w", err)
	}
	const suffix = ".mit.edu"
	if len(h) > len(suffix) && strings.EqualFold(h[len(h)-len(suffix):], suffix) {
		h = h[:len(h)-len(suffix)]
	}
	return h, nil
}

// SenderIdentity strips the realm suffix "@ATHENA.MIT.EDU" from principal
// if present, per spec.md §4.4.
func SenderIdentity(principal string) string {
	const suffix = "@ATHENA.MIT.EDU"
	if len(principal) > len(suffix) && strings.EqualFold(principal[len(principal)-len(suffix):], suffix) {
		return principal[:len(principal)-len(suffix)]
	}
	return principal
}

// Emit delivers the invitation, per spec.md §4.4: through messenger if
// one is configured, otherwise via bus. Any error is logged but never
// returned as fatal to the caller — the listener proceeds to Accept()
// regardless.
func Emit(bus Bus, messenger, recipient, sender, host string, port int) {
	if messenger != "" {
		if err := spawnMessenger(messenger, sender, host, port); err != nil {
			logger.Err(fmt.Sprintf("invite: spawning messenger %s: %v", messenger, err))
		}
		return
	}
	msg := Message{
		Class:     "message",
		Instance:  "personal",
		Recipient: recipient,
		Kind:      "acknowledged",
		Signature: fmt.Sprintf("ktalk invitation from %s", sender),
		Body:      Body(sender, host, port),
	}
	if err := bus.Publish(msg); err != nil {
		logger.Err(fmt.Sprintf("invite: publishing notification: %v", err))
	}
}

// spawnMessenger forks messenger(sender, host, port), inheriting stdout/
// stderr, and reaps the child non-blockingly without waiting for it to
// exit (spec.md §4.4/§5: "fire-and-forget"). A fork failure is reported
// but not propagated as fatal.
func spawnMessenger(messenger, sender, host string, port int) error {
	cmd := exec.Command(messenger, sender, host, fmt.Sprintf("%d", port)) // nolint: gosec
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	go reapNonBlocking(cmd)
	return nil
}

// reapNonBlocking waits for cmd in the background so it never becomes a
// zombie, without blocking the caller (spec.md §5's "parent reaps
// already-exited children non-blockingly").
func reapNonBlocking(cmd *exec.Cmd) {
	if err := cmd.Wait(); err != nil {
		logger.Debug(fmt.Sprintf("invite: messenger exited: %v", err))
	}
}

// StubBus is an in-process Bus used when no real notification service is
// wired in; it logs the message it would have published. See spec.md §1:
// invitation transport is deliberately pluggable and out of scope.
type StubBus struct {
	mu  sync.Mutex
	Log []Message
}

func (b *StubBus) Publish(msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Log = append(b.Log, msg)
	logger.Debug(fmt.Sprintf("invite: stub bus publish to %s: %s", msg.Recipient, msg.Signature))
	return nil
}
