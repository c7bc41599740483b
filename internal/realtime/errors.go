package realtime

import (
	"fmt"
	"strings"
)

// The core funnels every failure through a single error callback, classified
// by origin. Credential and device failures are terminal for the attempt;
// channel failures are terminal for the session; protocol problems are logged
// and survivable.

// CredentialError indicates ephemeral token issuance failed
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential issuance failed: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// DeviceError indicates the microphone was unavailable or denied
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device failed: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ChannelError indicates a transport-level failure on the streaming channel
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("streaming channel failed: %v", e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed or unexpected inbound message. It does
// not terminate the session.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// isBenignNotice reports whether a provider error message is the known
// harmless race: server-side VAD already committed the buffer before a commit
// the service attempted internally, and the leftover was too small. These
// must never reach the user.
//
// The match is a substring of provider wording and is fragile by contract;
// the criterion is owned by the provider, not us.
func isBenignNotice(msg string) bool {
	return strings.Contains(msg, "buffer too small")
}
