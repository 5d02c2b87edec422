package busclient

import (
	"context"
	"time"
)

// Envelope carries the transport metadata of a received message, enough to
// address a reply back to the sender.
type Envelope struct {
	// ID identifies the received message, for logging and correlation.
	ID string
	// Subject is the group subject the message arrived on.
	Subject string
	// Reply is the transport reply subject; empty when the sender does
	// not expect an answer.
	Reply string
}

// Session is the bus-endpoint contract the coordinator depends on. The
// production implementation is the NATS-backed Client; tests substitute an
// in-memory session.
type Session interface {
	// Subscribe joins a group. A non-empty instance names this member
	// within the group.
	Subscribe(group, instance string) error

	// Send publishes a message to a group without awaiting an answer.
	Send(target string, msg map[string]any) error

	// Request publishes a message to a group and blocks for a single
	// answer under the given timeout. This is the only bounded receive;
	// idle receives have no time limit.
	Request(target string, msg map[string]any, timeout time.Duration) (map[string]any, error)

	// Receive blocks until the next inbound message arrives or ctx is
	// done. A message that fails to decode yields a non-nil envelope
	// together with an error, so the caller can still address a failure
	// answer.
	Receive(ctx context.Context) (map[string]any, *Envelope, error)

	// Reply sends an answer to the sender of the enveloped message. It is
	// a no-op when the envelope carries no reply subject.
	Reply(env *Envelope, msg map[string]any) error

	// Close tears the session down.
	Close(ctx context.Context) error
}
