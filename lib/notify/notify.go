// Package notify defines the reminder delivery transport.
package notify

import "context"

// Message is one reminder email.
type Message struct {
	To        string
	Title     string
	Notes     string
	TimeLabel string
}

// Sender delivers a message through an external transport. A nil error means
// the transport accepted the message. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
