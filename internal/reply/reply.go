package reply

import (
	"context"
	"time"
)

// Checker reports whether the recipient has replied to the sender since the
// reference time. Implementations search the sender's mailbox through the
// provider API; the worker only consumes the boolean.
type Checker interface {
	HasReply(ctx context.Context, senderEmail, recipientEmail string, since time.Time) (bool, error)
}

// Func adapts a plain function to Checker.
type Func func(ctx context.Context, senderEmail, recipientEmail string, since time.Time) (bool, error)

func (f Func) HasReply(ctx context.Context, senderEmail, recipientEmail string, since time.Time) (bool, error) {
	return f(ctx, senderEmail, recipientEmail, since)
}

// Disabled never detects a reply. Used when no mailbox access is configured;
// follow-ups then run to completion.
type Disabled struct{}

func (Disabled) HasReply(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
