// Package notification delivers one-time codes to their recipients.
package notification

import (
	"context"
	"time"
)

// Delivery methods reported back to callers.
const (
	MethodEmail           = "email"
	MethodQueued          = "queued"
	MethodConsole         = "console"
	MethodConsoleFallback = "console-fallback"
)

// OTPNotice is what the lifecycle hands over for delivery. Code is plaintext
// and must not outlive the dispatch call.
type OTPNotice struct {
	To     string
	Code   string
	Window time.Duration
}

// Message is a rendered notice ready for a channel.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Code     string
	Window   time.Duration
}

// Result describes how a notice was handled. Err is advisory: dispatch never
// fails the operation that produced the code.
type Result struct {
	Delivered bool
	Method    string
	Err       error
}

// PendingDelivery reports whether the code did not go straight to the
// recipient's mail server, so the client should tell the user it may be late.
func (r Result) PendingDelivery() bool {
	return r.Method != MethodEmail
}

// Channel is one way of getting a message to a recipient.
type Channel interface {
	Method() string
	Send(ctx context.Context, msg Message) error
}

// Checker is implemented by channels that can probe their backend.
type Checker interface {
	Check(ctx context.Context) error
}
