package notification

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher delivers OTP notices through a primary channel, falling back to
// the console when it fails.
type Dispatcher struct {
	primary  Channel
	fallback Channel
	renderer *Renderer
}

func NewDispatcher(primary Channel, renderer *Renderer) *Dispatcher {
	return &Dispatcher{
		primary:  primary,
		fallback: &ConsoleChannel{method: MethodConsoleFallback},
		renderer: renderer,
	}
}

// Dispatch never returns an error: a failed primary send is reported in
// Result.Err and the code is still surfaced through the fallback.
func (d *Dispatcher) Dispatch(ctx context.Context, n OTPNotice) Result {
	msg, err := d.renderer.Render(n)
	if err != nil {
		slog.ErrorContext(ctx, "render otp message", "err", err)
		msg = Message{
			To:       n.To,
			Subject:  Subject,
			TextBody: fmt.Sprintf("Your verification code is %s", n.Code),
			Code:     n.Code,
			Window:   n.Window,
		}
	}

	err = d.primary.Send(ctx, msg)
	if err == nil {
		slog.InfoContext(ctx, "otp dispatched", "email", n.To, "method", d.primary.Method())
		return Result{Delivered: true, Method: d.primary.Method()}
	}
	slog.WarnContext(ctx, "otp dispatch failed, falling back", "email", n.To, "method", d.primary.Method(), "err", err)

	if d.primary.Method() == MethodConsole {
		return Result{Method: MethodConsole, Err: err}
	}
	// ctx may already be past its deadline; the console needs none
	ferr := d.fallback.Send(context.WithoutCancel(ctx), msg)
	return Result{Delivered: ferr == nil, Method: d.fallback.Method(), Err: err}
}

// Health is the readiness of the primary channel.
type Health struct {
	Channel string `json:"channel"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

// Check probes the primary channel when it supports probing.
func (d *Dispatcher) Check(ctx context.Context) Health {
	h := Health{Channel: d.primary.Method(), Ready: true}
	if c, ok := d.primary.(Checker); ok {
		if err := c.Check(ctx); err != nil {
			h.Ready = false
			h.Error = err.Error()
		}
	}
	return h
}
