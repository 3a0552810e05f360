// Package notify sends messages to users out of band.
//
// Delivery is best effort everywhere it is used: a registration that
// succeeded stays successful even if its welcome email never leaves.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Welcome message sent after registration.
const (
	WelcomeSubject = "Welcome to FlyCalcio"
	WelcomeBody    = "Please confirm your account."
)

// DefaultTimeout bounds a single asynchronous delivery.
const DefaultTimeout = 10 * time.Second

// Notifier delivers one message to one recipient.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) error
}

// LogNotifier records messages in the log instead of sending them. It stands
// in for an email provider until one is wired.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, to, subject, _ string) error {
	n.logger.InfoContext(ctx, "sending notification",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// Async wraps a Notifier so Notify returns immediately. Delivery runs in its
// own goroutine under its own timeout, detached from the caller's context,
// and failures are logged, never returned.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps next. A non-positive timeout means DefaultTimeout.
func NewAsync(next Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// Notify always returns nil.
func (a *Async) Notify(ctx context.Context, to, subject, body string) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.next.Notify(sendCtx, to, subject, body); err != nil {
			a.logger.Warn("notification failed",
				slog.String("to", to),
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Wait blocks until every delivery started so far has finished. Called on
// shutdown, and by tests.
func (a *Async) Wait() {
	a.wg.Wait()
}
