// Package notify delivers journal e-mail. A send counts as done when the
// transport accepts the message; delivery receipts are never awaited.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"folio/internal/fault"
	"folio/internal/logging"
	"folio/internal/retry"
)

// Message is a rendered e-mail.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Sender accepts a message for delivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":  "notify",
			"to":      msg.To,
			"subject": msg.Subject,
		}).Info("notification accepted (log transport)")
	}
	return nil
}

// RetryingSender bounds each attempt with Timeout and retries transient
// failures under Policy.
type RetryingSender struct {
	Next    Sender
	Policy  retry.Policy
	Timeout time.Duration
	Logger  *logrus.Logger
}

func (s RetryingSender) Send(ctx context.Context, msg Message) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempt := 0
	err := retry.Do(ctx, s.Policy, func(ctx context.Context) error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := s.Next.Send(actx, msg)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && !fault.IsTransient(err) {
			err = fault.Transient("send mail", err)
		}
		if err != nil && s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"module":  "notify",
				"to":      msg.To,
				"attempt": attempt,
			}).Warn("send failed: " + err.Error())
		}
		return err
	})
	if err != nil {
		logging.LogError(s.Logger, "notify", "RetryingSender.Send", err, logrus.Fields{"to": msg.To, "attempts": attempt})
	}
	return err
}
