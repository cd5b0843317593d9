package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"folio/internal/fault"
	"folio/internal/logging"
	"folio/internal/retry"
)

type scriptedSender struct {
	errs  []error
	calls int
	sent  []Message
}

func (s *scriptedSender) Send(ctx context.Context, msg Message) error {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, msg)
	return nil
}

type slowSender struct{}

func (slowSender) Send(ctx context.Context, _ Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func noSleepPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, Sleep: func(context.Context, time.Duration) error { return nil }}
}

func TestRetryingSenderRetriesTransient(t *testing.T) {
	next := &scriptedSender{errs: []error{fault.Transient("smtp", errors.New("reset")), nil}}
	s := RetryingSender{Next: next, Policy: noSleepPolicy(), Logger: logging.Discard()}
	if err := s.Send(context.Background(), Message{To: "r@x.org"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if next.calls != 2 || len(next.sent) != 1 {
		t.Fatalf("expected 2 calls and 1 sent, got %d/%d", next.calls, len(next.sent))
	}
}

func TestRetryingSenderStopsOnPermanentError(t *testing.T) {
	next := &scriptedSender{errs: []error{errors.New("550 mailbox unavailable")}}
	s := RetryingSender{Next: next, Policy: noSleepPolicy()}
	if err := s.Send(context.Background(), Message{To: "r@x.org"}); err == nil {
		t.Fatalf("expected error")
	}
	if next.calls != 1 {
		t.Fatalf("expected single attempt, got %d", next.calls)
	}
}

func TestRetryingSenderTimesOutEachAttempt(t *testing.T) {
	s := RetryingSender{Next: slowSender{}, Policy: noSleepPolicy(), Timeout: 10 * time.Millisecond}
	err := s.Send(context.Background(), Message{To: "r@x.org"})
	if !fault.IsTransient(err) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
}

func TestRenderInvitationLocales(t *testing.T) {
	n := InvitationNotice{
		To:              "r@x.org",
		ReviewerName:    "Rita",
		SubmissionTitle: "Volcanes <b>activos</b>",
		RespondURL:      "https://journal.example/invitations/respond?token=abc&lang=es",
		ExpiresAt:       "2026-10-23",
		Journal:         "Revista",
		Locale:          "es",
	}
	msg, err := RenderInvitation(n)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(msg.Subject, "Invitación") || !strings.Contains(msg.HTMLBody, "Estimado/a Rita") {
		t.Fatalf("unexpected es message %+v", msg)
	}
	if strings.Contains(msg.HTMLBody, "<b>activos</b>") {
		t.Fatalf("title must be escaped: %s", msg.HTMLBody)
	}

	n.Locale = "en"
	n.Reminder = true
	msg, err = RenderInvitation(n)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(msg.Subject, "Reminder:") || !strings.Contains(msg.HTMLBody, "This is a reminder") {
		t.Fatalf("unexpected en reminder %+v", msg)
	}
}

func TestRenderDecision(t *testing.T) {
	msg, err := RenderDecision(DecisionNotice{To: "a@x.org", AuthorName: "Ana", SubmissionTitle: "Uno", Decision: "accept", Journal: "Revista"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "a@x.org" || !strings.Contains(msg.HTMLBody, "accept") {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestNewSMTPSenderRequiresHost(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{From: "x@y.org"}); err == nil {
		t.Fatalf("expected configuration error")
	}
}
