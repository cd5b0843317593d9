package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	mail "github.com/go-mail/mail/v2"

	"folio/internal/fault"
)

type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string
	SkipTLSVerify bool
	Timeout       time.Duration
}

// SMTPSender sends through an SMTP relay with mandatory STARTTLS.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp not configured (host/from)")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.SkipTLSVerify,
	}
	if s.cfg.Timeout > 0 {
		d.Timeout = s.cfg.Timeout
	}

	// DialAndSend takes no context; the attempt is abandoned when ctx ends.
	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()
	select {
	case <-ctx.Done():
		return fault.Transient("smtp send", ctx.Err())
	case err := <-done:
		if err == nil {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return fault.Transient("smtp send", err)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
}
