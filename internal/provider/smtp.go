package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"

	"LeadPulse/internal/credentials"
)

// SMTPProvider sends through a provider's SMTP endpoint, authenticating with
// the credential stored for the sender identity.
type SMTPProvider struct {
	name  string
	host  string
	port  int
	creds *credentials.Manager

	// retryWindow bounds in-attempt retries; once exhausted the delivery is
	// reported failed and never retried by the worker.
	retryWindow time.Duration
}

func NewSMTP(name, host string, port int, creds *credentials.Manager) *SMTPProvider {
	return &SMTPProvider{
		name:        name,
		host:        host,
		port:        port,
		creds:       creds,
		retryWindow: 10 * time.Second,
	}
}

func (p *SMTPProvider) Name() string {
	return p.name
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	cred, err := p.creds.Token(ctx, msg.FromEmail)
	if err != nil {
		return fmt.Errorf("credentials for %s: %w", msg.FromEmail, err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-Recipient-ID", msg.To)
	m.SetBody("text/plain", msg.Body)

	d := gomail.NewDialer(p.host, p.port, cred.Username, cred.AccessToken)

	operation := func() error {
		return p.dialAndSend(ctx, d, m)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = p.retryWindow

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

// dialAndSend runs the blocking gomail call under the caller's context so a
// stalled SMTP connection cannot outlive the per-send timeout.
func (p *SMTPProvider) dialAndSend(ctx context.Context, d *gomail.Dialer, m *gomail.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
