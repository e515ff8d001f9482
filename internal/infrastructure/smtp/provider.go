package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ride-identity/internal/config"
)

// Names of the two relays as used in EMAIL_PROVIDERS.
const (
	NamePrimary  = "smtp"
	NameFallback = "smtp_fallback"
)

// Relay is one SMTP server the provider talks to.
type Relay struct {
	Host     string
	Port     string
	Username string
	Password string
}

// Provider sends plain-text email through one relay.
type Provider struct {
	name  string
	relay Relay
	from  string
}

func New(name, from string, relay Relay) *Provider {
	return &Provider{name: name, relay: relay, from: from}
}

// NewPrimary returns the primary relay provider.
func NewPrimary(cfg *config.Config) *Provider {
	return New(NamePrimary, cfg.SMTP.From, Relay{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	})
}

// NewFallback returns the fallback relay provider, or nil when none is configured.
func NewFallback(cfg *config.Config) *Provider {
	if cfg.SMTP.FallbackHost == "" {
		return nil
	}
	return New(NameFallback, cfg.SMTP.From, Relay{
		Host:     cfg.SMTP.FallbackHost,
		Port:     cfg.SMTP.FallbackPort,
		Username: cfg.SMTP.FallbackUsername,
		Password: cfg.SMTP.FallbackPassword,
	})
}

func (p *Provider) Name() string { return p.name }

// Send delivers one message. The whole SMTP conversation shares ctx's deadline.
func (p *Provider) Send(ctx context.Context, destination, subject, body string) error {
	addr := net.JoinHostPort(p.relay.Host, p.relay.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.relay.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: p.relay.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if p.relay.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", p.relay.Username, p.relay.Password, p.relay.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(p.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(destination); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(buildMessage(p.from, destination, subject, body, time.Now())); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
