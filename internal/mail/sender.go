// Package mail delivers result artifacts over SMTP with implicit TLS.
//
// Every failure is returned as a *DeliveryError whose Kind tells callers
// whether credentials, the network, the recipient or the attachment size was
// at fault.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	netmail "net/mail"
	"net/smtp"
	"time"

	"github.com/JonMunkholm/topsis/internal/config"
)

// DialFunc opens the transport connection to the SMTP server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Sender submits messages to a single SMTP server using PLAIN auth.
type Sender struct {
	addr          string
	host          string
	username      string
	password      string
	timeout       time.Duration
	maxAttachment int64
	dial          DialFunc
	now           func() time.Time
}

// NewSender creates a Sender from mail configuration. Missing credentials are
// not an error here; each Send then fails fast with KindAuth.
func NewSender(cfg config.MailConfig) *Sender {
	return &Sender{
		addr:          cfg.Addr(),
		host:          cfg.Host,
		username:      cfg.User,
		password:      cfg.Password,
		timeout:       cfg.Timeout,
		maxAttachment: cfg.MaxAttachmentBytes,
		dial:          tlsDialer(cfg.Host, cfg.Timeout),
		now:           time.Now,
	}
}

// WithDialer replaces the transport. Used by tests to talk to an in-process server.
func (s *Sender) WithDialer(dial DialFunc) *Sender {
	s.dial = dial
	return s
}

// From returns the sender address.
func (s *Sender) From() string {
	return s.username
}

// Configured reports whether credentials are present.
func (s *Sender) Configured() bool {
	return s.username != "" && s.password != ""
}

func tlsDialer(host string, timeout time.Duration) DialFunc {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}
	return d.DialContext
}

// Send delivers msg. The whole exchange is bounded by the configured timeout
// and by ctx.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return &DeliveryError{Kind: KindAuth, Op: "auth", Err: ErrCredentialsMissing}
	}
	if msg.Attachment != nil && int64(len(msg.Attachment.Data)) > s.maxAttachment {
		return &DeliveryError{
			Kind: KindAttachmentTooLarge,
			Op:   "attach",
			Err:  fmt.Errorf("%w: %d > %d bytes", ErrAttachmentTooLarge, len(msg.Attachment.Data), s.maxAttachment),
		}
	}

	to, err := netmail.ParseAddress(msg.To)
	if err != nil {
		return fail("address", err)
	}

	raw, err := msg.compose(s.username, to.Address, s.now())
	if err != nil {
		return fail("compose", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return fail("dial", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fail("greeting", err)
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
		return fail("auth", err)
	}
	if err := c.Mail(s.username); err != nil {
		return fail("mail", err)
	}
	if err := c.Rcpt(to.Address); err != nil {
		return fail("rcpt", err)
	}

	w, err := c.Data()
	if err != nil {
		return fail("data", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fail("data", err)
	}
	if err := w.Close(); err != nil {
		return fail("data", err)
	}

	// The message is accepted once DATA completes; a failed QUIT does not undo that.
	if err := c.Quit(); err != nil {
		slog.Debug("smtp quit failed after delivery", "error", err)
	}
	return nil
}
