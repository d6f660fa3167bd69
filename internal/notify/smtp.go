package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"uniid/internal/platform/config"
	"uniid/pkg/email"
)

// implicitTLSPort is the SMTPS port; any other port upgrades with STARTTLS.
const implicitTLSPort = 465

// SendFunc delivers a rendered message. It exists so tests can capture mail
// without a server.
type SendFunc func(ctx context.Context, cfg config.SMTP, from, to string, msg []byte) error

// SMTP sends the identity-created email over SMTP.
type SMTP struct {
	cfg  config.SMTP
	send SendFunc
	now  func() time.Time
}

// SMTPOption configures an SMTP notifier.
type SMTPOption func(*SMTP)

// WithSendFunc replaces the network transport.
func WithSendFunc(fn SendFunc) SMTPOption {
	return func(n *SMTP) {
		if fn != nil {
			n.send = fn
		}
	}
}

func NewSMTP(cfg config.SMTP, opts ...SMTPOption) *SMTP {
	n := &SMTP{cfg: cfg, send: sendMail, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func (n *SMTP) Notify(ctx context.Context, recipient, identityID string) Result {
	res := Result{Recipient: recipient, IdentityID: identityID, Channel: "smtp"}
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}
	msg := email.IdentityCreated(from, recipient, identityID, n.now())
	if err := msg.Validate(); err != nil {
		res.Err = err
		return res
	}
	if err := n.send(ctx, n.cfg, from, recipient, msg.Bytes()); err != nil {
		res.Err = fmt.Errorf("send identity email: %w", err)
	}
	return res
}

func sendMail(ctx context.Context, cfg config.SMTP, from, to string, msg []byte) error {
	if cfg.Host == "" {
		return errors.New("smtp host not configured")
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if cfg.Port == implicitTLSPort {
		conn, err = (&tls.Dialer{Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("start TLS: %w", err)
			}
		}
	}
	if cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}
	return client.Quit()
}
