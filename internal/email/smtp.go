// Package email delivers the digest message over SMTP. STARTTLS on the
// submission port is tried first, with implicit TLS on the SSL port as the
// fallback, matching how most providers expose both.
package email

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"daily-movers/internal/config"
	domerrors "daily-movers/internal/errors"
	"daily-movers/internal/logging"
)

// Sender sends a prepared RFC 5322 message using the configured SMTP account.
type Sender struct {
	cfg    *config.Config
	runlog *logging.RunLogger
}

// NewSender creates a sender bound to the run's structured log.
func NewSender(cfg *config.Config, runlog *logging.RunLogger) *Sender {
	return &Sender{cfg: cfg, runlog: runlog}
}

// CanSend reports whether the SMTP credentials are fully configured.
func (s *Sender) CanSend() bool {
	return s.cfg.SMTPReady()
}

// Send delivers the message to a single recipient. STARTTLS is attempted
// first; on any failure the implicit-TLS port is tried before giving up.
func (s *Sender) Send(message []byte, fromEmail, toEmail string) error {
	if !s.CanSend() {
		return domerrors.NewEmailDeliveryError(s.cfg.SMTP.Host, s.cfg.SMTP.Port, "SMTP configuration incomplete", nil)
	}

	host := s.cfg.SMTP.Host
	timeout := s.cfg.HTTP.RequestTimeout

	if err := s.sendSTARTTLS(message, fromEmail, toEmail, timeout); err != nil {
		s.runlog.Warning("email_starttls_failed", map[string]any{
			"stage":         "email",
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
			"url":           fmt.Sprintf("smtp://%s:%d", host, s.cfg.SMTP.Port),
		})
	} else {
		s.runlog.Info("email_sent_starttls", map[string]any{
			"stage":  "email",
			"status": "ok",
			"url":    fmt.Sprintf("smtp://%s:%d", host, s.cfg.SMTP.Port),
		})
		return nil
	}

	if err := s.sendSSL(message, fromEmail, toEmail, timeout); err != nil {
		return domerrors.NewEmailDeliveryError(host, s.cfg.SMTP.SSLPort,
			fmt.Sprintf("SMTP send failed on STARTTLS and SSL: %v", err), err)
	}
	s.runlog.Info("email_sent_ssl", map[string]any{
		"stage":  "email",
		"status": "ok",
		"url":    fmt.Sprintf("smtps://%s:%d", host, s.cfg.SMTP.SSLPort),
	})
	return nil
}

func (s *Sender) sendSTARTTLS(message []byte, fromEmail, toEmail string, timeout time.Duration) error {
	host := s.cfg.SMTP.Host
	addr := fmt.Sprintf("%s:%d", host, s.cfg.SMTP.Port)

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	return s.transmit(client, message, fromEmail, toEmail)
}

func (s *Sender) sendSSL(message []byte, fromEmail, toEmail string, timeout time.Duration) error {
	host := s.cfg.SMTP.Host
	addr := fmt.Sprintf("%s:%d", host, s.cfg.SMTP.SSLPort)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	return s.transmit(client, message, fromEmail, toEmail)
}

func (s *Sender) transmit(client *smtp.Client, message []byte, fromEmail, toEmail string) error {
	auth := smtp.PlainAuth("", s.cfg.SMTP.Username, s.cfg.SMTP.Password, s.cfg.SMTP.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := client.Mail(fromEmail); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(toEmail); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return client.Quit()
}
