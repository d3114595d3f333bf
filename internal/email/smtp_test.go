package email

import (
	"strings"
	"testing"
	"time"

	"daily-movers/internal/config"
)

func senderConfig() *config.Config {
	return &config.Config{
		SMTP: config.SMTPConfig{
			Host:      "smtp.example.com",
			Port:      587,
			SSLPort:   465,
			Username:  "user",
			Password:  "pass",
			FromEmail: "from@example.com",
			SelfEmail: "self@example.com",
		},
		HTTP: config.HTTPConfig{RequestTimeout: 20 * time.Second},
	}
}

func TestCanSendRequiresFullCredentials(t *testing.T) {
	sender := NewSender(senderConfig(), nil)
	if !sender.CanSend() {
		t.Error("fully configured sender reported not ready")
	}

	incomplete := senderConfig()
	incomplete.SMTP.Password = ""
	if NewSender(incomplete, nil).CanSend() {
		t.Error("missing password reported ready")
	}
}

func TestSendRejectsIncompleteConfig(t *testing.T) {
	cfg := senderConfig()
	cfg.SMTP.Username = ""
	sender := NewSender(cfg, nil)

	err := sender.Send([]byte("From: a@b\r\n\r\nbody"), "a@b", "c@d")
	if err == nil {
		t.Fatal("expected error for incomplete config")
	}
	if !strings.Contains(err.Error(), "SMTP configuration incomplete") {
		t.Errorf("err = %v", err)
	}
}
