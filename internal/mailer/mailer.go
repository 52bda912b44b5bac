// Package mailer sends plain-text notification mail over SMTP. The engine
// never waits on delivery beyond the success or failure of the send call.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the SMTP endpoint and credentials.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTP struct {
	cfg    Config
	logger *zap.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg Config, log *zap.Logger) *SMTP {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	return &SMTP{cfg: cfg, logger: log, send: smtp.SendMail}
}

// Send delivers one plain-text message. The context is honored before the
// network call; net/smtp itself does not support cancellation mid-send.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("recipient address is required")
	}

	msg := BuildMessage(s.cfg.From, to, subject, body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	s.logger.Info("sent mail",
		zap.String("to", to),
		zap.String("subject", subject),
	)

	return nil
}

// BuildMessage assembles the raw RFC 5322 message with a generated Message-ID
// so replies can thread against our outbound mail.
func BuildMessage(from, to, subject, body string) []byte {
	domain := "rfp-pilot.local"
	if at := strings.Index(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimSuffix(from[at+1:], ">")
	}

	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		fmt.Sprintf("Message-ID: <%s@%s>", uuid.NewString(), domain),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}

	return []byte(strings.Join(headers, "\r\n") + "\r\n")
}

// SubjectTag renders the machine-parseable RFP reference appended to every
// outbound dispatch subject, e.g. "[RFPID:48]".
func SubjectTag(rfpID uint) string {
	return fmt.Sprintf("[RFPID:%d]", rfpID)
}
