package services

import (
	"bytes"
	"context"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/example/marketplace/internal/apperr"
)

// MailerConfig holds SMTP settings. An empty Host disables delivery.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

// Mailer sends transactional email over SMTP.
type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	appName string
	log     *zap.Logger
}

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif;">
    <p>Hello,</p>
    <p>Your {{.AppName}} verification code is:</p>
    <h2 style="letter-spacing: 6px;">{{.Code}}</h2>
    <p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
  </body>
</html>`))

// NewMailer constructs a Mailer.
func NewMailer(cfg MailerConfig, log *zap.Logger) *Mailer {
	m := &Mailer{from: cfg.From, appName: cfg.AppName, log: log}
	if m.appName == "" {
		m.appName = "Marketplace"
	}
	if cfg.Host != "" {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return m
}

func renderOTPEmail(appName, code string, minutes int) (string, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		AppName string
		Code    string
		Minutes int
	}{appName, code, minutes})
	return buf.String(), err
}

// SendOTP delivers a verification code to email.
func (m *Mailer) SendOTP(ctx context.Context, email, code string, minutes int) error {
	if m.dialer == nil {
		m.log.Warn("mailer not configured, skipping verification email", zap.String("email", email))
		return nil
	}

	body, err := renderOTPEmail(m.appName, code, minutes)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", m.appName+" verification code")
	msg.SetBody("text/html", body)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		m.log.Error("failed to send verification email", zap.String("email", email), zap.Error(err))
		return apperr.Wrap(apperr.ErrUpstream, err, "failed to send verification email")
	}
	return nil
}
