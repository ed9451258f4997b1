package service

import (
	"context"
	"fmt"
	"time"

	"followpro/api/config"
	"followpro/api/internal/model"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Notifier delivers one-time codes to users
type Notifier interface {
	SendCode(ctx context.Context, email, code string, purpose model.Purpose) error
}

// Mailer sends codes over SMTP
type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	appName string
	ttl     time.Duration
}

func NewMailer(c config.Mail, otpTTL time.Duration) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(c.Host, c.Port, c.Username, c.Password),
		from:    c.Sender,
		appName: c.AppName,
		ttl:     otpTTL,
	}
}

func (m *Mailer) SendCode(ctx context.Context, email, code string, purpose model.Purpose) error {
	if email == m.from {
		return fmt.Errorf("refusing to send mail to the sender address")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject(purpose, m.appName))
	msg.SetBody("text/html", body(purpose, code, m.ttl))

	// gomail has no context support, so the send runs on its own and we
	// stop waiting when ctx is done
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func subject(purpose model.Purpose, appName string) string {
	if purpose == model.PurposePasswordReset {
		return "Reset your " + appName + " password"
	}

	return "Verify your email to start using " + appName
}

func body(purpose model.Purpose, code string, ttl time.Duration) string {
	action := "verify your account"
	if purpose == model.PurposePasswordReset {
		action = "reset your password"
	}

	return fmt.Sprintf("Use the code <b>%s</b> to %s.<br><br>This code will expire in %d minutes. If you didn't request it you can ignore this email.",
		code, action, int(ttl.Minutes()))
}

// LogNotifier writes codes to the log instead of sending them. Used when
// mail delivery is disabled.
type LogNotifier struct{}

func (LogNotifier) SendCode(_ context.Context, email, code string, purpose model.Purpose) error {
	zap.L().Info("One-time code issued",
		zap.String("email", email),
		zap.String("purpose", string(purpose)),
		zap.String("code", code))

	return nil
}
