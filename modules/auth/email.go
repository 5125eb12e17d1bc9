package auth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"time"

	"golang.org/x/time/rate"
)

type EmailConfig struct {
	Addr string
	From string
	Auth smtp.Auth
}

// NewGoogleSmtpConfig returns an EmailConfig for sending through Gmail using
// an app password.
func NewGoogleSmtpConfig(from, appPassword string) *EmailConfig {
	return &EmailConfig{
		Addr: "smtp.gmail.com:587",
		From: from,
		Auth: smtp.PlainAuth("", from, appPassword, "smtp.gmail.com"),
	}
}

var sendMail = smtp.SendMail

func newSmtpSender(conf *EmailConfig) func(ctx context.Context, to, subj string, msg []byte) bool {
	limiter := rate.NewLimiter(rate.Every(time.Second*5), 1)
	return func(ctx context.Context, to, subj string, msg []byte) bool {
		if err := limiter.Wait(ctx); err != nil {
			return false
		}

		buf := &bytes.Buffer{}
		fmt.Fprintf(buf, "To: %s\r\n", to)
		fmt.Fprintf(buf, "Subject: %s\r\n\r\n", subj)
		buf.Write(msg)
		buf.WriteString("\r\n")

		err := sendMail(conf.Addr, conf.Auth, conf.From, []string{to}, buf.Bytes())
		if err != nil {
			slog.Error("error while sending email", "to", to, "error", err)
			return false
		}
		return true
	}
}

// devEmailSender just "sends" emails by logging them to stdout.
func devEmailSender(ctx context.Context, to, subj string, msg []byte) bool {
	fmt.Fprintf(os.Stdout, "--- START EMAIL TO %s WITH SUBJECT %q ---\n%s\n--- END EMAIL ---\n", to, subj, msg)
	return true
}
