package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Sender delivers one-time passcodes. Mailer is the SMTP implementation.
type Sender interface {
	SendOTP(ctx context.Context, to, code string) error
	SendPasswordReset(ctx context.Context, to, code string) error
}

type Mailer struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (m *Mailer) Enabled() bool {
	return m.Host != ""
}

func (m *Mailer) SendOTP(ctx context.Context, to, code string) error {
	subject := "Your verification code"
	textBody := fmt.Sprintf(`Welcome!

Your verification code is: %s

The code expires in 10 minutes. If you did not request it, ignore this email.
`, code)
	htmlBody := fmt.Sprintf(`<html><body>
<p>Welcome!</p>
<p>Your verification code is: <strong style="font-size:20px;letter-spacing:4px;">%s</strong></p>
<p style="color:#666;font-size:12px;">The code expires in 10 minutes. If you did not request it, ignore this email.</p>
</body></html>`, code)

	return m.sendMultipart(ctx, to, subject, textBody, htmlBody)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, code string) error {
	subject := "Password reset code"
	textBody := fmt.Sprintf(`A password reset was requested for your account.

Your reset code is: %s

The code expires in 10 minutes. If you did not request a reset, your password is unchanged.
`, code)
	htmlBody := fmt.Sprintf(`<html><body>
<p>A password reset was requested for your account.</p>
<p>Your reset code is: <strong style="font-size:20px;letter-spacing:4px;">%s</strong></p>
<p style="color:#666;font-size:12px;">The code expires in 10 minutes. If you did not request a reset, your password is unchanged.</p>
</body></html>`, code)

	return m.sendMultipart(ctx, to, subject, textBody, htmlBody)
}

func (m *Mailer) sendMultipart(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if !m.Enabled() {
		slog.Debug("smtp disabled, dropping mail", "to", to, "subject", subject)
		return nil
	}

	boundary := "----=_Part_medialink_boundary"

	headers := []string{
		fmt.Sprintf("From: %s", m.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		fmt.Sprintf(`Content-Type: multipart/alternative; boundary="%s"`, boundary),
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(textBody + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")

	addr := net.JoinHostPort(m.Host, fmt.Sprint(m.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			slog.Warn("smtp starttls failed, continuing without", "error", err)
		}
	}

	if m.User != "" {
		if err := client.Auth(smtp.PlainAuth("", m.User, m.Pass, m.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}
