package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"lesson-library/internal/config"
	"lesson-library/internal/logx"
)

// sendMailFunc matches smtp.SendMail; tests swap it out.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends admin notices over SMTP. When SMTP is disabled the
// message is only logged.
type EmailService struct {
	cfg      config.SMTP
	adminTo  string
	baseURL  string
	sendMail sendMailFunc
}

// NewEmailService creates a new email service. adminTo may be empty, in
// which case notices are logged only.
func NewEmailService(cfg config.SMTP, adminTo, baseURL string) *EmailService {
	return &EmailService{
		cfg:      cfg,
		adminTo:  adminTo,
		baseURL:  strings.TrimRight(baseURL, "/"),
		sendMail: smtp.SendMail,
	}
}

// SendEmail sends an HTML email with the given subject and body
func (s *EmailService) SendEmail(to, subject, body string) error {
	if !s.cfg.Enabled || to == "" {
		logx.Info("email (disabled)", logx.Fields{"to": to, "subject": subject})
		return nil
	}

	if s.cfg.Host == "" || s.cfg.User == "" || s.cfg.Password == "" {
		return errors.New("SMTP not configured")
	}
	if strings.ContainsAny(to+subject, "\r\n") {
		return errors.New("invalid header value")
	}

	message := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.cfg.From, to, subject, body,
	))

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	addr := s.cfg.Host + ":" + s.cfg.Port
	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, message); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	logx.Info("email sent", logx.Fields{"to": to, "subject": subject})
	return nil
}

var pendingRequestEmail = template.Must(template.New("pending").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<h2>New teacher registration</h2>
	<p><strong>{{.Username}}</strong> asked to become the teacher account.</p>
	<p><a href="{{.URL}}">Review pending requests</a></p>
</body>
</html>`))

// NotifyPendingRequest tells the admin a registration is waiting.
func (s *EmailService) NotifyPendingRequest(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var body strings.Builder
	err := pendingRequestEmail.Execute(&body, struct{ Username, URL string }{username, s.baseURL + "/admin"})
	if err != nil {
		return err
	}
	return s.SendEmail(s.adminTo, "Lesson Library: registration pending approval", body.String())
}
