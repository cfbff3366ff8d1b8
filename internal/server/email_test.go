package server

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"lesson-library/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestEmail(enabled bool) (*EmailService, *[]sentMail) {
	var sent []sentMail
	svc := NewEmailService(config.SMTP{
		Enabled:  enabled,
		Host:     "smtp.school.test",
		Port:     "587",
		User:     "library",
		Password: "secret",
		From:     "library@school.test",
	}, "head@school.test", "https://library.school.test/")
	svc.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return svc, &sent
}

func TestNotifyPendingRequest(t *testing.T) {
	svc, sent := newTestEmail(true)

	require.NoError(t, svc.NotifyPendingRequest(context.Background(), "ms.frizzle"))
	require.Len(t, *sent, 1)

	m := (*sent)[0]
	assert.Equal(t, "smtp.school.test:587", m.addr)
	assert.Equal(t, "library@school.test", m.from)
	assert.Equal(t, []string{"head@school.test"}, m.to)
	assert.Contains(t, m.msg, "ms.frizzle")
	assert.Contains(t, m.msg, "https://library.school.test/admin")
	assert.Contains(t, m.msg, "Subject: Lesson Library: registration pending approval")
}

func TestNotifyPendingRequest_EscapesUsername(t *testing.T) {
	svc, sent := newTestEmail(true)

	require.NoError(t, svc.NotifyPendingRequest(context.Background(), "<b>eve</b>"))
	require.Len(t, *sent, 1)
	assert.NotContains(t, (*sent)[0].msg, "<b>eve</b>")
	assert.Contains(t, (*sent)[0].msg, "&lt;b&gt;eve&lt;/b&gt;")
}

func TestSendEmail_DisabledOnlyLogs(t *testing.T) {
	svc, sent := newTestEmail(false)

	require.NoError(t, svc.NotifyPendingRequest(context.Background(), "alice"))
	assert.Empty(t, *sent)
}

func TestSendEmail_Errors(t *testing.T) {
	svc, sent := newTestEmail(true)

	err := svc.SendEmail("head@school.test", "hi\r\nBcc: everyone@school.test", "body")
	assert.Error(t, err)
	assert.Empty(t, *sent)

	svc.cfg.Password = ""
	assert.Error(t, svc.SendEmail("head@school.test", "hi", "body"))

	svc.cfg.Password = "secret"
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err = svc.SendEmail("head@school.test", "hi", "body")
	assert.ErrorContains(t, err, "connection refused")
}

func TestNotifyPendingRequest_CanceledContext(t *testing.T) {
	svc, sent := newTestEmail(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.NotifyPendingRequest(ctx, "alice"), context.Canceled)
	assert.Empty(t, *sent)
}
