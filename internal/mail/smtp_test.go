package mail

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

func TestNewSMTPSenderValidation(t *testing.T) {
	_, err := NewSMTPSender(Config{})
	assert.Error(t, err)

	_, err = NewSMTPSender(Config{Host: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(Config{Host: "smtp.example.com", Username: "bot@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", s.cfg.From)
	assert.Equal(t, 587, s.cfg.Port)
}

func TestBuildMessage(t *testing.T) {
	attachment := filepath.Join(t.TempDir(), "Report_L1.xlsx")
	require.NoError(t, os.WriteFile(attachment, []byte("xlsx"), 0o644))

	s, err := NewSMTPSender(Config{Host: "smtp.example.com", From: "bot@example.com"})
	require.NoError(t, err)

	msg, err := s.build(Message{
		To:         "l1@example.com",
		Cc:         []string{"a@example.com", "b@example.com"},
		Subject:    "Daily Report - L1",
		HTML:       "<p>hi</p>",
		Attachment: attachment,
	})
	require.NoError(t, err)

	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"l1@example.com", "a@example.com", "b@example.com"}, rcpts)
	assert.Equal(t, []string{"Daily Report - L1"}, msg.GetGenHeader(gomail.HeaderSubject))
	assert.Len(t, msg.GetAttachments(), 1)
}

func TestBuildMessageRejectsBadAddress(t *testing.T) {
	s, err := NewSMTPSender(Config{Host: "smtp.example.com", From: "bot@example.com"})
	require.NoError(t, err)

	_, err = s.build(Message{To: "not an address"})
	assert.Error(t, err)
}
