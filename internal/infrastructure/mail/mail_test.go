package mail

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

func TestRenderCodeEmail(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	body, err := RenderCodeEmail("042137", now.Add(10*time.Minute), now)
	require.NoError(t, err)

	assert.Contains(t, body.Text, "042137")
	assert.Contains(t, body.Text, "10 minutes")
	assert.Contains(t, body.HTML, "<h2>042137</h2>")
	assert.Contains(t, body.HTML, "<strong>Cypress Resort</strong>")
}

func TestSMTPMailer_Compose(t *testing.T) {
	m, err := NewSMTPMailer(config.MailConfig{
		Host:    "smtp.cypress.test",
		Port:    587,
		From:    "Cypress Resort <no-reply@cypress.test>",
		Subject: "Your code",
		Timeout: time.Second,
	}, logger.NewNop())
	require.NoError(t, err)

	msg, err := m.compose("guest@cypress.test", "123456", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Your code")
	assert.Contains(t, raw, "guest@cypress.test")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "text/plain")

	_, err = m.compose("not an address", "123456", time.Now())
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewLogMailer(logger.NewZap(zap.New(core)))

	require.NoError(t, m.Send(context.Background(), "guest@cypress.test", "123456", time.Now()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "123456", entries[0].ContextMap()["code"])
	assert.Equal(t, "g***@cypress.test", entries[0].ContextMap()["email"])
}
