package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a***@example.com"},
		{"a@x.com", "a***@x.com"},
		{"not-an-email", "***"},
		{"@x.com", "***"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.in))
		})
	}
}

func TestEmailField_MasksByDefault(t *testing.T) {
	setRevealEmails(false)
	f := Email("guest@cypress.test")
	assert.Equal(t, "g***@cypress.test", f.String)

	setRevealEmails(true)
	defer setRevealEmails(false)
	f = Email("guest@cypress.test")
	assert.Equal(t, "guest@cypress.test", f.String)
}

func TestChallengeID_Truncates(t *testing.T) {
	f := ChallengeID("0123456789abcdef0123")
	assert.Equal(t, "0123456789ab", f.String)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewZap(zap.New(core))

	ctx := WithContext(context.Background(), l.With(Component("test")))
	FromContext(ctx).Info("hello", String("k", "v"))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "hello", entries[0].Message)
		assert.Equal(t, "test", entries[0].ContextMap()["component"])
		assert.Equal(t, "v", entries[0].ContextMap()["k"])
	}

	assert.NotNil(t, FromContext(context.Background()))
}
