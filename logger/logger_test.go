package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeValue(t *testing.T) {
	jwtLike := strings.Repeat("a", 20) + "." + strings.Repeat("b", 20) + ".sig"

	assert.Equal(t, "[REDACTED]", sanitizeValue("password", "hunter22"))
	assert.Equal(t, "[REDACTED]", sanitizeValue("stripe_secret", "sk_live"))
	assert.Equal(t, "[REDACTED]", sanitizeValue("email", "a@example.com"))
	assert.Equal(t, "[REDACTED]", sanitizeValue("cookie", jwtLike))
	assert.Equal(t, "moses", sanitizeValue("persona", "moses"))
	assert.Equal(t, 3, sanitizeValue("credits", 3))

	hashed, ok := sanitizeValue("user_id", "u-123").(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(hashed, "hash:"))
	assert.Len(t, hashed, len("hash:")+12)
	assert.Equal(t, hashed, sanitizeValue("user_id", "u-123"))
}

func TestLoggerRedactsFields(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "true")
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("service", "auth").Info("User signed up", "user_id", "u-1", "email", "a@example.com", "credits", 10)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "auth", fields["service"])
	assert.Equal(t, "[REDACTED]", fields["email"])
	assert.NotEqual(t, "u-1", fields["user_id"])
	assert.EqualValues(t, 10, fields["credits"])
}
