package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogAction(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(zap.New(core))

	id := l.LogAction(context.Background(), ActionSetMode, "product_stats", "ops", map[string]interface{}{"mode": "scheduled"})
	assert.True(t, strings.HasPrefix(id, "audit-"))

	entries := logs.FilterLoggerName("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, id, fields["audit_id"])
	assert.Equal(t, ActionSetMode, fields["action"])
	assert.Equal(t, "product_stats", fields["index"])
	assert.Equal(t, "ops", fields["actor"])
	assert.Equal(t, map[string]interface{}{"mode": "scheduled"}, fields["details"])
}

func TestLogAction_DefaultsActor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(zap.New(core))

	first := l.LogAction(context.Background(), ActionClear, "product_stats", "", nil)
	second := l.LogAction(context.Background(), ActionClear, "product_stats", "", nil)
	assert.NotEqual(t, first, second)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, UnknownActor, entries[0].ContextMap()["actor"])
	assert.NotContains(t, entries[0].ContextMap(), "details")
}

func TestNilLoggerUsesGlobal(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.LogAction(context.Background(), ActionDrain, "product_stats", "ops", nil)
	})
}
