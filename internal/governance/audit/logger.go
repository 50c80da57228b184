// Package audit records administrative actions taken on indexes.
//
// Audit records are append-only structured log entries written to the
// "audit" logger. Each record carries a time-ordered id.
//
// Import Path: statsidx.io/statsidx/internal/governance/audit
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/pkg/logger"
)

// Administrative actions.
const (
	ActionSetMode        = "index.set_mode"
	ActionFullReindex    = "index.reindex_full"
	ActionPartialReindex = "index.reindex_partial"
	ActionDrain          = "index.drain"
	ActionClear          = "index.clear"
)

// UnknownActor is recorded when no authenticated subject is available.
const UnknownActor = "anonymous"

// Logger writes audit records.
type Logger struct {
	base *zap.Logger
}

// NewLogger creates a new audit Logger. A nil base logs through the global
// logger as configured at call time.
func NewLogger(base *zap.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) log() *zap.Logger {
	if l == nil || l.base == nil {
		return logger.L().Named("audit")
	}
	return l.base.Named("audit")
}

// LogAction records an action on index and returns the audit id.
func (l *Logger) LogAction(_ context.Context, action, index, actor string, details map[string]interface{}) string {
	if actor == "" {
		actor = UnknownActor
	}
	id := generateAuditID()
	fields := []zap.Field{
		zap.String("audit_id", id),
		zap.String("action", action),
		zap.String("index", index),
		zap.String("actor", actor),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	l.log().Info("Audit", fields...)
	return id
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
