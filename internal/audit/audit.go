package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"aegis.org/internal/obs"
)

// EventKind names an auditable action.
type EventKind string

const (
	LoginSucceeded     EventKind = "login.succeeded"
	LoginFailed        EventKind = "login.failed"
	LoginUnknown       EventKind = "login.unknown_identity"
	LoginThrottled     EventKind = "login.throttled"
	TokenRefreshed     EventKind = "token.refreshed"
	TokenRevoked       EventKind = "token.revoked"
	IdentityRegistered EventKind = "identity.registered"
)

// Sink receives audit events. Implementations must treat Record as
// fire-and-forget: a sink failure never fails the calling flow.
type Sink interface {
	Record(ctx context.Context, kind EventKind, identityKey string, at time.Time)
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogSink writes audit events as JSON lines through the shared logger.
type LogSink struct{}

// NewLogSink returns a sink backed by the shared structured logger.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Record writes the event. Marshal failures are swallowed: audit must never
// break authentication.
func (s *LogSink) Record(ctx context.Context, kind EventKind, identityKey string, at time.Time) {
	entry := map[string]any{
		"ts":       at.UTC().Format(time.RFC3339Nano),
		"type":     "audit",
		"event":    string(kind),
		"identity": identityKey,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(context.Context, EventKind, string, time.Time) {}
