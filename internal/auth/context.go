package auth

import (
	"context"

	"aegis.org/internal/policy"
)

type subjectContextKey struct{}

// ContextWithSubject attaches the authorized subject to the context so
// downstream handlers can read the verified identity.
func ContextWithSubject(ctx context.Context, sub policy.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, &sub)
}

// SubjectFromContext extracts the authorized subject from the context.
func SubjectFromContext(ctx context.Context) (policy.Subject, bool) {
	if ctx == nil {
		return policy.Subject{}, false
	}
	v, ok := ctx.Value(subjectContextKey{}).(*policy.Subject)
	if !ok || v == nil {
		return policy.Subject{}, false
	}
	return *v, true
}
