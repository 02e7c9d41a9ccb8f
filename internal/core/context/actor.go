// Package context provides request-scoped values carried in context.Context.
package context

import (
	"context"
)

// Actor identifies who triggered an operation. It is recorded in the audit
// trail; the service performs no authentication of its own.
type Actor struct {
	ID    string
	Email string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the actor ID from context, or "system" when none is set.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.ID != "" {
		return a.ID
	}
	return "system"
}
