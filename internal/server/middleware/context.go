package middleware

import (
	"context"

	"github.com/gosuda/fiscalflow/internal/domain"
)

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	v, ok := ctx.Value(ContextKeyPrincipal).(*domain.Principal)
	return v, ok && v != nil
}
