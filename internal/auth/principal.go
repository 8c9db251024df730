// Package auth verifies bearer tokens and attaches the calling principal to
// the request context.
package auth

import (
	"context"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

type Kind string

const (
	KindBuyer  Kind = "buyer"
	KindSeller Kind = "seller"
)

// Principal is either a buyer or a seller, never both.
type Principal struct {
	Kind  Kind   `json:"kind"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Authorize fails with ErrForbidden unless the request principal is of kind
// and carries id.
func Authorize(ctx context.Context, kind Kind, id string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return domain.Errorf(domain.ErrUnauthorized, "not authorized, no token")
	}
	if p.Kind != kind || p.ID != id {
		return domain.Errorf(domain.ErrForbidden, "not allowed to access this resource")
	}
	return nil
}
