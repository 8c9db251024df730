package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/httpx"
)

// Resolver looks a principal up in the store of its kind. It returns nil, nil
// when no such account exists.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, kind Kind, id string) (*Principal, error)
}

var errUserNotFound = domain.Errorf(domain.ErrUnauthorized, "user not found")

type Gate struct {
	tokens   *Tokens
	resolver Resolver
	logger   *slog.Logger
}

func NewGate(tokens *Tokens, resolver Resolver, logger *slog.Logger) *Gate {
	return &Gate{tokens: tokens, resolver: resolver, logger: logger}
}

// Require rejects requests that do not carry a valid token for a principal of kind.
func (g *Gate) Require(kind Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.authenticate(r, kind)
			if err != nil {
				httpx.WriteDomainError(w, g.logger, err, "request not authenticated", "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *p)))
		})
	}
}

func (g *Gate) authenticate(r *http.Request, kind Kind) (*Principal, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrNoToken
	}

	claims, err := g.tokens.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if claims.Role != kind {
		return nil, domain.Errorf(domain.ErrUnauthorized, "not authorized as %s", kind)
	}

	p, err := g.resolver.ResolvePrincipal(r.Context(), kind, claims.Subject)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errUserNotFound
	}
	return p, nil
}
