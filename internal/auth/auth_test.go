package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

type fakeResolver struct {
	principals map[Kind]map[string]Principal
	err        error
}

func (f *fakeResolver) ResolvePrincipal(_ context.Context, kind Kind, id string) (*Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.principals[kind][id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func newTestTokens(t *testing.T, now time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens("test-secret", 10*24*time.Hour)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	tokens.now = func() time.Time { return now }
	return tokens
}

func TestTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, now)

	t.Run("round trip", func(t *testing.T) {
		raw, err := tokens.Issue(KindSeller, "s1")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if claims.Role != KindSeller || claims.Subject != "s1" {
			t.Errorf("unexpected claims %+v", claims)
		}
	})

	t.Run("expired", func(t *testing.T) {
		raw, _ := tokens.Issue(KindBuyer, "b1")
		later := newTestTokens(t, now.Add(11*24*time.Hour))
		if _, err := later.Parse(raw); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("expected expired, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewTokens("other-secret", time.Hour)
		other.now = func() time.Time { return now }
		raw, _ := other.Issue(KindBuyer, "b1")
		if _, err := tokens.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected invalid, got %v", err)
		}
	})

	t.Run("purpose token", func(t *testing.T) {
		raw, _ := tokens.IssuePurpose(KindSeller, "s1", PurposeEmailVerification, 24*time.Hour)
		if _, err := tokens.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected purpose token to be rejected as session, got %v", err)
		}
		sub, err := tokens.ParsePurpose(raw, PurposeEmailVerification)
		if err != nil || sub != "s1" {
			t.Errorf("expected s1, got %q (%v)", sub, err)
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		if _, err := NewTokens("", time.Hour); err == nil {
			t.Error("expected error")
		}
	})
}

func TestGate_Require(t *testing.T) {
	now := time.Now()
	tokens := newTestTokens(t, now)
	resolver := &fakeResolver{principals: map[Kind]map[string]Principal{
		KindBuyer:  {"b1": {Kind: KindBuyer, ID: "b1", Name: "Ann"}},
		KindSeller: {"s1": {Kind: KindSeller, ID: "s1", Name: "Deli"}},
	}}
	gate := NewGate(tokens, resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var seen Principal
	protected := gate.Require(KindSeller)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	sellerToken, _ := tokens.Issue(KindSeller, "s1")
	buyerToken, _ := tokens.Issue(KindBuyer, "b1")
	ghostToken, _ := tokens.Issue(KindSeller, "s404")
	expired := newTestTokens(t, now.Add(-11*24*time.Hour))
	expiredToken, _ := expired.Issue(KindSeller, "s1")

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"valid seller", "Bearer " + sellerToken, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "not authorized, no token"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "not authorized, no token"},
		{"garbage", "Bearer abc.def", http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + expiredToken, http.StatusUnauthorized, "token expired"},
		{"buyer on seller route", "Bearer " + buyerToken, http.StatusUnauthorized, "not authorized as seller"},
		{"unknown seller", "Bearer " + ghostToken, http.StatusUnauthorized, "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Principal{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantError == "" {
				if seen.ID != "s1" || seen.Kind != KindSeller {
					t.Errorf("unexpected principal %+v", seen)
				}
				return
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("expected %q, got %q", tt.wantError, resp["error"])
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{Kind: KindBuyer, ID: "b1"})

	if err := Authorize(ctx, KindBuyer, "b1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Authorize(ctx, KindBuyer, "b2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := Authorize(ctx, KindSeller, "b1"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := Authorize(context.Background(), KindBuyer, "b1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}
