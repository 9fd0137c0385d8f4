package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errMissingIdentity = errors.New("missing caller identity")

// IdentityProvider resolves the authenticated caller of a request.
type IdentityProvider interface {
	Identify(r *http.Request) (string, error)
}

// HeaderIdentity trusts a header set by the authenticating proxy.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) Identify(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(h.Header))
	if id == "" {
		return "", errMissingIdentity
	}
	return id, nil
}

type identityContextKey string

const callerKey identityContextKey = "caller"

func withCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey, userID)
}

func callerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey).(string); ok {
		return v
	}
	return ""
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identity.Identify(r)
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), userID)))
	})
}
