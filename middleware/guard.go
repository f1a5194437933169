// Package middleware exposes an HTTP middleware adapter for access-token
// enforcement built on top of identity.Engine verification.
//
// The guard reads the Authorization header, calls Engine.VerifyAccess,
// and injects the verified account ID into the request context. It does
// NOT implement authentication logic itself and never touches the
// credential store; access-token verification is stateless.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/skillforge/identity"
)

type accountIDContextKey struct{}

// AccountIDFromContext returns the account ID injected by [RequireAuth].
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDContextKey{}).(string)
	return id, ok
}

// RequireAuth returns middleware that rejects requests without a valid
// access token. All rejections are an identical 401; the guard does not
// distinguish missing, malformed and expired tokens to the client.
func RequireAuth(engine *identity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			accountID, err := engine.VerifyAccess(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDContextKey{}, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
