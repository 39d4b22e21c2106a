package auth

import (
	"net/http"
	"strings"

	"github.com/keystone-auth/keystone/internal/platform/httpx"
	"github.com/keystone-auth/keystone/internal/shared"
	"github.com/keystone-auth/keystone/internal/users"
)

const bearerScheme = "bearer"

// RequireUser is the access gate: it resolves the Authorization header to an
// active user and stores it in the request context, or rejects with 401. The
// identity lives only for the current request.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		user, err := s.Resolve(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(users.ContextWithUser(r.Context(), user)))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
// The scheme is matched case-insensitively; any other scheme is rejected.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
