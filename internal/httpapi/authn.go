package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"pelayanan.org/internal/auth"
	"pelayanan.org/internal/ledger"
	"pelayanan.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/auth/register",
	"/auth/login",
	"/auth/staff/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth is the per-request guard: decode, blocklist check, device check.
// It runs on every protected request; a ledger failure rejects the request
// rather than optimistically authorizing it.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.ObserveAuthRejection("missing_token")
			unauthorized(w, err.Error())
			return
		}

		claims, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			reason, message := rejectionFor(err)
			obs.ObserveAuthRejection(reason)
			unauthorized(w, message)
			return
		}

		if !tokenClassAllowed(r.URL.Path, claims.TokenType) {
			obs.ObserveAuthRejection("wrong_token_class")
			unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

// tokenClassAllowed enforces which token class each route accepts: refresh
// rotation takes only refresh tokens, logout takes access or refresh, and
// everything else takes access tokens. Offline tokens are never accepted
// by the online surface.
func tokenClassAllowed(path, tokenType string) bool {
	switch path {
	case "/auth/refresh":
		return tokenType == string(auth.TokenRefresh)
	case "/auth/logout":
		return tokenType == string(auth.TokenAccess) || tokenType == string(auth.TokenRefresh)
	default:
		return tokenType == string(auth.TokenAccess)
	}
}

func rejectionFor(err error) (reason, message string) {
	switch {
	case errors.Is(err, auth.ErrTokenRevoked):
		return "token_revoked", "token_revoked"
	case errors.Is(err, auth.ErrDeviceRevoked):
		return "device_revoked", "device_revoked"
	case errors.Is(err, ledger.ErrUnavailable):
		// Fail closed: without the ledger the token cannot be proven unblocked.
		return "ledger_unavailable", "authorization temporarily unavailable"
	default:
		return "invalid_token", "invalid token"
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "Unauthorized", message)
}

// RequireRole gates a handler on the token's role claim.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			obs.ObserveAuthRejection("insufficient_role")
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusForbidden, "Forbidden", "insufficient role")
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
