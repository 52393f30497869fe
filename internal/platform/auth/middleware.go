package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/httpx"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/requestctx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals an expired ID token.
	ErrTokenExpired = errors.New("auth: id token expired")
	// ErrTokenInvalid signals an ID token that failed verification.
	ErrTokenInvalid = errors.New("auth: id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns a TokenVerifier into HTTP middleware.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// NewAuthenticator builds an Authenticator reading roles from the "role" claim.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier, roleClaim: defaultRoleClaim}
}

// RequireUser rejects requests without a valid bearer ID token. When roles are given the
// identity must carry one of them. Identities without a role claim are plain users.
func (a *Authenticator) RequireUser(roles ...string) func(http.Handler) http.Handler {
	allowed := lo.Compact(lo.Map(roles, func(role string, _ int) string { return normaliseRole(role) }))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				writeAuthError(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "authentication unavailable")
				return
			}

			token, err := a.verifier.VerifyIDToken(ctx, raw)
			if err != nil {
				code, message := verificationFailure(err)
				requestctx.Logger(ctx).Info("auth.token_rejected", zap.String("reason", code))
				writeAuthError(ctx, w, http.StatusUnauthorized, code, message)
				return
			}

			identity := &Identity{
				UID:   token.UID,
				Email: stringClaim(token.Claims, "email"),
				Roles: rolesFromClaim(token.Claims[a.roleClaim]),
				token: token,
			}
			if len(identity.Roles) == 0 {
				identity.Roles = []string{RoleUser}
			}
			if len(allowed) > 0 && len(lo.Intersect(allowed, identity.Roles)) == 0 {
				writeAuthError(ctx, w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rolesFromClaim accepts a string, a list of strings or a {role: true} map.
func rolesFromClaim(raw any) []string {
	var roles []string
	switch v := raw.(type) {
	case string:
		roles = []string{v}
	case []string:
		roles = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				roles = append(roles, role)
			}
		}
	}
	return lo.Uniq(lo.Compact(lo.Map(roles, func(role string, _ int) string { return normaliseRole(role) })))
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func verificationFailure(err error) (string, string) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return "token_expired", "id token expired"
	default:
		return "invalid_token", "id token verification failed"
	}
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
