package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/gatekeeper/internal/platform/httpx"
)

// Header names populated by the authenticating proxy in front of the service.
const (
	HeaderUserID = "X-Gatekeeper-User"
	HeaderName   = "X-Gatekeeper-Name"
	HeaderEmail  = "X-Gatekeeper-Email"
	HeaderGroups = "X-Gatekeeper-Groups"
)

// Middleware resolves the calling principal from trusted proxy headers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Authenticate rejects requests without a user header and stores the principal
// in the request context otherwise.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		role, memberships := m.Resolver.Resolve(splitGroups(r.Header.Get(HeaderGroups)))
		p := Principal{
			ID:          userID,
			Name:        strings.TrimSpace(r.Header.Get(HeaderName)),
			Email:       strings.TrimSpace(r.Header.Get(HeaderEmail)),
			Role:        role,
			Memberships: memberships,
		}
		if m.Logger != nil {
			m.Logger.Debug("principal resolved", slog.String("user_id", p.ID), slog.String("role", string(p.Role)))
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireAny allows only principals holding one of the roles.
func (m Middleware) RequireAny(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func splitGroups(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
}
