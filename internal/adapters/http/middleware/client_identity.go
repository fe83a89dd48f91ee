// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/services"
)

type identityKey struct{}

// ClientIdentity resolve a identidade usada como bucket de cota e a guarda no contexto.
//
// Não é autenticação: os headers de encaminhamento são triviais de forjar.
func ClientIdentity(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ExtractIP(r, trustForwarded)
			ctx := context.WithValue(r.Context(), identityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retorna a identidade gravada por ClientIdentity.
func IdentityFromContext(ctx context.Context) string {
	if identity, ok := ctx.Value(identityKey{}).(string); ok && identity != "" {
		return identity
	}
	return services.NormalizeIdentity("")
}

func ExtractIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
		if xForwardedFor != "" {
			parts := strings.Split(xForwardedFor, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return services.NormalizeIdentity(ip)
			}
		}

		xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
		if xRealIP != "" {
			return services.NormalizeIdentity(xRealIP)
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return services.NormalizeIdentity(r.RemoteAddr)
	}

	return services.NormalizeIdentity(host)
}
