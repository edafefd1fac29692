package middlewares

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

// Middleware decora un http.Handler. chi encadena con r.Use.
type Middleware func(http.Handler) http.Handler

// Un X-Request-ID entrante viaja a los logs y a los JSON de error, así que
// no se acepta cualquier cosa: largo acotado y sólo caracteres de token.
const requestIDMaxLen = 64

func sanitizeRequestID(rid string) string {
	rid = strings.TrimSpace(rid)
	if len(rid) > requestIDMaxLen {
		rid = rid[:requestIDMaxLen]
	}
	for _, c := range rid {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c == '-', c == '_', c == '.':
		default:
			return ""
		}
	}
	return rid
}

// WithRequestID propaga el X-Request-ID del caller (si pasa el saneo) o
// genera uno nuevo, lo devuelve en la respuesta y lo deja en el contexto.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := sanitizeRequestID(r.Header.Get("X-Request-ID"))
			if rid == "" {
				var b [16]byte
				_, _ = rand.Read(b[:])
				rid = hex.EncodeToString(b[:])
			}
			w.Header().Set("X-Request-ID", rid)
			next.ServeHTTP(w, r.WithContext(setRequestID(r.Context(), rid)))
		})
	}
}
