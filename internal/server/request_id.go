package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"galleria/internal/observability/logging"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags every request with an identifier, honoring one
// supplied by a trusted proxy and minting a fresh UUID otherwise.
func requestIDMiddleware(next http.Handler) http.Handler {
	return requestIDMiddlewareWithGenerator(uuid.NewString, next)
}

func requestIDMiddlewareWithGenerator(generate func() string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = generate()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
