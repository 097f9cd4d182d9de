package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// CallerHeader carries the hex identity a request acts as.
const CallerHeader = "X-Caller"

type callerKey struct{}

// Identity parses CallerHeader into the request context. A malformed header
// is rejected with 400; a missing one leaves the request anonymous.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(CallerHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			caller, err := domain.ParsePubkey(raw)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "malformed "+CallerHeader+" header")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller domain.Pubkey) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the identity attached by Identity.
func CallerFrom(ctx context.Context) (domain.Pubkey, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Pubkey)
	return caller, ok
}
