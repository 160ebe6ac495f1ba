package api

import (
	"net"
	"net/http"
	"time"

	"vehiql/internal/auth"
	"vehiql/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe records latency and status class per route.
func observe(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTP(route, rec.status, time.Since(start))
	})
}

func (s *HTTPServer) public(route string, h http.HandlerFunc) http.Handler {
	return observe(route, s.limit(ipKey, h))
}

// Protected routes are throttled per client IP before the token is checked
// and per user after.
func (s *HTTPServer) user(route string, h http.HandlerFunc) http.Handler {
	return observe(route, s.limit(ipKey, s.authenticate(s.limit(userKey, h))))
}

func (s *HTTPServer) admin(route string, h http.HandlerFunc) http.Handler {
	return observe(route, s.limit(ipKey, s.authenticate(s.limit(userKey, requireAdmin(h)))))
}

// authenticate verifies the bearer token and loads (or creates) the caller.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		id, err := s.Verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		u, err := s.Access.Resolve(r.Context(), id.Subject, id.Email, id.Name)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFrom(r.Context())
		if !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limit applies the token bucket selected by key.
func (s *HTTPServer) limit(key func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Limiter.Allow(key(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userKey falls back to the client IP when no user is in the context.
func userKey(r *http.Request) string {
	if u, ok := auth.UserFrom(r.Context()); ok {
		return "user:" + u.ID
	}
	return ipKey(r)
}

func ipKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
