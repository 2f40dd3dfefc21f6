package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/logging"
	"github.com/dmitrijs2005/cellscope/internal/server/auth"
	"github.com/dmitrijs2005/cellscope/internal/server/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// securityHeaders is stamped onto every response.
var securityHeaders = [][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"},
	{"Cache-Control", "no-store, no-cache, must-revalidate, private"},
	{"Pragma", "no-cache"},
}

func stampSecurityHeaders(h http.Header) {
	for _, kv := range securityHeaders {
		h.Set(kv[0], kv[1])
	}
}

// headerStamper sets the security headers right before the status line is
// written, so they override anything the handler set.
type headerStamper struct {
	http.ResponseWriter
	wrote bool
}

func (s *headerStamper) WriteHeader(code int) {
	if !s.wrote {
		s.wrote = true
		stampSecurityHeaders(s.ResponseWriter.Header())
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *headerStamper) Write(b []byte) (int, error) {
	if !s.wrote {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

func (s *headerStamper) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// SecurityHeaders adds the fixed hardening headers to every response,
// whatever its route or status. It never touches status or body.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &headerStamper{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if !sw.wrote {
			stampSecurityHeaders(w.Header())
		}
	})
}

// RateLimiter is a per-key token bucket. Keys default to the client IP.
type RateLimiter struct {
	name     string
	interval time.Duration
	limit    rate.Limit
	burst    int
	keyFunc  httprate.KeyFunc

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	stopClean chan struct{}
	stopOnce  sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows one request per interval after an initial burst.
// name labels the rate-limited metric.
func NewRateLimiter(name string, interval time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		name:      name,
		interval:  interval,
		limit:     rate.Every(interval),
		burst:     burst,
		keyFunc:   httprate.KeyByIP,
		limiters:  make(map[string]*limiterEntry),
		stopClean: make(chan struct{}),
	}
}

// LoginRateLimiter allows about five logins a minute per client.
func LoginRateLimiter() *RateLimiter {
	return NewRateLimiter("login", 12*time.Second, 2)
}

// RegisterRateLimiter allows about three registrations a minute per client.
func RegisterRateLimiter() *RateLimiter {
	return NewRateLimiter("register", 20*time.Second, 1)
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Handler rejects over-limit requests with 429 before next runs.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := rl.keyFunc(r)
		if err != nil {
			key = r.RemoteAddr
		}

		if !rl.allow(key) {
			metrics.RateLimitedTotal.WithLabelValues(rl.name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.interval.Seconds())))
			writeError(w, NewAPIError(KindRateLimited))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// StartCleanup drops buckets idle for longer than maxIdle, every interval,
// until Stop.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.cleanup(time.Now().Add(-maxIdle))
			case <-rl.stopClean:
				return
			}
		}
	}()
}

func (rl *RateLimiter) cleanup(threshold time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopClean) })
}

// TokenVerifier opens a token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Authenticator admits requests carrying a valid, unexpired access token
// and puts the caller's auth.Identity into the request context.
type Authenticator struct {
	tokens TokenVerifier
	logger logging.Logger
	now    func() time.Time
}

func NewAuthenticator(tokens TokenVerifier, logger logging.Logger) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		logger: logger.With("module", "auth_middleware"),
		now:    time.Now,
	}
}

func bearerToken(header string) (string, ErrorKind, bool) {
	if header == "" {
		return "", KindMissingToken, false
	}
	token, ok := strings.CutPrefix(header, common.BearerPrefix)
	if !ok {
		return "", KindInvalidTokenFormat, false
	}
	if token == "" {
		return "", KindMissingToken, false
	}
	return token, 0, true
}

// authenticate runs the admission checks in order: header, decryption,
// token type, expiry, subject.
func (a *Authenticator) authenticate(r *http.Request) (auth.Identity, ErrorKind, bool) {
	token, kind, ok := bearerToken(r.Header.Get(common.AuthorizationHeaderName))
	if !ok {
		return auth.Identity{}, kind, false
	}

	claims, err := a.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, KindInvalidToken, false
	}

	if claims.TokenType != auth.TokenTypeAccess {
		return auth.Identity{}, KindInvalidTokenType, false
	}

	exp, err := claims.ExpiresAt()
	if err != nil {
		return auth.Identity{}, KindInvalidToken, false
	}
	if !exp.After(a.now()) {
		return auth.Identity{}, KindTokenExpired, false
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return auth.Identity{}, KindInvalidToken, false
	}

	return auth.Identity{UserID: userID, Username: claims.Username}, 0, true
}

func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, kind, ok := a.authenticate(r)
		if !ok {
			apiErr := NewAPIError(kind)
			code := apiErr.Describe().Code
			metrics.AuthFailuresTotal.WithLabelValues(code).Inc()
			a.logger.Debug(r.Context(), "request rejected", "code", code, "path", r.URL.Path)
			writeError(w, apiErr)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// RequestLogger logs one line per request and records the HTTP metrics.
// It expects chi's RequestID to run first.
func RequestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logger.With("module", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logging.ContextWithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))
			r = r.WithContext(ctx)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			elapsed := time.Since(start)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			logger.Info(ctx, "request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", elapsed,
				"bytes", ww.BytesWritten(),
			)
		})
	}
}

// identity returns the authenticated caller. Routes without the
// Authenticator never reach a handler that calls it.
func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return auth.Identity{}, errors.New("identity missing from context")
	}
	return id, nil
}
