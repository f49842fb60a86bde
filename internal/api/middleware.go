package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/readyhouston/hdr/internal/lru"
	"github.com/readyhouston/hdr/internal/observability"
)

// corsMethods narrows Access-Control-Allow-Methods for the proxy endpoints.
var corsMethods = map[string]string{
	"/api/chat":   "POST, OPTIONS",
	"/api/config": "GET, OPTIONS",
}

const defaultCORSMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// CORS allows any origin. Preflight requests are answered with 200 and no
// body before routing.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods, ok := corsMethods[r.URL.Path]
		if !ok {
			methods = defaultCORSMethods
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const (
	maxTrackedClients = 4096
	clientIdleTTL     = 10 * time.Minute
)

// RateLimit applies a token bucket per client IP. Rejected requests get 429
// with a Retry-After header. A non-positive limit disables it.
func RateLimit(limit rate.Limit, burst int, clock clockwork.Clock, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	limiters := lru.New[string, *rate.Limiter](maxTrackedClients, clientIdleTTL, clock)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := limiters.GetOrCreate(clientIP(r), func() *rate.Limiter {
				return rate.NewLimiter(limit, burst)
			})

			now := clock.Now()
			res := lim.ReserveN(now, 1)
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				metrics.Limited()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too Many Requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
