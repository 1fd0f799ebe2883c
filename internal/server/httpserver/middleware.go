package httpserver

import (
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func routeName(r *http.Request) string {
	if cr := mux.CurrentRoute(r); cr != nil {
		if tpl, err := cr.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Logging logs request metadata and records request metrics. Bodies are never logged.
func Logging(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			route := routeName(r)
			dur := time.Since(start)
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			metrics.HTTPDuration.WithLabelValues(route).Observe(dur.Seconds())

			log.Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", rec.code()),
				zap.Int("bytes", rec.bytes),
				zap.Duration("dur", dur),
				zap.String("peer", r.RemoteAddr),
			)
		})
	}
}

// Recover turns a panic into a 500 and logs the stack. The stack never reaches the client.
func Recover(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.Error("panic",
						zap.Any("reason", p),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ClientLimiter applies a token bucket per client address. The table of
// buckets is bounded; the least recently seen client is forgotten first.
type ClientLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewClientLimiter allows rps requests per second with the given burst for up to
// maxClients distinct addresses.
func NewClientLimiter(rps float64, burst, maxClients int) (*ClientLimiter, error) {
	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &ClientLimiter{clients: clients, limit: rate.Limit(rps), burst: burst}, nil
}

// Allow reports whether a request from client may proceed now.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	lim, ok := l.clients.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(client, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware rejects requests over the limit with 429.
func (l *ClientLimiter) Middleware(s *Server) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientAddr(r)) {
				w.Header().Set("Retry-After", "1")
				s.fail(w, r, errs.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
