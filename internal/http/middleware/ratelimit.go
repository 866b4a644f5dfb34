package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RateLimitMessage é o texto devolvido quando o limite é atingido.
const RateLimitMessage = "Muitas tentativas. Aguarde alguns instantes e tente novamente."

// idleTTL é o tempo sem uso após o qual o balde de uma chave é descartado.
const idleTTL = 10 * time.Minute

// RateLimiter mantém um balde por chave (IP ou email). Baldes ociosos são
// varridos no máximo uma vez por minuto.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter cria o limitador com taxa por segundo e rajada por chave.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(reqPerSec),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// allow consome um token da chave. Sem token, devolve quanto esperar.
func (r *RateLimiter) allow(key string) (bool, time.Duration) {
	now := r.now()

	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.seen = now
	r.sweepLocked(now)
	r.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, idleTTL
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < time.Minute {
		return
	}
	r.lastSweep = now
	for k, b := range r.buckets {
		if now.Sub(b.seen) > idleTTL {
			delete(r.buckets, k)
		}
	}
}

// LimitByKey aplica o limite à chave extraída da requisição. Requisições
// sem chave passam direto.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		if allowed, wait := r.allow(key); !allowed {
			writeRateLimitError(w, wait)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// IPRateLimit usa o IP do cliente como chave.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return "ip:" + realIPFromRequest(r), true
		})
	}
}

// FormRateLimit usa um campo do formulário como chave, normalizado em
// minúsculas. Serve para limitar pedidos repetidos ao mesmo email.
func FormRateLimit(limiter *RateLimiter, field string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			value := strings.ToLower(strings.TrimSpace(r.PostFormValue(field)))
			if value == "" {
				return "", false
			}
			return field + ":" + value, true
		})
	}
}

// ClientIP liga a leitura de X-Real-IP/X-Forwarded-For apenas atrás de
// proxy confiável; sem ele vale o endereço da conexão.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return middleware.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}

// realIPFromRequest lê só RemoteAddr; ClientIP já o reescreveu quando o
// proxy é confiável.
func realIPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Telas HTML recebem texto simples; o navegador mostra a mensagem como está.
func writeRateLimitError(w http.ResponseWriter, wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(RateLimitMessage))
}
