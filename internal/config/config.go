package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	// ErrSupabaseURLMissing indica ausência da URL do backend.
	ErrSupabaseURLMissing = errors.New("SUPABASE_URL obrigatório")
	// ErrSupabaseKeyMissing indica ausência da chave pública do backend.
	ErrSupabaseKeyMissing = errors.New("SUPABASE_ANON_KEY obrigatório")
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port        int
	SiteURL     string
	RedisURL    string
	SupabaseURL string
	SupabaseKey string
	JWTSecret   string
	SessionTTL  time.Duration
	// TrustProxy aceita X-Real-IP e X-Forwarded-For como IP do cliente.
	// Só deve ser ligado atrás de um proxy que sobrescreve esses cabeçalhos.
	TrustProxy bool

	Timeouts   TimeoutConfig
	RateLimit  RateLimitConfig
	Monitoring MonitoringConfig
}

// TimeoutConfig reúne limites de espera das chamadas remotas.
type TimeoutConfig struct {
	SessionCheck   time.Duration
	SessionRefresh time.Duration
	PasswordUpdate time.Duration
	SignUp         time.Duration
	ProfileFetch   time.Duration
	ProfileTries   int
	UpdateTries    int
	RetryBackoff   time.Duration
	ResetRedirect  time.Duration
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// MonitoringConfig controla a verificação periódica do backend.
type MonitoringConfig struct {
	Enabled         bool
	Interval        time.Duration
	RequestTimeout  time.Duration
	SlackWebhookURL string
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(getEnv("SUPABASE_URL", "")), "/")
	if cfg.SupabaseURL == "" {
		return nil, ErrSupabaseURLMissing
	}
	if _, err := url.ParseRequestURI(cfg.SupabaseURL); err != nil {
		return nil, errors.New("SUPABASE_URL inválida")
	}

	cfg.SupabaseKey = strings.TrimSpace(getEnv("SUPABASE_ANON_KEY", ""))
	if cfg.SupabaseKey == "" {
		return nil, ErrSupabaseKeyMissing
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(getEnv("SITE_URL", "")), "/")
	if cfg.SiteURL == "" {
		cfg.SiteURL = "http://localhost:" + portStr
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("SUPABASE_JWT_SECRET", ""))
	cfg.TrustProxy = getEnv("TRUST_PROXY", "false") == "true"

	if cfg.SessionTTL, err = parseDurationEnv("SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.Timeouts, err = loadTimeouts(); err != nil {
		return nil, err
	}

	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 2, Burst: 10}
	if v := getEnv("AUTH_RATE_LIMIT_RPS", ""); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, errors.New("AUTH_RATE_LIMIT_RPS inválido")
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}

	cfg.Monitoring.SlackWebhookURL = strings.TrimSpace(getEnv("SLACK_WEBHOOK_URL", ""))
	cfg.Monitoring.Enabled = getEnv("MONITOR_ENABLED", "true") != "false"
	if cfg.Monitoring.Interval, err = parseDurationEnv("MONITOR_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	cfg.Monitoring.RequestTimeout = 5 * time.Second

	return cfg, nil
}

// DevCookies indica se os cookies podem trafegar sem TLS (ambiente local).
func (c *Config) DevCookies() bool {
	return strings.HasPrefix(c.SiteURL, "http://")
}

// DefaultTimeouts devolve a política adotada para chamadas remotas.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		SessionCheck:   5 * time.Second,
		SessionRefresh: 2 * time.Second,
		PasswordUpdate: 15 * time.Second,
		SignUp:         10 * time.Second,
		ProfileFetch:   5 * time.Second,
		ProfileTries:   3,
		UpdateTries:    2,
		RetryBackoff:   time.Second,
		ResetRedirect:  3 * time.Second,
	}
}

func loadTimeouts() (TimeoutConfig, error) {
	t := DefaultTimeouts()
	var err error

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SESSION_CHECK_TIMEOUT", &t.SessionCheck},
		{"SESSION_REFRESH_TIMEOUT", &t.SessionRefresh},
		{"PASSWORD_UPDATE_TIMEOUT", &t.PasswordUpdate},
		{"SIGNUP_TIMEOUT", &t.SignUp},
		{"PROFILE_FETCH_TIMEOUT", &t.ProfileFetch},
		{"RETRY_BACKOFF", &t.RetryBackoff},
		{"RESET_REDIRECT_DELAY", &t.ResetRedirect},
	}
	for _, d := range durations {
		if *d.dst, err = parseDurationEnv(d.key, *d.dst); err != nil {
			return t, err
		}
	}

	if t.ProfileTries, err = parseIntEnv("PROFILE_FETCH_ATTEMPTS", t.ProfileTries); err != nil {
		return t, err
	}
	if t.UpdateTries, err = parseIntEnv("PASSWORD_UPDATE_ATTEMPTS", t.UpdateTries); err != nil {
		return t, err
	}
	return t, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil || dur <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseIntEnv(key string, def int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}
