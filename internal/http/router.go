package http

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/helpdeskpro/helpdesk/internal/config"
	"github.com/helpdeskpro/helpdesk/internal/directory"
	"github.com/helpdeskpro/helpdesk/internal/guard"
	httpmiddleware "github.com/helpdeskpro/helpdesk/internal/http/middleware"
	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/monitor"
	"github.com/helpdeskpro/helpdesk/internal/obs"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/recovery"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/support"
	"github.com/helpdeskpro/helpdesk/internal/websession"
)

// Backend reúne as superfícies do serviço remoto usadas pelas telas.
type Backend interface {
	identity.Backend
	directory.Store
}

type Handler struct {
	cfg         *config.Config
	redis       *redis.Client
	backend     Backend
	tokens      *identity.TokenParser
	profiles    *profile.Resolver
	sessions    *websession.Store
	cookies     websession.Cookies
	tickets     *support.Service
	directory   *directory.Service
	monitor     *monitor.Service
	authLimiter *httpmiddleware.RateLimiter
	recovery    recovery.Policy
	pages       map[string]*template.Template
}

// NewRouter devolve roteador configurado. monitor pode ser nil.
func NewRouter(cfg *config.Config, redisClient *redis.Client, backend Backend, mon *monitor.Service) (http.Handler, error) {
	pages, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	t := cfg.Timeouts
	h := &Handler{
		cfg:         cfg,
		redis:       redisClient,
		backend:     backend,
		tokens:      identity.NewTokenParser(cfg.JWTSecret),
		profiles:    profile.NewResolver(backend, t.ProfileTries, t.RetryBackoff, t.ProfileFetch),
		sessions:    websession.NewStore(redisClient, cfg.SessionTTL),
		cookies:     websession.Cookies{Dev: cfg.DevCookies(), TTL: cfg.SessionTTL},
		tickets:     support.NewService(support.NewRepository(backend)),
		directory:   directory.NewService(backend, backend, cfg.SiteURL, t.SignUp),
		monitor:     mon,
		authLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		recovery: recovery.Policy{
			SessionCheck:   t.SessionCheck,
			SessionRefresh: t.SessionRefresh,
			Update:         t.PasswordUpdate,
			UpdateAttempts: t.UpdateTries,
			Backoff:        t.RetryBackoff,
		},
		pages: pages,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(httpmiddleware.ClientIP(cfg.TrustProxy))
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(obs.Instrument)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", obs.Handler())
	r.Handle("/static/*", staticFS())

	limited := httpmiddleware.IPRateLimit(h.authLimiter)
	perEmail := httpmiddleware.FormRateLimit(h.authLimiter, "email")

	r.Group(func(app chi.Router) {
		app.Use(h.Session)
		app.Use(guard.Middleware)

		app.Get("/", h.LoginPage)
		app.With(limited).Post("/", h.Login)
		app.Get("/register", h.RegisterPage)
		app.With(limited).Post("/register", h.Register)
		app.Get("/forgot-password", h.ForgotPage)
		app.With(limited, perEmail).Post("/forgot-password", h.Forgot)
		app.Get("/reset-password", h.ResetPage)
		app.With(limited).Post("/reset-password", h.Reset)

		app.Post("/logout", h.Logout)
		app.Post("/profile/refresh", h.RefreshProfile)

		app.Get("/dashboard", h.Dashboard)
		app.Get("/units", h.Placeholder("Unidades"))
		app.Get("/reports", h.Placeholder("Relatórios"))

		app.Route("/tickets", func(t chi.Router) {
			t.Get("/", h.ListTickets)
			t.Get("/new", h.NewTicketPage)
			t.Post("/new", h.CreateTicket)
			t.Get("/{id}", h.TicketDetail)
			t.Post("/{id}/comments", h.AddComment)
			t.Post("/{id}/status", h.UpdateTicket)
		})

		app.Route("/users", func(u chi.Router) {
			u.Use(guard.RequireRoles(profile.RoleAdmin))
			u.Get("/", h.UsersPage)
			u.Post("/", h.CreateUser)
			u.Post("/{id}/name", h.RenameUser)
			u.Post("/{id}/role", h.ChangeRole)
			u.Post("/reset", h.SendReset)
			u.Post("/groups", h.CreateGroup)
			u.Post("/groups/{id}", h.UpdateGroup)
			u.Post("/groups/{id}/delete", h.DeleteGroup)
			u.Post("/queues", h.CreateQueue)
			u.Post("/queues/{id}", h.UpdateQueue)
			u.Post("/queues/{id}/delete", h.DeleteQueue)
		})
	})

	return r, nil
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida Redis e o último resultado do monitor do backend.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	redisErr := h.redis.Ping(ctx).Err()

	var backend *monitor.Status
	if h.monitor != nil {
		backend = h.monitor.Last()
	}
	backendDown := backend != nil && !backend.Up

	if redisErr != nil || backendDown {
		details := map[string]any{"redis": errorString(redisErr)}
		if backend != nil {
			details["backend"] = backend
		}
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dependências indisponíveis", details)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"ready": true, "backend": backend})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ Backend = (*supabase.Client)(nil)
