package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/authstate"
	"github.com/helpdeskpro/helpdesk/internal/guard"
	"github.com/helpdeskpro/helpdesk/internal/profile"
)

//go:embed templates/*.html static/*
var assets embed.FS

var pageNames = []string{
	"login", "register", "forgot", "reset",
	"dashboard", "tickets", "ticket_new", "ticket_detail",
	"users", "placeholder",
}

// view é o modelo comum de todas as telas.
type view struct {
	Title   string
	Path    string
	Shell   bool
	State   authstate.State
	Menu    []guard.MenuItem
	Error   string
	Notice  string
	Refresh string
	Data    any

	// Degraded mostra o aviso de serviço indisponível com link para Retry.
	Degraded bool
	Retry    string
}

// Name devolve o nome exibido do usuário.
func (v view) Name() string {
	if v.State.User == nil {
		return ""
	}
	return v.State.DisplayName()
}

var funcs = template.FuncMap{
	"datetime": func(t any) string {
		switch v := t.(type) {
		case time.Time:
			if v.IsZero() {
				return "-"
			}
			return v.Local().Format("02/01/2006 15:04")
		case *time.Time:
			if v == nil || v.IsZero() {
				return "-"
			}
			return v.Local().Format("02/01/2006 15:04")
		}
		return "-"
	},
	"roleLabel": func(r profile.Role) string { return r.Label() },
	"active":    func(item guard.MenuItem, path string) bool { return item.Active(path) },
	"lower":     strings.ToLower,
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func loadTemplates() (map[string]*template.Template, error) {
	layout, err := template.New("layout").Funcs(funcs).ParseFS(assets, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(assets, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func staticFS() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// render preenche estado e menu a partir da requisição e escreve a tela.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, v view) {
	v.Path = r.URL.Path
	p := authstate.FromContext(r.Context())
	if p != nil {
		if v.Shell {
			p.Settle(r.Context())
		}
		v.Degraded = v.Degraded || p.Degraded()
	}
	v.State = authstate.StateFromContext(r.Context())
	if v.Shell {
		v.Menu = guard.VisibleMenu(v.State.Profile)
	}
	if v.Degraded && v.Retry == "" {
		v.Retry = v.Path
	}

	t, ok := h.pages[page]
	if !ok {
		log.Error().Str("page", page).Msg("template inexistente")
		http.Error(w, "erro interno", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		log.Error().Err(err).Str("page", page).Msg("falha ao renderizar")
		http.Error(w, "erro interno", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderApp(w http.ResponseWriter, r *http.Request, page, title string, data any, errMsg, notice string) {
	h.render(w, r, http.StatusOK, page, view{Title: title, Shell: true, Data: data, Error: errMsg, Notice: notice})
}
