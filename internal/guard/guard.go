// Package guard impede o acesso a telas protegidas sem sessão e a telas
// restritas sem o papel exigido.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/authstate"
	"github.com/helpdeskpro/helpdesk/internal/profile"
)

// HomePath é a tela inicial de quem já está autenticado.
const HomePath = "/dashboard"

// RetryParam leva à tela de entrada o caminho interrompido por indisponibilidade
// do serviço de identidade.
const RetryParam = "retry"

var publicPaths = map[string]struct{}{
	"/":                {},
	"/register":        {},
	"/forgot-password": {},
	"/reset-password":  {},
}

// IsPublic informa se o caminho dispensa sessão. A comparação é exata.
func IsPublic(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

// Check decide o redirecionamento para o caminho e o estado atuais.
// Enquanto o estado carrega nenhuma ação é tomada.
func Check(path string, state authstate.State) (redirect string, ok bool) {
	if state.Loading || IsPublic(path) || state.Authenticated() {
		return "", false
	}
	return authstate.EntryPath, true
}

// Middleware aplica Check com o estado do provider da requisição.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := authstate.StateFromContext(r.Context())
		if to, ok := Check(r.URL.Path, state); ok {
			if p := authstate.FromContext(r.Context()); p != nil && p.Degraded() {
				to += "?" + url.Values{RetryParam: {r.URL.Path}}.Encode()
			}
			log.Debug().Str("path", r.URL.Path).Msg("acesso sem sessão redirecionado")
			http.Redirect(w, r, to, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles exige um dos papéis; quem não os possui volta ao painel.
func RequireRoles(roles ...profile.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := authstate.StateFromContext(r.Context())
			if state.Loading {
				next.ServeHTTP(w, r)
				return
			}
			if !state.Profile.HasRole(roles...) {
				http.Redirect(w, r, HomePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LocalPath aceita apenas caminhos absolutos deste site. Barras invertidas
// são recusadas porque navegadores as tratam como "/" (/\host vira //host).
func LocalPath(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	return raw, true
}
