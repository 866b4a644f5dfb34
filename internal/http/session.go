package http

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/authstate"
	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/recovery"
	"github.com/helpdeskpro/helpdesk/internal/websession"
)

type identityKey struct{}

// identityFrom devolve o cliente de sessão da requisição.
func identityFrom(ctx context.Context) *identity.Client {
	c, _ := ctx.Value(identityKey{}).(*identity.Client)
	return c
}

// Session liga a requisição à sessão do navegador: garante o cookie, cria o
// cliente de identidade sobre o armazenamento do sid e o provider de estado,
// executa o bootstrap e libera a inscrição ao final.
func (h *Handler) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := h.cookies.Read(r)
		if !ok {
			raw, _, err := websession.NewID()
			if err != nil {
				log.Error().Err(err).Msg("falha ao gerar sid")
				http.Error(w, "erro interno", http.StatusInternalServerError)
				return
			}
			sid = raw
			h.cookies.Set(w, sid)
		}

		storage, err := h.sessions.For(sid)
		if err != nil {
			h.cookies.Clear(w)
			http.Redirect(w, r, authstate.EntryPath, http.StatusSeeOther)
			return
		}

		client := identity.NewClient(h.backend, storage, h.tokens)
		provider := authstate.New(client, h.profiles, h.cfg.Timeouts.SessionCheck)
		defer provider.Close()

		provider.Bootstrap(r.Context(), bootstrapFragment(r))

		ctx := context.WithValue(r.Context(), identityKey{}, client)
		ctx = authstate.WithProvider(ctx, provider)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// O fragmento só chega ao servidor quando a tela de redefinição o envia.
func bootstrapFragment(r *http.Request) recovery.Fragment {
	if r.Method != http.MethodPost || r.URL.Path != "/reset-password" {
		return recovery.Fragment{}
	}
	if r.PostFormValue("step") != "session" {
		return recovery.Fragment{}
	}
	return recovery.ParseFragment(r.PostFormValue("fragment"))
}
