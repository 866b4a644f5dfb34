package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/authstate"
	"github.com/helpdeskpro/helpdesk/internal/guard"
	"github.com/helpdeskpro/helpdesk/internal/recovery"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
	"github.com/helpdeskpro/helpdesk/internal/util"
)

const msgRequestTimeout = "Tempo limite da requisição excedido. Verifique sua conexão."

type loginForm struct {
	Email string
}

type registerForm struct {
	FullName string
	Email    string
}

type forgotData struct {
	Email string
	Sent  bool
}

// Etapas da tela de redefinição.
const (
	resetValidating = "validating"
	resetForm       = "form"
	resetInvalid    = "invalid"
	resetDone       = "done"
)

type resetData struct {
	Step string
}

// LoginPage exibe o formulário de entrada.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	notice := ""
	if r.URL.Query().Get("cadastro") == "confirmar" {
		notice = "Cadastro realizado. Confirme seu email para entrar."
	}
	v := view{Title: "Entrar", Data: loginForm{}, Notice: notice}
	if next, ok := guard.LocalPath(r.URL.Query().Get(guard.RetryParam)); ok {
		v.Degraded = true
		v.Retry = next
	}
	h.render(w, r, http.StatusOK, "login", v)
}

// Login autentica com email e senha e segue para o painel.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	form := loginForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	password := r.PostFormValue("password")

	if form.Email == "" || password == "" {
		h.render(w, r, http.StatusUnprocessableEntity, "login", view{Title: "Entrar", Data: form, Error: "Informe email e senha"})
		return
	}

	client := identityFrom(r.Context())
	_, err := timing.Do(r.Context(), h.cfg.Timeouts.SignUp, func(ctx context.Context) (*supabase.Session, error) {
		return client.SignInWithPassword(ctx, form.Email, password)
	})
	if err != nil {
		log.Info().Err(err).Str("email", form.Email).Msg("login recusado")
		h.render(w, r, http.StatusUnauthorized, "login", view{Title: "Entrar", Data: form, Error: loginMessage(err)})
		return
	}

	http.Redirect(w, r, guard.HomePath, http.StatusSeeOther)
}

func loginMessage(err error) string {
	switch {
	case errors.Is(err, timing.ErrTimeout):
		return msgRequestTimeout
	case errors.Is(err, supabase.ErrInvalidCredentials):
		return "Email ou senha inválidos"
	}
	if msg := apiMessage(err); msg != "" {
		return msg
	}
	return "Erro ao fazer login. Verifique suas credenciais."
}

// RegisterPage exibe o cadastro.
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", view{Title: "Criar conta", Data: registerForm{}})
}

// Register cria a conta dentro do limite de tempo do cadastro.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	form := registerForm{
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}
	password := r.PostFormValue("password")

	fail := func(status int, msg string) {
		h.render(w, r, status, "register", view{Title: "Criar conta", Data: form, Error: msg})
	}

	if err := util.RequireString(form.FullName, "nome"); err != nil {
		fail(http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := util.ValidateEmail(form.Email); err != nil {
		fail(http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := util.ValidatePassword(password); err != nil {
		fail(http.StatusUnprocessableEntity, err.Error())
		return
	}

	client := identityFrom(r.Context())
	result, err := timing.Do(r.Context(), h.cfg.Timeouts.SignUp, func(ctx context.Context) (*supabase.SignUpResult, error) {
		return client.SignUp(ctx, form.Email, password, form.FullName)
	})
	if err != nil {
		log.Warn().Err(err).Str("email", form.Email).Msg("cadastro falhou")
		msg := "Erro ao cadastrar"
		if errors.Is(err, timing.ErrTimeout) {
			msg = msgRequestTimeout
		} else if m := apiMessage(err); m != "" {
			msg = m
		}
		fail(http.StatusUnprocessableEntity, msg)
		return
	}

	if result.Session == nil {
		http.Redirect(w, r, authstate.EntryPath+"?cadastro=confirmar", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, guard.HomePath, http.StatusSeeOther)
}

// ForgotPage exibe o pedido de recuperação.
func (h *Handler) ForgotPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "forgot", view{Title: "Recuperar senha", Data: forgotData{}})
}

// Forgot envia o link de recuperação apontando para /reset-password.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	data := forgotData{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if err := util.ValidateEmail(data.Email); err != nil {
		h.render(w, r, http.StatusUnprocessableEntity, "forgot", view{Title: "Recuperar senha", Data: data, Error: err.Error()})
		return
	}

	client := identityFrom(r.Context())
	if err := client.ResetPasswordForEmail(r.Context(), data.Email, h.cfg.SiteURL+"/reset-password"); err != nil {
		log.Warn().Err(err).Msg("envio de recuperação falhou")
		msg := apiMessage(err)
		if msg == "" {
			msg = "Erro ao enviar email de recuperação"
		}
		h.render(w, r, http.StatusUnprocessableEntity, "forgot", view{Title: "Recuperar senha", Data: data, Error: msg})
		return
	}

	data.Sent = true
	h.render(w, r, http.StatusOK, "forgot", view{Title: "Email enviado", Data: data})
}

// ResetPage entrega a tela que encaminha o fragmento do link ao servidor.
func (h *Handler) ResetPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "reset", view{Title: "Redefinir senha", Data: resetData{Step: resetValidating}})
}

// Reset trata as duas etapas da redefinição: validar o link (step=session)
// e trocar a senha (step=reset).
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	redeemer := recovery.NewRedeemer(identityFrom(r.Context()), h.recovery)

	show := func(status int, step, errMsg string) {
		v := view{Title: "Redefinir senha", Data: resetData{Step: step}, Error: errMsg}
		if step == resetDone {
			v.Notice = "Senha redefinida com sucesso! Redirecionando para o login..."
			v.Refresh = refreshAfter(h.cfg.Timeouts.ResetRedirect, authstate.EntryPath)
		}
		h.render(w, r, status, "reset", v)
	}

	if r.PostFormValue("step") == "session" {
		frag := recovery.ParseFragment(r.PostFormValue("fragment"))
		if err := frag.Err(); err != nil {
			show(http.StatusOK, resetInvalid, recovery.Message(err))
			return
		}
		if authstate.StateFromContext(r.Context()).Authenticated() {
			show(http.StatusOK, resetForm, "")
			return
		}
		if _, err := redeemer.Establish(r.Context(), frag); err != nil {
			show(http.StatusOK, resetInvalid, recovery.Message(err))
			return
		}
		show(http.StatusOK, resetForm, "")
		return
	}

	password, confirm := r.PostFormValue("password"), r.PostFormValue("confirm_password")
	if err := redeemer.Reset(r.Context(), recovery.Fragment{}, password, confirm); err != nil {
		log.Warn().Err(err).Msg("redefinição de senha falhou")
		step := resetForm
		if errors.Is(err, recovery.ErrLinkExpired) || errors.Is(err, recovery.ErrInvalidLink) {
			step = resetInvalid
		}
		show(http.StatusUnprocessableEntity, step, recovery.Message(err))
		return
	}

	show(http.StatusOK, resetDone, "")
}

// Logout encerra a sessão e volta à tela de entrada.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	to := authstate.EntryPath
	if p := authstate.FromContext(r.Context()); p != nil {
		to = p.SignOut(r.Context())
	}
	h.cookies.Clear(w)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// RefreshProfile busca o perfil novamente e volta à tela de origem.
func (h *Handler) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	if p := authstate.FromContext(r.Context()); p != nil {
		p.RefreshProfile(r.Context())
	}
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

func backTo(r *http.Request) string {
	if next, ok := guard.LocalPath(r.PostFormValue("next")); ok {
		return next
	}
	return guard.HomePath
}
