// Package recovery transforma um link de recuperação de senha em uma troca
// de senha concluída.
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/obs"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
	"github.com/helpdeskpro/helpdesk/internal/util"
)

var (
	// ErrInvalidLink indica link recusado pelo próprio serviço (erro no fragmento).
	ErrInvalidLink = errors.New("Link de recuperação inválido. Solicite um novo link.")
	// ErrLinkExpired indica que não foi possível validar a sessão do link a tempo.
	ErrLinkExpired = errors.New("Link expirado ou inválido. Solicite um novo link de recuperação.")
	// ErrSamePassword traduz a recusa por reutilização da senha atual.
	ErrSamePassword = errors.New("A nova senha deve ser diferente da senha atual.")
	// ErrPasswordMismatch e ErrPasswordTooShort são falhas de validação local.
	ErrPasswordMismatch = util.ErrPasswordMismatch
	ErrPasswordTooShort = util.ErrPasswordTooShort
)

// Auth é a superfície de sessão usada na recuperação.
type Auth interface {
	GetSession(ctx context.Context) (*supabase.Session, error)
	SetRecoverySession(ctx context.Context, accessToken, refreshToken string) (*supabase.Session, error)
	RefreshWithToken(ctx context.Context, refreshToken string) (*supabase.Session, error)
	UpdateUser(ctx context.Context, password string) (*supabase.User, error)
}

// Policy define prazos e repetição da recuperação.
type Policy struct {
	SessionCheck   time.Duration
	SessionRefresh time.Duration
	Update         time.Duration
	UpdateAttempts int
	Backoff        time.Duration
}

// Redeemer conduz a recuperação para a sessão de um navegador.
type Redeemer struct {
	auth   Auth
	policy Policy
}

// NewRedeemer cria o fluxo de recuperação.
func NewRedeemer(auth Auth, policy Policy) *Redeemer {
	return &Redeemer{auth: auth, policy: policy}
}

// ValidatePasswords confere a senha localmente, sem chamadas remotas.
func ValidatePasswords(password, confirm string) error {
	return util.ValidatePasswordPair(password, confirm)
}

// Establish garante uma sessão válida para a troca de senha. Um fragmento
// com erro falha sem chamadas remotas; tokens de recuperação são validados
// dentro do prazo, com renovação de melhor esforço se o prazo estourar; sem
// tokens vale a sessão já existente.
func (r *Redeemer) Establish(ctx context.Context, frag Fragment) (*supabase.Session, error) {
	if err := frag.Err(); err != nil {
		return nil, err
	}

	if !frag.IsRecovery() {
		session, err := timing.Do(ctx, r.policy.SessionCheck, r.auth.GetSession)
		if err != nil {
			countTimeout("session_check", err)
			log.Warn().Err(err).Msg("recuperação: sessão existente indisponível")
			return nil, errors.Join(ErrLinkExpired, err)
		}
		if session == nil {
			return nil, ErrLinkExpired
		}
		return session, nil
	}

	session, err := timing.Do(ctx, r.policy.SessionCheck, func(ctx context.Context) (*supabase.Session, error) {
		return r.auth.SetRecoverySession(ctx, frag.AccessToken, frag.RefreshToken)
	})
	if err == nil {
		return session, nil
	}
	countTimeout("set_session", err)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if fallbackAllowed(err) && frag.RefreshToken != "" {
		log.Warn().Err(err).Msg("recuperação: validação do link lenta, tentando renovação direta")
		session, ferr := timing.Do(ctx, r.policy.SessionRefresh, func(ctx context.Context) (*supabase.Session, error) {
			return r.auth.RefreshWithToken(ctx, frag.RefreshToken)
		})
		if ferr == nil {
			return session, nil
		}
		countTimeout("session_refresh", ferr)
		err = ferr
	}

	log.Warn().Err(err).Msg("recuperação: link não validado")
	return nil, errors.Join(ErrLinkExpired, err)
}

// Reset valida as senhas, garante a sessão e troca a senha. Repete a
// atualização em falhas transitórias até o limite configurado.
func (r *Redeemer) Reset(ctx context.Context, frag Fragment, password, confirm string) error {
	if err := ValidatePasswords(password, confirm); err != nil {
		return err
	}

	if _, err := r.Establish(ctx, frag); err != nil {
		return err
	}

	policy := timing.Policy{
		Attempts: r.policy.UpdateAttempts,
		Backoff:  r.policy.Backoff,
		Retryable: func(err error) bool {
			return errors.Is(err, timing.ErrTimeout) || supabase.IsTransient(err)
		},
	}
	var timedOut bool
	_, err := timing.Retry(ctx, policy, func(ctx context.Context, attempt int) (*supabase.User, error) {
		user, err := timing.Do(ctx, r.policy.Update, func(ctx context.Context) (*supabase.User, error) {
			return r.auth.UpdateUser(ctx, password)
		})
		if err != nil {
			if errors.Is(err, timing.ErrTimeout) {
				timedOut = true
			}
			countTimeout("update_user", err)
			log.Warn().Err(err).Int("attempt", attempt).Msg("recuperação: falha ao atualizar senha")
		}
		return user, err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, supabase.ErrSamePassword):
		// A tentativa abandonada por tempo pode ter sido aplicada no serviço.
		if timedOut {
			return nil
		}
		return ErrSamePassword
	case errors.Is(err, supabase.ErrSessionInvalid):
		return errors.Join(ErrLinkExpired, err)
	}
	return err
}

// Message converte o erro no texto exibido no formulário.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPasswordMismatch):
		return ErrPasswordMismatch.Error()
	case errors.Is(err, ErrPasswordTooShort):
		return ErrPasswordTooShort.Error()
	case errors.Is(err, ErrSamePassword):
		return ErrSamePassword.Error()
	case errors.Is(err, ErrInvalidLink):
		return ErrInvalidLink.Error()
	case errors.Is(err, ErrLinkExpired):
		return ErrLinkExpired.Error()
	case errors.Is(err, timing.ErrTimeout):
		return "A operação demorou muito para responder. Tente novamente."
	}
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Erro ao redefinir senha"
}

// A renovação direta só vale para lentidão ou falha transitória; recusa
// definitiva do link não é contornada.
func fallbackAllowed(err error) bool {
	if errors.Is(err, identity.ErrTokenMalformed) {
		return false
	}
	return errors.Is(err, timing.ErrTimeout) || supabase.IsTransient(err)
}

func countTimeout(op string, err error) {
	if errors.Is(err, timing.ErrTimeout) {
		obs.CountTimeout(op)
	}
}
