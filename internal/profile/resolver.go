package profile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
)

const table = "profiles"

// Fetcher é a superfície REST usada para ler perfis.
type Fetcher interface {
	Select(ctx context.Context, accessToken, table string, q supabase.Query, dest any) error
}

// Resolver busca o perfil do usuário com repetição limitada. Chamadas
// simultâneas para o mesmo usuário e token compartilham a mesma busca.
type Resolver struct {
	rest    Fetcher
	policy  timing.Policy
	timeout time.Duration
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewResolver cria o resolvedor. attempts e backoff controlam a repetição;
// timeout limita cada tentativa.
func NewResolver(rest Fetcher, attempts int, backoff, timeout time.Duration) *Resolver {
	return &Resolver{
		rest: rest,
		policy: timing.Policy{
			Attempts:  attempts,
			Backoff:   backoff,
			Retryable: retryable,
		},
		timeout: timeout,
		logger:  log.With().Str("component", "profile").Logger(),
	}
}

// Falhas de transporte, respostas não-2xx e tempo excedido são repetidas;
// cancelamento do chamador não.
func retryable(err error) bool {
	if errors.Is(err, timing.ErrTimeout) {
		return true
	}
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	return supabase.IsTransient(err)
}

// Resolve devolve o perfil ou nil quando não encontrado ou após esgotar as
// tentativas. Nunca devolve erro: a ausência de perfil é recuperável.
func (r *Resolver) Resolve(ctx context.Context, userID, accessToken string) *Profile {
	if userID == "" || accessToken == "" {
		return nil
	}

	key := userID + "\x00" + accessToken
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), userID, accessToken)
	})

	select {
	case <-ctx.Done():
		return nil
	case res := <-ch:
		if res.Err != nil {
			return nil
		}
		p, _ := res.Val.(*Profile)
		if p == nil {
			return nil
		}
		copied := *p
		return &copied
	}
}

func (r *Resolver) fetch(ctx context.Context, userID, accessToken string) (*Profile, error) {
	q := supabase.Query{}.Eq("id", userID)

	p, err := timing.Retry(ctx, r.policy, func(ctx context.Context, attempt int) (*Profile, error) {
		rows, err := timing.Do(ctx, r.timeout, func(ctx context.Context) ([]Profile, error) {
			var rows []Profile
			err := r.rest.Select(ctx, accessToken, table, q, &rows)
			return rows, err
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("user_id", userID).Int("attempt", attempt).Msg("falha ao buscar perfil")
			return nil, err
		}
		if len(rows) == 0 {
			r.logger.Warn().Str("user_id", userID).Msg("perfil não encontrado")
			return nil, nil
		}
		return &rows[0], nil
	})
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("perfil indisponível após tentativas")
		return nil, err
	}
	return p, nil
}
