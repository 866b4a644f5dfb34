// Package authstate mantém o estado de autenticação de uma requisição
// ({usuário, sessão, perfil, carregando}) e é seu único escritor.
package authstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/identity"
	"github.com/helpdeskpro/helpdesk/internal/obs"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/recovery"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
)

// EntryPath é a tela pública de entrada (login).
const EntryPath = "/"

// State é uma fotografia do estado de autenticação. Os ponteiros são
// somente leitura para quem recebe.
type State struct {
	User    *supabase.User
	Session *supabase.Session
	Profile *profile.Profile
	Loading bool
}

// Authenticated informa se há usuário na sessão.
func (s State) Authenticated() bool {
	return s.User != nil
}

// UserID devolve o id do usuário ou vazio.
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// AccessToken devolve o token da sessão atual ou vazio.
func (s State) AccessToken() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.AccessToken
}

// DisplayName devolve o nome do perfil, o nome do cadastro ou "Usuário".
func (s State) DisplayName() string {
	return s.Profile.DisplayName(s.User.FullName())
}

// Identity é a superfície do cliente de sessão usada pelo provider.
type Identity interface {
	GetSession(ctx context.Context) (*supabase.Session, error)
	SetRecoverySession(ctx context.Context, accessToken, refreshToken string) (*supabase.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn identity.Listener) (unsubscribe func())
}

// ProfileResolver resolve o perfil de um usuário; nil indica ausência.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID, accessToken string) *profile.Profile
}

// Provider é o dono do estado. Eventos de sessão e o bootstrap escrevem por
// ele; perfis resolvidos para outra geração de usuário são descartados.
// Eventos apenas registram a sessão: o perfil é buscado por Settle, fora dos
// prazos das chamadas de sessão.
type Provider struct {
	auth           Identity
	profiles       ProfileResolver
	sessionTimeout time.Duration
	logger         zerolog.Logger

	mu       sync.RWMutex
	state    State
	gen      uint64
	pending  bool
	degraded bool

	bootOnce    sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

// New cria o provider já inscrito nos eventos de sessão. Close libera a inscrição.
func New(auth Identity, profiles ProfileResolver, sessionTimeout time.Duration) *Provider {
	p := &Provider{
		auth:           auth,
		profiles:       profiles,
		sessionTimeout: sessionTimeout,
		logger:         log.With().Str("component", "authstate").Logger(),
		state:          State{Loading: true},
	}
	p.unsubscribe = auth.OnAuthStateChange(p.handleEvent)
	return p
}

// Close cancela a inscrição nos eventos. Pode ser chamado mais de uma vez.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
	})
}

// State devolve uma fotografia do estado atual.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Degraded informa se o bootstrap terminou sem resposta do serviço de
// identidade (tempo excedido ou erro transitório). A tela de entrada mostra
// então o aviso de serviço indisponível com nova tentativa.
func (p *Provider) Degraded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.degraded
}

// Bootstrap decide o estado inicial uma única vez. Tokens de recuperação no
// fragmento estabelecem a sessão; caso contrário vale a sessão em cache.
// Qualquer falha degrada para não autenticado e Loading termina falso. O
// perfil é resolvido depois que a sessão foi decidida, com o prazo do próprio
// resolvedor.
func (p *Provider) Bootstrap(ctx context.Context, frag recovery.Fragment) {
	p.bootOnce.Do(func() {
		defer p.finishLoading()

		session, err := p.loadSession(ctx, frag)
		p.mu.Lock()
		if err != nil {
			if errors.Is(err, timing.ErrTimeout) {
				obs.CountTimeout("session_check")
			}
			p.logger.Warn().Err(err).Msg("bootstrap sem sessão")
			p.degraded = unavailable(err)
			session = nil
		}
		p.recordLocked("", session)
		p.mu.Unlock()

		p.Settle(ctx)
	})
}

func (p *Provider) loadSession(ctx context.Context, frag recovery.Fragment) (*supabase.Session, error) {
	if err := frag.Err(); err != nil {
		return nil, err
	}
	if frag.IsRecovery() {
		return timing.Do(ctx, p.sessionTimeout, func(ctx context.Context) (*supabase.Session, error) {
			return p.auth.SetRecoverySession(ctx, frag.AccessToken, frag.RefreshToken)
		})
	}
	return timing.Do(ctx, p.sessionTimeout, p.auth.GetSession)
}

func (p *Provider) finishLoading() {
	p.mu.Lock()
	p.state.Loading = false
	p.mu.Unlock()
}

// handleEvent roda dentro da chamada de sessão de quem disparou o evento.
// Um evento cujo contexto já foi encerrado chegou depois do prazo e é
// descartado; o bootstrap trata a sessão inicial.
func (p *Provider) handleEvent(ctx context.Context, event identity.Event, session *supabase.Session) {
	if event == identity.EventInitialSession {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		p.logger.Debug().Str("event", string(event)).Msg("evento tardio descartado")
		return
	}
	p.logger.Debug().Str("event", string(event)).Msg("mudança de estado")
	p.recordLocked(event, session)
}

// recordLocked grava sessão e usuário e marca o perfil como pendente quando
// falta perfil, o perfil é de outro usuário ou o evento atualizou o usuário.
func (p *Provider) recordLocked(event identity.Event, session *supabase.Session) {
	var user *supabase.User
	if session != nil {
		user = session.User
	}

	if p.state.UserID() != userID(user) {
		p.gen++
		p.state.Profile = nil
	}
	p.state.Session = session
	p.state.User = user

	if user == nil {
		p.state.Profile = nil
		p.pending = false
		return
	}
	cached := p.state.Profile
	if cached == nil || cached.ID != user.ID || event == identity.EventUserUpdated {
		p.pending = true
	}
}

// Settle busca o perfil marcado como pendente pelos eventos de sessão.
func (p *Provider) Settle(ctx context.Context) {
	p.mu.Lock()
	if !p.pending || p.state.User == nil || p.state.Session == nil {
		p.mu.Unlock()
		return
	}
	p.pending = false
	gen := p.gen
	uid := p.state.User.ID
	token := p.state.Session.AccessToken
	p.mu.Unlock()

	p.resolveProfile(ctx, gen, uid, token)
}

func (p *Provider) resolveProfile(ctx context.Context, gen uint64, uid, token string) {
	prof := p.profiles.Resolve(ctx, uid, token)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		p.logger.Debug().Str("user_id", uid).Msg("perfil tardio descartado")
		return
	}
	p.state.Profile = prof
}

// SignOut encerra a sessão, limpa o estado e devolve a tela pública de entrada.
func (p *Provider) SignOut(ctx context.Context) string {
	if err := p.auth.SignOut(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("falha ao encerrar sessão")
	}

	p.mu.Lock()
	p.gen++
	p.pending = false
	p.state = State{}
	p.mu.Unlock()
	return EntryPath
}

// RefreshProfile busca novamente o perfil do usuário atual.
func (p *Provider) RefreshProfile(ctx context.Context) {
	p.mu.Lock()
	if p.state.User == nil || p.state.Session == nil {
		p.mu.Unlock()
		return
	}
	p.state.Loading = true
	p.pending = false
	gen := p.gen
	uid := p.state.User.ID
	token := p.state.Session.AccessToken
	p.mu.Unlock()

	defer p.finishLoading()
	p.resolveProfile(ctx, gen, uid, token)
}

// unavailable separa falhas do serviço (lentidão, transporte, 5xx) de
// recusas definitivas do link ou do token.
func unavailable(err error) bool {
	if errors.Is(err, recovery.ErrInvalidLink) || errors.Is(err, identity.ErrTokenMalformed) {
		return false
	}
	return supabase.IsTransient(err)
}

func userID(u *supabase.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

type ctxKey struct{}

// WithProvider injeta o provider no contexto.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext recupera o provider do contexto.
func FromContext(ctx context.Context) *Provider {
	p, _ := ctx.Value(ctxKey{}).(*Provider)
	return p
}

// StateFromContext devolve o estado do provider no contexto; sem provider o
// estado é não autenticado e ainda carregando.
func StateFromContext(ctx context.Context) State {
	if p := FromContext(ctx); p != nil {
		return p.State()
	}
	return State{Loading: true}
}
