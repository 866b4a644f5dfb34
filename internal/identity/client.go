// Package identity mantém a sessão de um navegador junto ao serviço de
// identidade: guarda a sessão em cache, renova tokens e avisa os inscritos
// a cada mudança de estado.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

// Event identifica o tipo de mudança de estado da autenticação.
type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// expiryMargin antecipa a renovação para evitar tokens vencendo em trânsito.
const expiryMargin = 10 * time.Second

var (
	// ErrNoSession indica que não há sessão ativa para a operação.
	ErrNoSession = errors.New("nenhuma sessão ativa")
	// ErrMissingTokens indica tokens ausentes ao estabelecer sessão.
	ErrMissingTokens = errors.New("tokens de sessão ausentes")
)

// Storage guarda a sessão do navegador. Load devolve nil sem erro quando
// não há sessão.
type Storage interface {
	Load(ctx context.Context) (*supabase.Session, error)
	Save(ctx context.Context, session *supabase.Session) error
	Clear(ctx context.Context) error
}

// Backend é a superfície de autenticação consumida do serviço remoto.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*supabase.SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error)
	UpdatePassword(ctx context.Context, accessToken, password string) (*supabase.User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}

// Listener recebe o evento e a sessão resultante (nil quando encerrada).
type Listener func(ctx context.Context, event Event, session *supabase.Session)

// Client é a sessão de um navegador junto ao serviço de identidade.
type Client struct {
	backend Backend
	store   Storage
	tokens  *TokenParser
	now     func() time.Time

	mu          sync.Mutex
	listeners   map[int]Listener
	nextID      int
	initialSent bool
}

// NewClient cria o cliente sobre o backend e o armazenamento informados.
func NewClient(backend Backend, store Storage, tokens *TokenParser) *Client {
	if tokens == nil {
		tokens = NewTokenParser("")
	}
	return &Client{
		backend:   backend,
		store:     store,
		tokens:    tokens,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// OnAuthStateChange inscreve o listener e devolve a função que cancela a inscrição.
func (c *Client) OnAuthStateChange(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Listeners devolve quantos inscritos estão ativos.
func (c *Client) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *Client) emit(ctx context.Context, event Event, session *supabase.Session) {
	c.mu.Lock()
	if event == EventInitialSession {
		if c.initialSent {
			c.mu.Unlock()
			return
		}
		c.initialSent = true
	}
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ctx, event, session)
	}
}

// GetSession devolve a sessão em cache, renovando-a quando o token de
// acesso já venceu. Uma renovação recusada encerra a sessão local.
func (c *Client) GetSession(ctx context.Context) (*supabase.Session, error) {
	session, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("carregar sessão: %w", err)
	}
	if session == nil || session.AccessToken == "" {
		c.emit(ctx, EventInitialSession, nil)
		return nil, nil
	}

	if !session.Expired(c.now(), expiryMargin) {
		c.emit(ctx, EventInitialSession, session)
		return session, nil
	}

	refreshed, err := c.backend.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		if supabase.IsTransient(err) {
			return nil, fmt.Errorf("renovar sessão: %w", err)
		}
		log.Info().Str("user_id", session.UserID()).Msg("sessão expirada descartada")
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			return nil, fmt.Errorf("limpar sessão: %w", clearErr)
		}
		c.emit(ctx, EventSignedOut, nil)
		return nil, nil
	}
	if refreshed.User == nil {
		refreshed.User = session.User
	}
	if err := c.commit(ctx, refreshed, EventTokenRefreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// commit grava a sessão e notifica os inscritos. Um resultado que chega
// depois do prazo do chamador é descartado sem tocar no armazenamento.
func (c *Client) commit(ctx context.Context, session *supabase.Session, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.Save(ctx, session); err != nil {
		return fmt.Errorf("salvar sessão: %w", err)
	}
	c.emit(ctx, event, session)
	return nil
}

// SetSession estabelece a sessão a partir de um par de tokens.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*supabase.Session, error) {
	return c.setSession(ctx, accessToken, refreshToken, EventSignedIn)
}

// SetRecoverySession estabelece a sessão de um link de recuperação de senha.
func (c *Client) SetRecoverySession(ctx context.Context, accessToken, refreshToken string) (*supabase.Session, error) {
	return c.setSession(ctx, accessToken, refreshToken, EventPasswordRecovery)
}

func (c *Client) setSession(ctx context.Context, accessToken, refreshToken string, event Event) (*supabase.Session, error) {
	if accessToken == "" {
		return nil, ErrMissingTokens
	}

	claims, err := c.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	var session *supabase.Session
	expiry := claims.Expiry()
	if !expiry.IsZero() && !c.now().Add(expiryMargin).Before(expiry) {
		if refreshToken == "" {
			return nil, supabase.ErrSessionInvalid
		}
		session, err = c.backend.RefreshSession(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
	} else {
		user, err := c.backend.GetUser(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		session = &supabase.Session{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "bearer",
			User:         user,
		}
		if !expiry.IsZero() {
			session.ExpiresAt = expiry.Unix()
		}
	}

	if err := c.commit(ctx, session, event); err != nil {
		return nil, err
	}
	return session, nil
}

// SignInWithPassword autentica com email e senha.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error) {
	session, err := c.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.commit(ctx, session, EventSignedIn); err != nil {
		return nil, err
	}
	return session, nil
}

// SignUp cadastra o usuário; quando o serviço já devolve sessão ela passa a valer.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*supabase.SignUpResult, error) {
	res, err := c.backend.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		if err := c.commit(ctx, res.Session, EventSignedIn); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SignOut revoga a sessão remota (melhor esforço) e limpa a local.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("falha ao carregar sessão para logout")
	}
	if session != nil && session.AccessToken != "" {
		if err := c.backend.SignOut(ctx, session.AccessToken); err != nil {
			log.Warn().Err(err).Msg("falha ao revogar sessão remota")
		}
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("limpar sessão: %w", err)
	}
	c.emit(ctx, EventSignedOut, nil)
	return nil
}

// UpdateUser altera a senha do usuário da sessão atual.
func (c *Client) UpdateUser(ctx context.Context, password string) (*supabase.User, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	user, err := c.backend.UpdatePassword(ctx, session.AccessToken, password)
	if err != nil {
		return nil, err
	}
	updated := *session
	updated.User = user
	if err := c.commit(ctx, &updated, EventUserUpdated); err != nil {
		return nil, err
	}
	return user, nil
}

// RefreshSession força a renovação da sessão atual.
func (c *Client) RefreshSession(ctx context.Context) (*supabase.Session, error) {
	session, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("carregar sessão: %w", err)
	}
	if session == nil || session.RefreshToken == "" {
		return nil, ErrNoSession
	}
	return c.refreshWith(ctx, session.RefreshToken, session.User)
}

// RefreshWithToken renova a partir de um refresh token externo, sem sessão em cache.
func (c *Client) RefreshWithToken(ctx context.Context, refreshToken string) (*supabase.Session, error) {
	if refreshToken == "" {
		return nil, ErrMissingTokens
	}
	return c.refreshWith(ctx, refreshToken, nil)
}

func (c *Client) refreshWith(ctx context.Context, refreshToken string, user *supabase.User) (*supabase.Session, error) {
	refreshed, err := c.backend.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if refreshed.User == nil {
		refreshed.User = user
	}
	if err := c.commit(ctx, refreshed, EventTokenRefreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// ResetPasswordForEmail pede o envio do link de recuperação.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.backend.ResetPasswordForEmail(ctx, email, redirectTo)
}
