package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// User representa a identidade mantida pelo serviço de autenticação.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// FullName devolve o nome informado no cadastro, quando existir.
func (u *User) FullName() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	name, _ := u.UserMetadata["full_name"].(string)
	return name
}

// Session é a credencial emitida pelo serviço de autenticação.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Expiry devolve o instante de expiração do token de acesso.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Expired indica se o token de acesso expira antes de now+margin.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(margin).Before(exp)
}

// UserID devolve o id do usuário da sessão.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

func (s *Session) normalize() {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
}

// SignUpResult cobre as duas respostas possíveis do cadastro: sessão
// imediata (confirmação desativada) ou apenas o usuário criado.
type SignUpResult struct {
	Session *Session
	User    *User
}

// SignInWithPassword troca email e senha por uma sessão.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var session Session
	if err := c.do(req, "sign_in", &session); err != nil {
		return nil, err
	}
	session.normalize()
	return &session, nil
}

// SignUp cadastra um novo usuário com o nome completo nos metadados.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*SignUpResult, error) {
	body := map[string]any{
		"email":    strings.TrimSpace(email),
		"password": password,
		"data":     map[string]string{"full_name": strings.TrimSpace(fullName)},
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/signup", "", body)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(req, "sign_up", &raw); err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err == nil && session.AccessToken != "" {
		session.normalize()
		return &SignUpResult{Session: &session, User: session.User}, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	return &SignUpResult{User: &user}, nil
}

// SignOut revoga a sessão associada ao token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil)
	if err != nil {
		return err
	}
	return c.do(req, "sign_out", nil)
}

// GetUser valida o token de acesso e devolve o usuário.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := c.do(req, "get_user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshSession troca o refresh token por uma nova sessão.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	var session Session
	if err := c.do(req, "refresh_session", &session); err != nil {
		return nil, err
	}
	session.normalize()
	return &session, nil
}

// UpdatePassword altera a senha do usuário dono do token.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*User, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/auth/v1/user", accessToken, map[string]string{
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var user User
	if err := c.do(req, "update_user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPasswordForEmail envia o link de recuperação para o email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	endpoint := "/auth/v1/recover"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, "", map[string]string{
		"email": strings.TrimSpace(email),
	})
	if err != nil {
		return err
	}
	return c.do(req, "recover", nil)
}

// Health consulta o endpoint de saúde do serviço de autenticação.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/health", "", nil)
	if err != nil {
		return err
	}
	return c.do(req, "health", nil)
}
