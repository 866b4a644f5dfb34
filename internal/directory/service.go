package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
	"github.com/helpdeskpro/helpdesk/internal/util"
)

// Store é a superfície REST usada pela administração.
type Store interface {
	Select(ctx context.Context, accessToken, table string, q supabase.Query, dest any) error
	Insert(ctx context.Context, accessToken, table string, rows any, dest any) error
	Update(ctx context.Context, accessToken, table string, q supabase.Query, patch any) error
	Delete(ctx context.Context, accessToken, table string, q supabase.Query) error
}

// Auth cobre as operações de conta disparadas pelo administrador.
type Auth interface {
	SignUp(ctx context.Context, email, password, fullName string) (*supabase.SignUpResult, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}

// Service executa as operações da tela de usuários com o token do
// administrador.
type Service struct {
	rest          Store
	auth          Auth
	resetRedirect string
	signUpTimeout time.Duration
}

// NewService cria o serviço. siteURL compõe o link enviado nos emails de
// recuperação.
func NewService(rest Store, auth Auth, siteURL string, signUpTimeout time.Duration) *Service {
	return &Service{
		rest:          rest,
		auth:          auth,
		resetRedirect: strings.TrimRight(siteURL, "/") + "/reset-password",
		signUpTimeout: signUpTimeout,
	}
}

// Load carrega usuários, grupos e filas em paralelo.
func (s *Service) Load(ctx context.Context, token, search string) (*Screen, error) {
	var (
		users  []profile.Profile
		groups []Group
		queues []Queue
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := supabase.Query{}.OrderBy("created_at", false)
		if err := s.rest.Select(gctx, token, profilesTable, q, &users); err != nil {
			return fmt.Errorf("listar usuários: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		q := supabase.Query{}.OrderBy("name", true)
		if err := s.rest.Select(gctx, token, groupsTable, q, &groups); err != nil {
			return fmt.Errorf("listar grupos: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		q := supabase.Query{}.OrderBy("client_name", true).OrderBy("name", true)
		if err := s.rest.Select(gctx, token, queuesTable, q, &queues); err != nil {
			return fmt.Errorf("listar filas: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Screen{
		Users:    FilterUsers(users, search),
		Counters: Count(users),
		Groups:   groups,
		Queues:   GroupByClient(queues),
	}, nil
}

// CreateUser cadastra a conta e ajusta função e nome no perfil criado.
// A sessão do administrador não é afetada pelo cadastro.
func (s *Service) CreateUser(ctx context.Context, token string, input NewUser) error {
	input.Email = strings.TrimSpace(input.Email)
	input.FullName = strings.TrimSpace(input.FullName)
	if input.Email == "" || input.Password == "" || input.FullName == "" {
		return ErrMissingFields
	}
	if err := util.ValidateEmail(input.Email); err != nil {
		return err
	}
	if err := util.ValidatePassword(input.Password); err != nil {
		return err
	}
	if input.Role == "" {
		input.Role = profile.RoleClient
	}
	if !input.Role.Valid() {
		return profile.ErrInvalidRole
	}

	result, err := timing.Do(ctx, s.signUpTimeout, func(ctx context.Context) (*supabase.SignUpResult, error) {
		return s.auth.SignUp(ctx, input.Email, input.Password, input.FullName)
	})
	if err != nil {
		return err
	}
	if result == nil || result.User == nil || result.User.ID == "" {
		return nil
	}

	q := supabase.Query{}.Eq("id", result.User.ID)
	patch := map[string]any{"role": input.Role, "full_name": input.FullName}
	if err := s.rest.Update(ctx, token, profilesTable, q, patch); err != nil {
		return fmt.Errorf("atualizar perfil: %w", err)
	}

	log.Info().Str("user_id", result.User.ID).Str("role", string(input.Role)).Msg("usuário criado pelo administrador")
	return nil
}

// Rename altera o nome exibido de um usuário.
func (s *Service) Rename(ctx context.Context, token, userID, fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if err := util.RequireString(fullName, "nome"); err != nil {
		return err
	}
	return s.rest.Update(ctx, token, profilesTable, supabase.Query{}.Eq("id", userID), map[string]any{"full_name": fullName})
}

// ChangeRole altera a função de um usuário.
func (s *Service) ChangeRole(ctx context.Context, token, userID, raw string) error {
	role, err := profile.ParseRole(raw)
	if err != nil {
		return err
	}
	return s.rest.Update(ctx, token, profilesTable, supabase.Query{}.Eq("id", userID), map[string]any{"role": role})
}

// SendReset envia o email de recuperação apontando para /reset-password.
func (s *Service) SendReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := util.ValidateEmail(email); err != nil {
		return err
	}
	return s.auth.ResetPasswordForEmail(ctx, email, s.resetRedirect)
}

// CreateGroup cria um grupo de acesso.
func (s *Service) CreateGroup(ctx context.Context, token, name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrGroupNameEmpty
	}
	row := Group{ID: util.NewID(), Name: name, Description: optional(description)}
	return s.rest.Insert(ctx, token, groupsTable, []Group{row}, nil)
}

// UpdateGroup altera nome e descrição do grupo.
func (s *Service) UpdateGroup(ctx context.Context, token, id, name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrGroupNameEmpty
	}
	patch := map[string]any{"name": name, "description": optional(description)}
	return s.rest.Update(ctx, token, groupsTable, supabase.Query{}.Eq("id", id), patch)
}

// DeleteGroup remove o grupo.
func (s *Service) DeleteGroup(ctx context.Context, token, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return s.rest.Delete(ctx, token, groupsTable, supabase.Query{}.Eq("id", id))
}

// CreateQueue cria uma fila para o cliente informado.
func (s *Service) CreateQueue(ctx context.Context, token, name, client, description string) error {
	name, client = strings.TrimSpace(name), strings.TrimSpace(client)
	if name == "" || client == "" {
		return ErrQueueIncomplete
	}
	row := Queue{ID: util.NewID(), Name: name, ClientName: client, Description: optional(description)}
	return s.rest.Insert(ctx, token, queuesTable, []Queue{row}, nil)
}

// UpdateQueue altera a fila.
func (s *Service) UpdateQueue(ctx context.Context, token, id, name, client, description string) error {
	name, client = strings.TrimSpace(name), strings.TrimSpace(client)
	if name == "" || client == "" {
		return ErrQueueIncomplete
	}
	patch := map[string]any{"name": name, "client_name": client, "description": optional(description)}
	return s.rest.Update(ctx, token, queuesTable, supabase.Query{}.Eq("id", id), patch)
}

// DeleteQueue remove a fila.
func (s *Service) DeleteQueue(ctx context.Context, token, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return s.rest.Delete(ctx, token, queuesTable, supabase.Query{}.Eq("id", id))
}
