package support

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

const (
	ticketsTable  = "tickets"
	commentsTable = "ticket_comments"
)

// Store é a superfície REST usada pelo repositório.
type Store interface {
	Select(ctx context.Context, accessToken, table string, q supabase.Query, dest any) error
	Insert(ctx context.Context, accessToken, table string, rows any, dest any) error
	Update(ctx context.Context, accessToken, table string, q supabase.Query, patch any) error
}

// Repository provê acesso às tabelas de chamados com o token do usuário,
// sujeito às regras de acesso por linha do serviço.
type Repository struct {
	rest Store
}

// NewRepository cria instância do repositório.
func NewRepository(rest Store) *Repository {
	return &Repository{rest: rest}
}

// CreateTicket insere um novo chamado.
func (r *Repository) CreateTicket(ctx context.Context, token string, input CreateTicketInput) (*Ticket, error) {
	var rows []Ticket
	if err := r.rest.Insert(ctx, token, ticketsTable, []CreateTicketInput{input}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("chamado criado sem retorno")
	}
	return &rows[0], nil
}

// GetTicket busca um chamado específico.
func (r *Repository) GetTicket(ctx context.Context, token string, id int64) (*Ticket, error) {
	var rows []Ticket
	q := supabase.Query{}.Eq("id", strconv.FormatInt(id, 10))
	if err := r.rest.Select(ctx, token, ticketsTable, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListTickets lista chamados do mais recente para o mais antigo.
func (r *Repository) ListTickets(ctx context.Context, token string, filter TicketFilter) ([]Ticket, error) {
	q := supabase.Query{Limit: filter.Limit}.OrderBy("created_at", false)
	if filter.Status != "" {
		q = q.Eq("status", filter.Status)
	}
	if filter.CreatedBy != "" {
		q = q.Eq("created_by", filter.CreatedBy)
	}

	var rows []Ticket
	if err := r.rest.Select(ctx, token, ticketsTable, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateTicket aplica as alterações e devolve o chamado atualizado.
func (r *Repository) UpdateTicket(ctx context.Context, token string, input UpdateTicketInput) (*Ticket, error) {
	patch := map[string]any{"updated_at": time.Now().UTC()}
	if input.Status != nil {
		patch["status"] = *input.Status
		patch["resolved_at"] = input.ResolvedAt
	}
	if input.Priority != nil {
		patch["priority"] = *input.Priority
	}
	if input.ClearAssignee {
		patch["assigned_to"] = nil
	} else if input.AssignedTo != nil {
		patch["assigned_to"] = *input.AssignedTo
	}

	q := supabase.Query{}.Eq("id", strconv.FormatInt(input.ID, 10))
	if err := r.rest.Update(ctx, token, ticketsTable, q, patch); err != nil {
		return nil, err
	}
	return r.GetTicket(ctx, token, input.ID)
}

// CreateComment adiciona comentário ao chamado.
func (r *Repository) CreateComment(ctx context.Context, token string, input CreateCommentInput) (*Comment, error) {
	var rows []Comment
	if err := r.rest.Insert(ctx, token, commentsTable, []CreateCommentInput{input}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("comentário criado sem retorno")
	}
	return &rows[0], nil
}

// ListComments lista comentários em ordem cronológica.
func (r *Repository) ListComments(ctx context.Context, token string, ticketID int64) ([]Comment, error) {
	q := supabase.Query{}.Eq("ticket_id", strconv.FormatInt(ticketID, 10)).OrderBy("created_at", true)
	var rows []Comment
	if err := r.rest.Select(ctx, token, commentsTable, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
