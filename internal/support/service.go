package support

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/helpdeskpro/helpdesk/internal/profile"
)

// ErrForbidden indica ação reservada à equipe técnica.
var ErrForbidden = errors.New("ação restrita à equipe técnica")

// Actor identifica quem executa a operação.
type Actor struct {
	UserID string
	Email  string
	Token  string
	Role   profile.Role
}

func (a Actor) staff() bool {
	return a.Role == profile.RoleTechnician || a.Role == profile.RoleAdmin
}

// Service reúne regras de negócio para chamados.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService cria uma nova instância do serviço.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateTicket abre um novo chamado em nome do ator.
func (s *Service) CreateTicket(ctx context.Context, actor Actor, input CreateTicketInput) (*Ticket, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	input.ContactEmail = strings.TrimSpace(input.ContactEmail)
	input.Unit = strings.TrimSpace(input.Unit)
	input.Priority = NormalizePriority(input.Priority)

	if actor.UserID == "" {
		return nil, errors.New("Usuário não autenticado")
	}
	if input.Title == "" {
		return nil, errors.New("título obrigatório")
	}
	if input.Description == "" {
		return nil, errors.New("descrição obrigatória")
	}
	if input.Category == "" {
		input.Category = DefaultCategory
	}
	if !IsValidCategory(input.Category) {
		return nil, ErrInvalidCategory
	}
	if !IsValidPriority(input.Priority) {
		return nil, ErrInvalidPriority
	}
	if input.Unit == "" {
		input.Unit = DefaultUnit
	}
	if input.ContactEmail == "" {
		input.ContactEmail = actor.Email
	}

	input.Status = StatusOpen
	input.CreatedBy = actor.UserID

	return s.repo.CreateTicket(ctx, actor.Token, input)
}

// ListTickets lista chamados visíveis ao ator, já filtrados pela busca.
// Clientes veem apenas os próprios chamados.
func (s *Service) ListTickets(ctx context.Context, actor Actor, filter TicketFilter, search string) ([]Ticket, Stats, error) {
	if !actor.staff() {
		filter.CreatedBy = actor.UserID
	}
	if filter.Status != "" {
		filter.Status = NormalizeStatus(filter.Status)
		if !IsValidStatus(filter.Status) {
			filter.Status = ""
		}
	}
	tickets, err := s.repo.ListTickets(ctx, actor.Token, filter)
	if err != nil {
		return nil, Stats{}, err
	}
	return Search(tickets, search), Summarize(tickets), nil
}

// GetTicket recupera um chamado com seus comentários. Notas internas só
// aparecem para a equipe técnica.
func (s *Service) GetTicket(ctx context.Context, actor Actor, id int64) (*Ticket, []Comment, error) {
	ticket, err := s.repo.GetTicket(ctx, actor.Token, id)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.repo.ListComments(ctx, actor.Token, id)
	if err != nil {
		return nil, nil, err
	}
	if !actor.staff() {
		visible := comments[:0]
		for _, c := range comments {
			if !c.IsInternal {
				visible = append(visible, c)
			}
		}
		comments = visible
	}
	return ticket, comments, nil
}

// UpdateTicket altera status, prioridade ou atribuição.
func (s *Service) UpdateTicket(ctx context.Context, actor Actor, id int64, status, priority *string, assignedTo *string, clearAssignee bool) (*Ticket, error) {
	if !actor.staff() {
		return nil, ErrForbidden
	}

	var statusVal *string
	if status != nil {
		normalized := NormalizeStatus(*status)
		if !IsValidStatus(normalized) {
			return nil, ErrInvalidStatus
		}
		statusVal = &normalized
	}

	var priorityVal *string
	if priority != nil {
		normalized := NormalizePriority(*priority)
		if !IsValidPriority(normalized) {
			return nil, ErrInvalidPriority
		}
		priorityVal = &normalized
	}

	update := UpdateTicketInput{
		ID:            id,
		Status:        statusVal,
		Priority:      priorityVal,
		AssignedTo:    assignedTo,
		ClearAssignee: clearAssignee,
	}

	if statusVal != nil {
		switch *statusVal {
		case StatusResolved, StatusClosed:
			now := s.now().UTC()
			update.ResolvedAt = &now
		default:
			// reaberto
			update.ResolvedAt = nil
		}
	}

	return s.repo.UpdateTicket(ctx, actor.Token, update)
}

// AddComment adiciona comentário; apenas a equipe técnica cria notas internas.
func (s *Service) AddComment(ctx context.Context, actor Actor, ticketID int64, content string, internal bool) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("comentário obrigatório")
	}
	if internal && !actor.staff() {
		return nil, ErrForbidden
	}
	return s.repo.CreateComment(ctx, actor.Token, CreateCommentInput{
		TicketID:   ticketID,
		UserID:     actor.UserID,
		Content:    content,
		IsInternal: internal,
	})
}

// Search filtra por título ou email de contato, sem diferenciar maiúsculas.
func Search(tickets []Ticket, term string) []Ticket {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return tickets
	}
	out := make([]Ticket, 0, len(tickets))
	for _, t := range tickets {
		if strings.Contains(strings.ToLower(t.Title), term) || strings.Contains(strings.ToLower(t.ContactEmail), term) {
			out = append(out, t)
		}
	}
	return out
}

// Summarize conta chamados por situação sobre a lista completa.
func Summarize(tickets []Ticket) Stats {
	stats := Stats{Total: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case StatusOpen:
			stats.Open++
		case StatusInProgress:
			stats.InProgress++
		case StatusResolved:
			stats.Resolved++
		}
	}
	return stats
}
