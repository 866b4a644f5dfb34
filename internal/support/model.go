package support

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("chamado não encontrado")
	ErrInvalidStatus   = errors.New("status inválido")
	ErrInvalidPriority = errors.New("prioridade inválida")
	ErrInvalidCategory = errors.New("categoria inválida")
)

const (
	StatusOpen            = "OPEN"
	StatusInProgress      = "IN_PROGRESS"
	StatusWaitingCustomer = "WAITING_CUSTOMER"
	StatusResolved        = "RESOLVED"
	StatusClosed          = "CLOSED"

	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"

	DefaultCategory = "Hardware"
	DefaultUnit     = "Matriz"
)

// Option é um valor selecionável com seu rótulo.
type Option struct {
	Value string
	Label string
}

// Statuses, Priorities e Categories seguem a ordem de exibição.
var (
	Statuses = []Option{
		{StatusOpen, "Aberto"},
		{StatusInProgress, "Em Andamento"},
		{StatusWaitingCustomer, "Aguardando Cliente"},
		{StatusResolved, "Resolvido"},
		{StatusClosed, "Fechado"},
	}
	Priorities = []Option{
		{PriorityLow, "Baixa"},
		{PriorityMedium, "Média"},
		{PriorityHigh, "Alta"},
		{PriorityCritical, "Crítica"},
	}
	Categories = []Option{
		{"Hardware", "Hardware"},
		{"Software", "Software"},
		{"Rede", "Rede"},
		{"Acesso", "Acesso / Login"},
		{"Outros", "Outros"},
	}
)

// Ticket representa um chamado.
type Ticket struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	Category     string     `json:"category"`
	Product      *string    `json:"product,omitempty"`
	Area         *string    `json:"area,omitempty"`
	ContactEmail string     `json:"contact_email"`
	ContactPhone *string    `json:"contact_phone,omitempty"`
	Unit         string     `json:"unit"`
	Location     *string    `json:"location,omitempty"`
	CreatedBy    string     `json:"created_by"`
	AssignedTo   *string    `json:"assigned_to,omitempty"`
	ParentID     *int64     `json:"parent_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SLADeadline  *time.Time `json:"sla_deadline,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// StatusLabel devolve o rótulo do status.
func (t Ticket) StatusLabel() string {
	return label(Statuses, t.Status)
}

// PriorityLabel devolve o rótulo da prioridade.
func (t Ticket) PriorityLabel() string {
	return label(Priorities, t.Priority)
}

// Comment representa uma interação no chamado.
type Comment struct {
	ID         string    `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateTicketInput encapsula campos para abertura de chamado.
type CreateTicketInput struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Priority     string  `json:"priority"`
	Category     string  `json:"category"`
	ContactEmail string  `json:"contact_email"`
	ContactPhone *string `json:"contact_phone,omitempty"`
	Unit         string  `json:"unit"`
	Location     *string `json:"location,omitempty"`
	Status       string  `json:"status"`
	CreatedBy    string  `json:"created_by"`
}

// UpdateTicketInput permite atualizar status, prioridade e atribuição.
type UpdateTicketInput struct {
	ID            int64
	Status        *string
	Priority      *string
	AssignedTo    *string
	ClearAssignee bool
	ResolvedAt    *time.Time
}

// CreateCommentInput encapsula novo comentário no chamado.
type CreateCommentInput struct {
	TicketID   int64  `json:"ticket_id"`
	UserID     string `json:"user_id"`
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// TicketFilter permite filtrar a listagem.
type TicketFilter struct {
	Status    string
	CreatedBy string
	Limit     int
}

// Stats resume a lista de chamados.
type Stats struct {
	Open       int
	InProgress int
	Resolved   int
	Total      int
}

// NormalizeStatus padroniza status em maiúsculas.
func NormalizeStatus(status string) string {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "" {
		return StatusOpen
	}
	return status
}

// NormalizePriority padroniza prioridade.
func NormalizePriority(priority string) string {
	priority = strings.ToUpper(strings.TrimSpace(priority))
	if priority == "" {
		return PriorityLow
	}
	return priority
}

// IsValidStatus indica se o status é aceito.
func IsValidStatus(status string) bool {
	return has(Statuses, strings.ToUpper(strings.TrimSpace(status)))
}

// IsValidPriority indica se prioridade é válida.
func IsValidPriority(priority string) bool {
	return has(Priorities, strings.ToUpper(strings.TrimSpace(priority)))
}

// IsValidCategory indica se a categoria é conhecida.
func IsValidCategory(category string) bool {
	return has(Categories, strings.TrimSpace(category))
}

func has(options []Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func label(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}
