package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/authstate"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/support"
)

type ticketListData struct {
	Tickets  []support.Ticket
	Stats    support.Stats
	Search   string
	Status   string
	Statuses []support.Option
}

type ticketFormData struct {
	Input      support.CreateTicketInput
	Categories []support.Option
	Priorities []support.Option
}

type ticketDetailData struct {
	Ticket     *support.Ticket
	Comments   []support.Comment
	Staff      bool
	Statuses   []support.Option
	Priorities []support.Option
}

type kpi struct {
	Title string
	Value string
	Hint  string
}

func actorFrom(r *http.Request) support.Actor {
	state := authstate.StateFromContext(r.Context())
	actor := support.Actor{UserID: state.UserID(), Token: state.AccessToken()}
	if state.User != nil {
		actor.Email = state.User.Email
	}
	if state.Profile != nil {
		actor.Role = state.Profile.Role
		if actor.Email == "" {
			actor.Email = state.Profile.Email
		}
	}
	return actor
}

// Dashboard mostra os indicadores fixos do painel.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	kpis := []kpi{
		{"Chamados Abertos", "24", "12% vs mês anterior"},
		{"Em Atendimento", "12", "Tempo médio: 2.5h"},
		{"SLA Crítico", "3", "Requer atenção imediata"},
		{"Resolvidos (Hoje)", "8", "Taxa de resolução: 95%"},
	}
	h.renderApp(w, r, "dashboard", "Dashboard", kpis, "", "")
}

// Placeholder entrega telas ainda em desenvolvimento.
func (h *Handler) Placeholder(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderApp(w, r, "placeholder", title, nil, "", "")
	}
}

// ListTickets lista chamados com busca por assunto ou email.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	data := ticketListData{
		Search:   strings.TrimSpace(r.URL.Query().Get("q")),
		Status:   r.URL.Query().Get("status"),
		Statuses: support.Statuses,
	}

	tickets, stats, err := h.tickets.ListTickets(r.Context(), actorFrom(r), support.TicketFilter{Status: data.Status}, data.Search)
	if err != nil {
		log.Error().Err(err).Msg("falha ao listar chamados")
		h.renderApp(w, r, "tickets", "Chamados", data, userMessage(err, "Erro ao carregar chamados"), "")
		return
	}
	data.Tickets, data.Stats = tickets, stats
	h.renderApp(w, r, "tickets", "Chamados", data, "", noticeFrom(r))
}

// NewTicketPage exibe o formulário de abertura.
func (h *Handler) NewTicketPage(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	data := ticketFormData{
		Input: support.CreateTicketInput{
			Category:     support.DefaultCategory,
			Priority:     support.PriorityLow,
			ContactEmail: actor.Email,
			Unit:         support.DefaultUnit,
		},
		Categories: support.Categories,
		Priorities: support.Priorities,
	}
	h.renderApp(w, r, "ticket_new", "Novo Chamado", data, "", "")
}

// CreateTicket abre o chamado e volta à lista.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	input := support.CreateTicketInput{
		Title:        r.PostFormValue("title"),
		Description:  r.PostFormValue("description"),
		Category:     r.PostFormValue("category"),
		Priority:     r.PostFormValue("priority"),
		ContactEmail: r.PostFormValue("contact_email"),
		Unit:         r.PostFormValue("unit"),
	}

	if _, err := h.tickets.CreateTicket(r.Context(), actorFrom(r), input); err != nil {
		log.Warn().Err(err).Msg("falha ao abrir chamado")
		data := ticketFormData{Input: input, Categories: support.Categories, Priorities: support.Priorities}
		h.renderApp(w, r, "ticket_new", "Novo Chamado", data, userMessage(err, fallbackText(err, "Erro ao criar chamado")), "")
		return
	}
	http.Redirect(w, r, "/tickets?ok=created", http.StatusSeeOther)
}

// TicketDetail exibe o chamado e suas interações.
func (h *Handler) TicketDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Redirect(w, r, "/tickets", http.StatusSeeOther)
		return
	}
	h.showTicket(w, r, id, "", noticeFrom(r))
}

func (h *Handler) showTicket(w http.ResponseWriter, r *http.Request, id int64, errMsg, notice string) {
	actor := actorFrom(r)
	ticket, comments, err := h.tickets.GetTicket(r.Context(), actor, id)
	if err != nil {
		status := http.StatusOK
		if errors.Is(err, support.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.render(w, r, status, "ticket_detail", view{
			Title: "Chamado", Shell: true, Data: ticketDetailData{},
			Error: userMessage(err, fallbackText(err, "Erro ao carregar chamado")),
		})
		return
	}

	data := ticketDetailData{
		Ticket:     ticket,
		Comments:   comments,
		Staff:      actor.Role == profile.RoleTechnician || actor.Role == profile.RoleAdmin,
		Statuses:   support.Statuses,
		Priorities: support.Priorities,
	}
	h.renderApp(w, r, "ticket_detail", fmt.Sprintf("Chamado #%d", ticket.ID), data, errMsg, notice)
}

// AddComment registra uma interação no chamado.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Redirect(w, r, "/tickets", http.StatusSeeOther)
		return
	}

	internal := r.PostFormValue("internal") == "on"
	if _, err := h.tickets.AddComment(r.Context(), actorFrom(r), id, r.PostFormValue("content"), internal); err != nil {
		h.showTicket(w, r, id, userMessage(err, fallbackText(err, "Erro ao comentar")), "")
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/tickets/%d?ok=comment", id), http.StatusSeeOther)
}

// UpdateTicket altera status, prioridade ou responsável (equipe técnica).
func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Redirect(w, r, "/tickets", http.StatusSeeOther)
		return
	}

	var status, priority, assignee *string
	if v := r.PostFormValue("status"); v != "" {
		status = &v
	}
	if v := r.PostFormValue("priority"); v != "" {
		priority = &v
	}
	unassign := false
	switch v := strings.TrimSpace(r.PostFormValue("assigned_to")); v {
	case "":
	case "-":
		unassign = true
	default:
		assignee = &v
	}

	if _, err := h.tickets.UpdateTicket(r.Context(), actorFrom(r), id, status, priority, assignee, unassign); err != nil {
		h.showTicket(w, r, id, userMessage(err, fallbackText(err, "Erro ao atualizar chamado")), "")
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/tickets/%d?ok=updated", id), http.StatusSeeOther)
}

// Erros de validação locais têm texto próprio; os demais usam o genérico.
func fallbackText(err error, generic string) string {
	switch {
	case errors.Is(err, support.ErrForbidden),
		errors.Is(err, support.ErrInvalidStatus),
		errors.Is(err, support.ErrInvalidPriority),
		errors.Is(err, support.ErrInvalidCategory),
		errors.Is(err, support.ErrNotFound):
		return err.Error()
	}
	if apiMessage(err) == "" && !strings.HasPrefix(err.Error(), "supabase") {
		return err.Error()
	}
	return generic
}
