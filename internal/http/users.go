package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/authstate"
	"github.com/helpdeskpro/helpdesk/internal/directory"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/util"
)

const (
	tabUsers  = "users"
	tabGroups = "groups"
	tabQueues = "queues"
)

type usersData struct {
	Tab    string
	Search string
	Roles  []profile.Role
	Screen *directory.Screen
}

func adminToken(r *http.Request) string {
	return authstate.StateFromContext(r.Context()).AccessToken()
}

func tabOf(raw string) string {
	switch raw {
	case tabGroups, tabQueues:
		return raw
	}
	return tabUsers
}

// UsersPage exibe usuários, grupos e filas.
func (h *Handler) UsersPage(w http.ResponseWriter, r *http.Request) {
	h.showUsers(w, r, http.StatusOK, tabOf(r.URL.Query().Get("tab")), "", noticeFrom(r))
}

func (h *Handler) showUsers(w http.ResponseWriter, r *http.Request, status int, tab, errMsg, notice string) {
	data := usersData{
		Tab:    tab,
		Search: r.URL.Query().Get("q"),
		Roles:  profile.Roles,
	}

	screen, err := h.directory.Load(r.Context(), adminToken(r), data.Search)
	if err != nil {
		log.Error().Err(err).Msg("falha ao carregar administração")
		if errMsg == "" {
			errMsg = userMessage(err, "Erro ao carregar usuários")
		}
		screen = &directory.Screen{}
	}
	data.Screen = screen

	h.render(w, r, status, "users", view{Title: "Usuários", Shell: true, Data: data, Error: errMsg, Notice: notice})
}

// usersDone volta à aba com a confirmação ou mostra o erro inline.
func (h *Handler) usersDone(w http.ResponseWriter, r *http.Request, tab, ok string, err error, fallback string) {
	if err != nil {
		log.Warn().Err(err).Str("tab", tab).Msg("ação administrativa falhou")
		h.showUsers(w, r, http.StatusUnprocessableEntity, tab, adminMessage(err, fallback), "")
		return
	}
	q := url.Values{"tab": {tab}, "ok": {ok}}
	http.Redirect(w, r, "/users?"+q.Encode(), http.StatusSeeOther)
}

func adminMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, directory.ErrMissingFields),
		errors.Is(err, directory.ErrGroupNameEmpty),
		errors.Is(err, directory.ErrQueueIncomplete),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, profile.ErrInvalidRole),
		errors.Is(err, util.ErrPasswordTooShort):
		return err.Error()
	}
	return userMessage(err, fallback)
}

// CreateUser cadastra um usuário com a função escolhida.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	input := directory.NewUser{
		Email:    r.PostFormValue("email"),
		FullName: r.PostFormValue("full_name"),
		Password: r.PostFormValue("password"),
		Role:     profile.Role(r.PostFormValue("role")),
	}
	err := h.directory.CreateUser(r.Context(), adminToken(r), input)
	h.usersDone(w, r, tabUsers, "user_created", err, "Erro ao criar usuário")
}

// RenameUser altera o nome exibido.
func (h *Handler) RenameUser(w http.ResponseWriter, r *http.Request) {
	err := h.directory.Rename(r.Context(), adminToken(r), chi.URLParam(r, "id"), r.PostFormValue("full_name"))
	h.usersDone(w, r, tabUsers, "user_renamed", err, "Erro ao atualizar nome do usuário")
}

// ChangeRole altera a função do usuário.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	err := h.directory.ChangeRole(r.Context(), adminToken(r), chi.URLParam(r, "id"), r.PostFormValue("role"))
	h.usersDone(w, r, tabUsers, "role_changed", err, "Erro ao atualizar função do usuário")
}

// SendReset envia o email de recuperação ao usuário.
func (h *Handler) SendReset(w http.ResponseWriter, r *http.Request) {
	err := h.directory.SendReset(r.Context(), r.PostFormValue("email"))
	h.usersDone(w, r, tabUsers, "reset_sent", err, "Erro ao enviar email de recuperação")
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	err := h.directory.CreateGroup(r.Context(), adminToken(r), r.PostFormValue("name"), r.PostFormValue("description"))
	h.usersDone(w, r, tabGroups, "group_created", err, "Erro ao criar grupo")
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	err := h.directory.UpdateGroup(r.Context(), adminToken(r), chi.URLParam(r, "id"), r.PostFormValue("name"), r.PostFormValue("description"))
	h.usersDone(w, r, tabGroups, "group_updated", err, "Erro ao atualizar grupo")
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	err := h.directory.DeleteGroup(r.Context(), adminToken(r), chi.URLParam(r, "id"))
	h.usersDone(w, r, tabGroups, "group_deleted", err, "Erro ao excluir grupo")
}

func (h *Handler) CreateQueue(w http.ResponseWriter, r *http.Request) {
	err := h.directory.CreateQueue(r.Context(), adminToken(r), r.PostFormValue("name"), r.PostFormValue("client_name"), r.PostFormValue("description"))
	h.usersDone(w, r, tabQueues, "queue_created", err, "Erro ao criar fila")
}

func (h *Handler) UpdateQueue(w http.ResponseWriter, r *http.Request) {
	err := h.directory.UpdateQueue(r.Context(), adminToken(r), chi.URLParam(r, "id"), r.PostFormValue("name"), r.PostFormValue("client_name"), r.PostFormValue("description"))
	h.usersDone(w, r, tabQueues, "queue_updated", err, "Erro ao atualizar fila")
}

func (h *Handler) DeleteQueue(w http.ResponseWriter, r *http.Request) {
	err := h.directory.DeleteQueue(r.Context(), adminToken(r), chi.URLParam(r, "id"))
	h.usersDone(w, r, tabQueues, "queue_deleted", err, "Erro ao excluir fila")
}
