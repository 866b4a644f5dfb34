// Package directory administra usuários, grupos de acesso e filas de
// atendimento. Reservado a administradores.
package directory

import (
	"errors"
	"sort"
	"strings"

	"github.com/helpdeskpro/helpdesk/internal/profile"
)

const (
	profilesTable = "profiles"
	groupsTable   = "access_groups"
	queuesTable   = "ticket_queues"
)

var (
	ErrMissingFields   = errors.New("Preencha todos os campos obrigatórios")
	ErrGroupNameEmpty  = errors.New("Digite o nome do grupo")
	ErrQueueIncomplete = errors.New("Preencha o nome da fila e o cliente")
	ErrNotFound        = errors.New("registro não encontrado")
)

// Group é um grupo de acesso.
type Group struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Queue é uma fila de atendimento vinculada a um cliente.
type Queue struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ClientName  string  `json:"client_name"`
	Description *string `json:"description"`
}

// ClientQueues agrupa as filas de um mesmo cliente.
type ClientQueues struct {
	Client string
	Queues []Queue
}

// Counters resume usuários por função.
type Counters struct {
	Total       int
	Admins      int
	Technicians int
	Clients     int
}

// NewUser descreve o cadastro feito pelo administrador.
type NewUser struct {
	Email    string
	FullName string
	Password string
	Role     profile.Role
}

// Screen reúne os dados da tela de administração.
type Screen struct {
	Users    []profile.Profile
	Counters Counters
	Groups   []Group
	Queues   []ClientQueues
}

// Count conta usuários por função.
func Count(users []profile.Profile) Counters {
	c := Counters{Total: len(users)}
	for _, u := range users {
		switch u.Role {
		case profile.RoleAdmin:
			c.Admins++
		case profile.RoleTechnician:
			c.Technicians++
		case profile.RoleClient:
			c.Clients++
		}
	}
	return c
}

// FilterUsers busca por nome ou email, sem diferenciar maiúsculas.
func FilterUsers(users []profile.Profile, term string) []profile.Profile {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return users
	}
	out := make([]profile.Profile, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.FullName), term) || strings.Contains(strings.ToLower(u.Email), term) {
			out = append(out, u)
		}
	}
	return out
}

// GroupByClient agrupa filas por cliente preservando a ordem recebida.
func GroupByClient(queues []Queue) []ClientQueues {
	index := map[string]int{}
	var out []ClientQueues
	for _, q := range queues {
		i, ok := index[q.ClientName]
		if !ok {
			i = len(out)
			index[q.ClientName] = i
			out = append(out, ClientQueues{Client: q.ClientName})
		}
		out[i].Queues = append(out[i].Queues, q)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Client < out[b].Client })
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
