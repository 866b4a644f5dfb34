// Package profile resolve o perfil de aplicação (papel e nome) de um usuário autenticado.
package profile

import (
	"errors"
	"strings"
	"time"
)

// Role define o papel do usuário no helpdesk.
type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

// ErrInvalidRole indica papel fora dos valores conhecidos.
var ErrInvalidRole = errors.New("papel inválido")

// Roles lista os papéis na ordem de exibição.
var Roles = []Role{RoleClient, RoleTechnician, RoleAdmin}

var roleLabels = map[Role]string{
	RoleClient:     "Usuário",
	RoleTechnician: "Técnico",
	RoleAdmin:      "Admin",
}

// ParseRole normaliza e valida o papel.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Valid informa se o papel é um dos três conhecidos.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label devolve o rótulo exibido na interface.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

// Profile é a linha da tabela profiles.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Role      Role       `json:"role"`
	UnitID    *string    `json:"unit_id,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// HasRole informa se o perfil possui algum dos papéis.
func (p *Profile) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// DisplayName devolve o nome do perfil, ou o fallback quando vazio.
func (p *Profile) DisplayName(fallback string) string {
	if p != nil && strings.TrimSpace(p.FullName) != "" {
		return p.FullName
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return "Usuário"
}
