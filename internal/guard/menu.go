package guard

import (
	"strings"

	"github.com/helpdeskpro/helpdesk/internal/profile"
)

// MenuItem é uma entrada da barra lateral.
type MenuItem struct {
	Label string
	Href  string
	Icon  string
	Roles []profile.Role
}

// Allows informa se o papel enxerga a entrada.
func (m MenuItem) Allows(role profile.Role) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Active informa se a entrada corresponde ao caminho atual.
func (m MenuItem) Active(path string) bool {
	return strings.HasPrefix(path, m.Href)
}

var allRoles = []profile.Role{profile.RoleClient, profile.RoleTechnician, profile.RoleAdmin}

// Menu lista as entradas da barra lateral na ordem de exibição.
var Menu = []MenuItem{
	{Label: "Dashboard", Href: "/dashboard", Icon: "layout-dashboard", Roles: allRoles},
	{Label: "Chamados", Href: "/tickets", Icon: "ticket", Roles: allRoles},
	{Label: "Unidades", Href: "/units", Icon: "building", Roles: []profile.Role{profile.RoleTechnician, profile.RoleAdmin}},
	{Label: "Usuários", Href: "/users", Icon: "users", Roles: []profile.Role{profile.RoleAdmin}},
	{Label: "Relatórios", Href: "/reports", Icon: "bar-chart", Roles: []profile.Role{profile.RoleTechnician, profile.RoleAdmin}},
}

// VisibleMenu filtra o menu pelo papel do perfil. Sem perfil nada é exibido.
func VisibleMenu(p *profile.Profile) []MenuItem {
	if p == nil || !p.Role.Valid() {
		return nil
	}
	items := make([]MenuItem, 0, len(Menu))
	for _, item := range Menu {
		if item.Allows(p.Role) {
			items = append(items, item)
		}
	}
	return items
}
