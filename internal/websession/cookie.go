package websession

import (
	"net/http"
	"time"
)

// CookieName é o cookie que carrega o sid do navegador.
const CookieName = "helpdesk_sid"

// Cookies emite e remove o cookie de sessão.
type Cookies struct {
	Dev bool
	TTL time.Duration
}

// Read devolve o sid presente na requisição, se válido.
func (c Cookies) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || !ValidID(cookie.Value) {
		return "", false
	}
	return cookie.Value, true
}

// Set grava o cookie com o sid.
func (c Cookies) Set(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  time.Now().Add(c.TTL),
		HttpOnly: true,
		Secure:   !c.Dev,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expira o cookie no navegador.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !c.Dev,
		SameSite: http.SameSiteLaxMode,
	})
}
