package recovery

import (
	"fmt"
	"net/url"
	"strings"
)

// Fragment são os parâmetros entregues no fragmento (#...) do link de recuperação.
type Fragment struct {
	AccessToken      string
	RefreshToken     string
	Type             string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// ParseFragment interpreta o fragmento bruto, com ou sem o '#' inicial.
// Fragmentos ilegíveis resultam em Fragment vazio.
func ParseFragment(raw string) Fragment {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if raw == "" {
		return Fragment{}
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Fragment{}
	}
	return Fragment{
		AccessToken:      values.Get("access_token"),
		RefreshToken:     values.Get("refresh_token"),
		Type:             values.Get("type"),
		Error:            values.Get("error"),
		ErrorCode:        values.Get("error_code"),
		ErrorDescription: values.Get("error_description"),
	}
}

// IsRecovery informa se o fragmento traz tokens de recuperação.
func (f Fragment) IsRecovery() bool {
	return f.Type == "recovery" && f.AccessToken != ""
}

// Empty informa se nenhum parâmetro foi recebido.
func (f Fragment) Empty() bool {
	return f == Fragment{}
}

// Err devolve o erro reportado pelo serviço no próprio link, se houver.
func (f Fragment) Err() error {
	if f.Error == "" && f.ErrorCode == "" {
		return nil
	}
	return &LinkError{Code: firstNonEmpty(f.ErrorCode, f.Error), Description: f.ErrorDescription}
}

// Encode reconstrói o fragmento para reenvio em formulários.
func (f Fragment) Encode() string {
	values := url.Values{}
	set := func(k, v string) {
		if v != "" {
			values.Set(k, v)
		}
	}
	set("access_token", f.AccessToken)
	set("refresh_token", f.RefreshToken)
	set("type", f.Type)
	set("error", f.Error)
	set("error_code", f.ErrorCode)
	set("error_description", f.ErrorDescription)
	return values.Encode()
}

// LinkError é o erro recebido no fragmento do link.
type LinkError struct {
	Code        string
	Description string
}

func (e *LinkError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("link de recuperação recusado: %s (%s)", e.Description, e.Code)
	}
	return fmt.Sprintf("link de recuperação recusado: %s", e.Code)
}

// Unwrap permite errors.Is(err, ErrInvalidLink).
func (e *LinkError) Unwrap() error {
	return ErrInvalidLink
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
