package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrInvalidCredentials indica email ou senha incorretos.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrSamePassword indica que a nova senha é igual à anterior.
	ErrSamePassword = errors.New("a nova senha deve ser diferente da anterior")
	// ErrSessionInvalid indica token expirado, revogado ou link inválido.
	ErrSessionInvalid = errors.New("sessão inválida ou expirada")
	// ErrNotFound é retornado quando nenhum registro é encontrado.
	ErrNotFound = errors.New("registro não encontrado")

	errUnfiltered = errors.New("supabase: alteração sem filtro recusada")
)

// APIError representa uma resposta de erro do backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("supabase: %s (%d)", e.Message, e.Status)
}

// Is permite comparar com os erros sentinela do pacote.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Code == "invalid_credentials" || (e.Code == "invalid_grant" && strings.Contains(strings.ToLower(e.Message), "credentials"))
	case ErrSamePassword:
		return e.Code == "same_password" || strings.Contains(strings.ToLower(e.Message), "different from the old password")
	case ErrSessionInvalid:
		switch e.Code {
		case "bad_jwt", "session_not_found", "session_expired", "refresh_token_not_found",
			"refresh_token_already_used", "otp_expired", "invalid_grant", "user_not_found":
			return true
		}
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Temporary indica falha transitória (5xx ou limite de requisições).
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// IsTransient classifica erros que merecem nova tentativa: falhas de
// transporte e respostas 5xx/429. Rejeições definitivas não se repetem.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// Message devolve o texto do backend quando disponível.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = firstNonEmpty(body.ErrorCode, codeString(body.Code), body.Error)
		apiErr.Message = firstNonEmpty(body.Msg, body.Message, body.ErrorDescription, body.Error)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// codeString aceita "code" numérico (auth) ou textual (rest).
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
