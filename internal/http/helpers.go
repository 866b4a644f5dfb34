package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helpdeskpro/helpdesk/internal/supabase"
	"github.com/helpdeskpro/helpdesk/internal/timing"
)

// apiMessage devolve apenas textos vindos do backend; falhas de transporte
// não vazam para a tela.
func apiMessage(err error) string {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return ""
}

// userMessage escolhe o texto exibido para falhas remotas.
func userMessage(err error, fallback string) string {
	if errors.Is(err, timing.ErrTimeout) {
		return "A operação demorou muito para responder. Tente novamente."
	}
	if msg := apiMessage(err); msg != "" {
		return msg
	}
	return fallback
}

func refreshAfter(d time.Duration, to string) string {
	return fmt.Sprintf("%d;url=%s", int(d.Round(time.Second).Seconds()), to)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

var notices = map[string]string{
	"created":       "Chamado criado com sucesso!",
	"comment":       "Comentário adicionado.",
	"updated":       "Chamado atualizado.",
	"user_created":  "Usuário criado com sucesso!",
	"user_renamed":  "Nome atualizado com sucesso!",
	"role_changed":  "Função atualizada com sucesso!",
	"reset_sent":    "Email de recuperação enviado.",
	"group_created": "Grupo criado com sucesso!",
	"group_updated": "Grupo atualizado com sucesso!",
	"group_deleted": "Grupo excluído com sucesso!",
	"queue_created": "Fila criada com sucesso!",
	"queue_updated": "Fila atualizada com sucesso!",
	"queue_deleted": "Fila excluída com sucesso!",
}

// noticeFrom traduz o código de confirmação enviado após um redirecionamento.
func noticeFrom(r *http.Request) string {
	return notices[r.URL.Query().Get("ok")]
}
