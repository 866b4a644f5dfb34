package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Severity classifica o alerta.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityCritical Severity = "critical"
)

func (s Severity) emoji() string {
	if s == SeverityCritical {
		return ":rotating_light:"
	}
	return ":white_check_mark:"
}

// Notifier entrega alertas de mudança de estado do backend.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// AlertMessage é o conteúdo de um alerta.
type AlertMessage struct {
	Title    string
	Text     string
	Severity Severity
}

// String formata o alerta no markdown do Slack.
func (m AlertMessage) String() string {
	var b strings.Builder
	b.WriteString(m.Severity.emoji())
	if m.Title != "" {
		b.WriteString(" *" + m.Title + "*\n")
	} else {
		b.WriteString(" ")
	}
	b.WriteString(m.Text)
	return b.String()
}

// slackWebhook publica alertas em um incoming webhook do Slack.
type slackWebhook struct {
	url    string
	client *http.Client
}

// NewSlackNotifier devolve nil quando não há webhook configurado.
func NewSlackNotifier(webhookURL string) Notifier {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil
	}
	return &slackWebhook{url: webhookURL, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *slackWebhook) Notify(ctx context.Context, msg AlertMessage) error {
	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: msg.String()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack respondeu %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
