// Package supabase fala com o serviço remoto de identidade e dados
// (API de autenticação em /auth/v1 e API REST em /rest/v1).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/helpdeskpro/helpdesk/internal/obs"
)

// Client encapsula chamadas HTTP ao backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Config descreve credenciais essenciais para o cliente.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
}

// New cria um novo cliente utilizando a chave pública do projeto.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("supabase: url obrigatória")
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, errors.New("supabase: chave obrigatória")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	return &Client{
		httpClient: client,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:     cfg.AnonKey,
	}, nil
}

// BaseURL devolve a URL raiz do projeto.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, endpoint, token string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executa a requisição e decodifica o corpo em v quando informado.
// Respostas >= 400 viram *APIError.
func (c *Client) do(req *http.Request, op string, v any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		obs.ObserveRemoteCall(op, "transport_error", time.Since(start))
		return fmt.Errorf("supabase %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		obs.ObserveRemoteCall(op, fmt.Sprintf("%dxx", resp.StatusCode/100), time.Since(start))
		return decodeAPIError(resp)
	}
	obs.ObserveRemoteCall(op, "ok", time.Since(start))

	if v == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("supabase %s: %w", op, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("supabase %s: resposta inválida: %w", op, err)
	}
	return nil
}
