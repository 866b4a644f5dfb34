package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Filter é um predicado de igualdade (coluna = valor).
type Filter struct {
	Column string
	Value  string
}

// Order ordena o resultado por uma coluna.
type Order struct {
	Column    string
	Ascending bool
}

// Query descreve seleção, filtros e ordenação sobre uma tabela.
type Query struct {
	Select  string
	Filters []Filter
	Order   []Order
	Limit   int
}

// Eq adiciona um filtro de igualdade.
func (q Query) Eq(column, value string) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Value: value})
	return q
}

// OrderBy adiciona uma coluna de ordenação.
func (q Query) OrderBy(column string, ascending bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: column, Ascending: ascending})
	return q
}

// Encode monta a query string no formato da API REST.
func (q Query) Encode() string {
	values := url.Values{}
	sel := q.Select
	if sel == "" {
		sel = "*"
	}
	values.Set("select", sel)
	for _, f := range q.Filters {
		values.Add(f.Column, "eq."+f.Value)
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "desc"
			if o.Ascending {
				dir = "asc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		values.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values.Encode()
}

func tablePath(table string, q Query) string {
	return "/rest/v1/" + url.PathEscape(table) + "?" + q.Encode()
}

// Select lê linhas da tabela com o token do usuário e decodifica em dest
// (ponteiro para slice).
func (c *Client) Select(ctx context.Context, accessToken, table string, q Query, dest any) error {
	req, err := c.newRequest(ctx, http.MethodGet, tablePath(table, q), accessToken, nil)
	if err != nil {
		return err
	}
	return c.do(req, "select_"+table, dest)
}

// Insert grava linhas e devolve a representação criada em dest (opcional).
func (c *Client) Insert(ctx context.Context, accessToken, table string, rows any, dest any) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/"+url.PathEscape(table), accessToken, rows)
	if err != nil {
		return err
	}
	if dest != nil {
		req.Header.Set("Prefer", "return=representation")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}
	return c.do(req, "insert_"+table, dest)
}

// Update aplica patch nas linhas que satisfazem os filtros.
func (c *Client) Update(ctx context.Context, accessToken, table string, q Query, patch any) error {
	if len(q.Filters) == 0 {
		return errUnfiltered
	}
	req, err := c.newRequest(ctx, http.MethodPatch, tablePath(table, q), accessToken, patch)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")
	return c.do(req, "update_"+table, nil)
}

// Delete remove as linhas que satisfazem os filtros.
func (c *Client) Delete(ctx context.Context, accessToken, table string, q Query) error {
	if len(q.Filters) == 0 {
		return errUnfiltered
	}
	req, err := c.newRequest(ctx, http.MethodDelete, tablePath(table, q), accessToken, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")
	return c.do(req, "delete_"+table, nil)
}
