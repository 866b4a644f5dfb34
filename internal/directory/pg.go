package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskpro/helpdesk/internal/db"
	"github.com/helpdeskpro/helpdesk/internal/profile"
	"github.com/helpdeskpro/helpdesk/internal/util"
)

// PGRepository acessa as tabelas de administração direto no Postgres.
// Usado pela CLI de operação, fora das regras de acesso por linha.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository cria o repositório.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListQueues devolve as filas ordenadas por cliente e nome.
func (r *PGRepository) ListQueues(ctx context.Context) ([]Queue, error) {
	const query = `
        SELECT id::text, name, client_name, description
        FROM ticket_queues
        ORDER BY client_name, name
    `

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []Queue
	for rows.Next() {
		var q Queue
		if err := rows.Scan(&q.ID, &q.Name, &q.ClientName, &q.Description); err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, rows.Err()
}

// CreateQueue insere uma fila.
func (r *PGRepository) CreateQueue(ctx context.Context, name, client, description string) (*Queue, error) {
	name, client = strings.TrimSpace(name), strings.TrimSpace(client)
	if name == "" || client == "" {
		return nil, ErrQueueIncomplete
	}

	const query = `
        INSERT INTO ticket_queues (id, name, client_name, description)
        VALUES ($1, $2, $3, $4)
        RETURNING id::text, name, client_name, description
    `

	var q Queue
	err := r.pool.QueryRow(ctx, query, util.NewID(), name, client, optional(description)).
		Scan(&q.ID, &q.Name, &q.ClientName, &q.Description)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListGroups devolve os grupos ordenados por nome.
func (r *PGRepository) ListGroups(ctx context.Context) ([]Group, error) {
	const query = `
        SELECT id::text, name, description
        FROM access_groups
        ORDER BY name
    `

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateGroup insere um grupo.
func (r *PGRepository) CreateGroup(ctx context.Context, name, description string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameEmpty
	}

	const query = `
        INSERT INTO access_groups (id, name, description)
        VALUES ($1, $2, $3)
        RETURNING id::text, name, description
    `

	var g Group
	if err := r.pool.QueryRow(ctx, query, util.NewID(), name, optional(description)).Scan(&g.ID, &g.Name, &g.Description); err != nil {
		return nil, err
	}
	return &g, nil
}

// PromoteUser altera a função do perfil com o email informado.
func (r *PGRepository) PromoteUser(ctx context.Context, email, rawRole string) (*profile.Profile, error) {
	role, err := profile.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if err := util.ValidateEmail(email); err != nil {
		return nil, err
	}

	var p profile.Profile
	err = db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		const lock = `
            SELECT id::text, email, COALESCE(full_name, ''), created_at
            FROM profiles
            WHERE lower(email) = lower($1)
            FOR UPDATE
        `
		if err := tx.QueryRow(ctx, lock, email).Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`, p.ID, string(role)); err != nil {
			return err
		}
		p.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
