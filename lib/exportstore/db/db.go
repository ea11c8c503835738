package db

import (
	"context"
	"database/sql"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Queries struct {
	db *sql.DB
}

func New(database *sql.DB) *Queries {
	return &Queries{db: database}
}

type Export struct {
	ID         int64
	Portal     string
	Tenant     string
	Kind       string
	Name       string
	Path       string
	ExportedAt int64
}

type CreateExportParams struct {
	Portal     string
	Tenant     string
	Kind       string
	Name       string
	Path       string
	ExportedAt int64
}

func (q *Queries) CreateExport(ctx context.Context, arg CreateExportParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO exports (portal, tenant, kind, name, path, exported_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		arg.Portal, arg.Tenant, arg.Kind, arg.Name, arg.Path, arg.ExportedAt,
	)
	return err
}

type GetLatestExportParams struct {
	Portal string
	Tenant string
	Kind   string
}

func (q *Queries) GetLatestExport(ctx context.Context, arg GetLatestExportParams) (Export, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, portal, tenant, kind, name, path, exported_at
		FROM exports
		WHERE portal = ? AND tenant = ? AND kind = ?
		ORDER BY exported_at DESC
		LIMIT 1`,
		arg.Portal, arg.Tenant, arg.Kind,
	)
	var out Export
	err := row.Scan(&out.ID, &out.Portal, &out.Tenant, &out.Kind, &out.Name, &out.Path, &out.ExportedAt)
	return out, err
}

func (q *Queries) GetRecentExports(ctx context.Context, limit int64) ([]Export, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, portal, tenant, kind, name, path, exported_at
		FROM exports
		ORDER BY exported_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		var e Export
		err := rows.Scan(&e.ID, &e.Portal, &e.Tenant, &e.Kind, &e.Name, &e.Path, &e.ExportedAt)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
