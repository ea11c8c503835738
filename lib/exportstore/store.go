// Package exportstore keeps a durable record of every export this process
// has materialized, so operators can see what was pulled when and workflows
// can skip re-downloading something that already ran today.
package exportstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"edexport-backend/lib/exportstore/db"
	"edexport-backend/lib/filestore"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var NotRecorded = fmt.Errorf("no export recorded")

// Open connects to the store. Remote urls (libsql://, https://, wss://) go
// through the libsql driver, anything else is treated as a local sqlite path.
func Open(storageUrl string) (*sql.DB, error) {
	if strings.Contains(storageUrl, "://") {
		return sql.Open("libsql", storageUrl)
	}
	database, err := sql.Open("sqlite", storageUrl)
	if err != nil {
		return nil, err
	}
	_, err = database.Exec(db.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, err
	}
	return database, nil
}

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

type Record struct {
	// Portal is "compass" or "oars".
	Portal string
	Tenant string
	// Kind names the operation, e.g. "learning-tasks", "candidates".
	Kind       string
	File       filestore.File
	ExportedAt time.Time
}

func (s Store) Push(ctx context.Context, rec Record) error {
	return s.qry.CreateExport(ctx, db.CreateExportParams{
		Portal:     rec.Portal,
		Tenant:     rec.Tenant,
		Kind:       rec.Kind,
		Name:       rec.File.Name,
		Path:       rec.File.Path,
		ExportedAt: rec.ExportedAt.Unix(),
	})
}

// Latest returns the newest record for one operation of one tenant,
// NotRecorded when the operation has never run.
func (s Store) Latest(ctx context.Context, portal, tenant, kind string) (Record, error) {
	row, err := s.qry.GetLatestExport(ctx, db.GetLatestExportParams{
		Portal: portal,
		Tenant: tenant,
		Kind:   kind,
	})
	if err == sql.ErrNoRows {
		return Record{}, NotRecorded
	}
	if err != nil {
		return Record{}, err
	}
	return recordFromRow(row), nil
}

func (s Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.qry.GetRecentExports(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = recordFromRow(row)
	}
	return out, nil
}

func recordFromRow(row db.Export) Record {
	return Record{
		Portal: row.Portal,
		Tenant: row.Tenant,
		Kind:   row.Kind,
		File: filestore.File{
			Name: row.Name,
			Path: row.Path,
		},
		ExportedAt: time.Unix(row.ExportedAt, 0),
	}
}
