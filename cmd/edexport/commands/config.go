package commands

import (
	"context"

	"edexport-backend/lib/configutil"
	"edexport-backend/lib/exportstore"
	"edexport-backend/lib/filestore"
	"edexport-backend/lib/serviceutil"
	"edexport-backend/lib/timezone"
)

type CompassConfig struct {
	SchoolCode string `json:"school_code"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type OarsConfig struct {
	School   string `json:"school"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Config struct {
	ExportDir string        `json:"export_dir"`
	Database  string        `json:"database"`
	Compass   CompassConfig `json:"compass"`
	Oars      OarsConfig    `json:"oars"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("edexport.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}
	if cfg.Database == "" {
		cfg.Database = "exports.db"
	}
	return cfg
}

func openStore(cfg Config) (exportstore.Store, func()) {
	database, err := exportstore.Open(cfg.Database)
	if err != nil {
		serviceutil.Fatal("failed to open export database", err)
	}
	return exportstore.NewStore(database), func() { database.Close() }
}

func recordExport(ctx context.Context, store exportstore.Store, portal, tenant, kind string, file filestore.File) {
	err := store.Push(ctx, exportstore.Record{
		Portal:     portal,
		Tenant:     tenant,
		Kind:       kind,
		File:       file,
		ExportedAt: timezone.Now(),
	})
	if err != nil {
		serviceutil.Fatal("failed to record export", err)
	}
}
