package repository

import (
	"context"
	"fmt"

	"github.com/okian/herdwatch/pkg/logger"
)

// Open builds the stores selected by s.Driver.
func Open(ctx context.Context, s Settings) (*Stores, error) {
	log := logger.Get().Named("repository")

	switch s.Driver {
	case "", "memory":
		ents := NewMemoryEntityStore()
		fences := NewMemoryFenceStore()
		ents.now, fences.now = s.now, s.now
		log.Info(ctx, "using in-memory store")
		return &Stores{Entities: ents, Fences: fences, Driver: "memory"}, nil

	case "sqlite":
		db, err := OpenSQLite(ctx, s.SQLitePath)
		if err != nil {
			return nil, err
		}
		ents := NewSQLiteEntityStore(db)
		fences := NewSQLiteFenceStore(db)
		ents.now, fences.now = s.now, s.now
		log.Info(ctx, "using sqlite store", logger.String("path", s.SQLitePath))
		return &Stores{Entities: ents, Fences: fences, Driver: "sqlite", closer: db.Close}, nil

	case "postgres":
		db, err := OpenPostgres(ctx, s.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres sql.DB: %w", err)
		}
		ents := NewPostgresEntityStore(db)
		fences := NewPostgresFenceStore(db)
		ents.now, fences.now = s.now, s.now
		log.Info(ctx, "using postgres store")
		return &Stores{Entities: ents, Fences: fences, Driver: "postgres", closer: sqlDB.Close}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.Driver)
	}
}
