package dataset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/pkg/config"
	"github.com/saaga0h/energy-twins/pkg/postgres"
)

// Supported dataset sources
const (
	SourceCSV      = "csv"
	SourceYAML     = "yaml"
	SourcePostgres = "postgres"
)

// Loader produces the validated reference records. Every record returned has
// been canonicalized and passes building.Record.Validate.
type Loader interface {
	Load(ctx context.Context) ([]building.Record, error)
}

// New returns the loader selected by cfg. pg is only used by the postgres
// source and may be nil otherwise.
func New(cfg *config.Config, pg postgres.Client, logger *slog.Logger) (Loader, error) {
	switch cfg.DatasetSource {
	case SourceCSV:
		return NewCSVLoader(cfg.DatasetPath, cfg.DatasetSampleSize, logger), nil
	case SourceYAML:
		return NewYAMLLoader(cfg.DatasetPath, cfg.DatasetSampleSize, logger), nil
	case SourcePostgres:
		if pg == nil {
			return nil, fmt.Errorf("postgres dataset source requires a database client")
		}
		return NewPostgresLoader(pg, cfg.DatasetSampleSize, logger), nil
	default:
		return nil, fmt.Errorf("unknown dataset source: %s", cfg.DatasetSource)
	}
}

// prepare canonicalizes and validates one loaded record
func prepare(r *building.Record, where string) error {
	if err := r.Canonicalize(); err != nil {
		return failure.DatasetLoad(where, err)
	}
	if err := r.Validate(); err != nil {
		return failure.DatasetLoad(where, err)
	}
	return nil
}
