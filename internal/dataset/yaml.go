package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
)

// fixtureFile is the YAML document layout:
//
//	buildings:
//	  - id: 1
//	    home_size: 1800
//	    ...
type fixtureFile struct {
	Buildings []building.Record `yaml:"buildings"`
}

// YAMLLoader reads buildings from a YAML fixture file
type YAMLLoader struct {
	path   string
	limit  int
	logger *slog.Logger
}

// NewYAMLLoader creates a loader for path
func NewYAMLLoader(path string, limit int, logger *slog.Logger) *YAMLLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &YAMLLoader{path: path, limit: limit, logger: logger}
}

// Load opens and parses the fixture file
func (l *YAMLLoader) Load(ctx context.Context) ([]building.Record, error) {
	l.logger.Info("Loading dataset", "source", SourceYAML, "path", l.path)

	f, err := os.Open(l.path)
	if err != nil {
		return nil, failure.DatasetLoad("cannot open "+l.path, err)
	}
	defer f.Close()

	records, err := ParseYAML(f, l.limit)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Dataset loaded", "source", SourceYAML, "buildings", len(records))
	return records, nil
}

// ParseYAML decodes a fixture document
func ParseYAML(r io.Reader, limit int) ([]building.Record, error) {
	var doc fixtureFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, failure.EmptyDataset()
		}
		return nil, failure.DatasetLoad("invalid YAML", err)
	}

	records := doc.Buildings
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if len(records) == 0 {
		return nil, failure.EmptyDataset()
	}
	for i := range records {
		if err := prepare(&records[i], fmt.Sprintf("building #%d", i+1)); err != nil {
			return nil, err
		}
	}
	return records, nil
}
