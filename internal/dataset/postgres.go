package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/pkg/postgres"
)

// BuildingsTable is the table read by the postgres source
const BuildingsTable = "buildings"

// BuildingsSchema creates the table read by the postgres source
const BuildingsSchema = `
CREATE TABLE IF NOT EXISTS buildings (
	bldg_id       BIGINT PRIMARY KEY,
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	county        TEXT NOT NULL DEFAULT '',
	latitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	floor_area    DOUBLE PRECISION NOT NULL,
	bedrooms      INTEGER NOT NULL,
	occupants     INTEGER NOT NULL,
	building_type TEXT NOT NULL,
	heating_fuel  TEXT NOT NULL,
	cooling_type  TEXT NOT NULL,
	has_solar     BOOLEAN NOT NULL DEFAULT FALSE,
	solar_size_kw DOUBLE PRECISION NOT NULL DEFAULT 0,
	climate_zone  TEXT NOT NULL,
	annual_kwh    DOUBLE PRECISION NOT NULL
)`

// PostgresLoader reads buildings from the buildings table
type PostgresLoader struct {
	client postgres.Client
	limit  int
	logger *slog.Logger
}

// NewPostgresLoader creates a loader over a connected client
func NewPostgresLoader(client postgres.Client, limit int, logger *slog.Logger) *PostgresLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLoader{client: client, limit: limit, logger: logger}
}

// selectQuery returns the load query. Rows come back in bldg_id order so the
// index layout is stable across restarts.
func (l *PostgresLoader) selectQuery() string {
	q := `SELECT bldg_id, city, state, county, latitude, longitude,
		floor_area, bedrooms, occupants, building_type, heating_fuel,
		cooling_type, has_solar, solar_size_kw, climate_zone, annual_kwh
		FROM ` + BuildingsTable + ` ORDER BY bldg_id`
	if l.limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", l.limit)
	}
	return q
}

// Load reads every row
func (l *PostgresLoader) Load(ctx context.Context) ([]building.Record, error) {
	start := time.Now()
	l.logger.Info("Loading dataset", "source", SourcePostgres, "table", BuildingsTable)

	rows, err := l.client.Query(ctx, l.selectQuery())
	if err != nil {
		return nil, failure.DatasetLoad("failed to query buildings", err)
	}
	defer rows.Close()

	records, err := scanBuildings(rows)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Dataset loaded",
		"source", SourcePostgres,
		"buildings", len(records),
		"duration_ms", time.Since(start).Milliseconds())
	return records, nil
}

func scanBuildings(rows *sql.Rows) ([]building.Record, error) {
	var records []building.Record
	for rows.Next() {
		var r building.Record
		if err := rows.Scan(
			&r.ID, &r.City, &r.State, &r.County, &r.Latitude, &r.Longitude,
			&r.FloorArea, &r.Bedrooms, &r.Occupants, &r.BuildingType, &r.HeatingFuel,
			&r.CoolingType, &r.HasSolar, &r.SolarSizeKW, &r.ClimateZone, &r.AnnualKWh,
		); err != nil {
			return nil, failure.DatasetLoad("failed to scan building row", err)
		}
		if err := prepare(&r, fmt.Sprintf("bldg_id %d", r.ID)); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.DatasetLoad("failed to read buildings", err)
	}
	if len(records) == 0 {
		return nil, failure.EmptyDataset()
	}
	return records, nil
}
