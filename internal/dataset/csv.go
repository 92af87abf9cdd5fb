package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
)

// ResStock metadata column names
const (
	colID           = "bldg_id"
	colState        = "in.state"
	colCounty       = "in.county_name"
	colCity         = "in.city"
	colWeatherCity  = "in.weather_file_city"
	colLatitude     = "in.weather_file_latitude"
	colLongitude    = "in.weather_file_longitude"
	colFloorArea    = "in.sqft..ft2"
	colFloorAreaAlt = "in.sqft"
	colBedrooms     = "in.bedrooms"
	colOccupants    = "in.occupants"
	colBuildingType = "in.geometry_building_type_acs"
	colHeatingFuel  = "in.heating_fuel"
	colCoolingType  = "in.hvac_cooling_type"
	colHasPV        = "in.has_pv"
	colPVSize       = "in.pv_system_size"
	colClimateZone  = "in.ashrae_iecc_climate_zone_2004"

	electricityPrefix = "out.electricity.total.energy_consumption"
)

// CSVLoader reads a ResStock metadata export
type CSVLoader struct {
	path   string
	limit  int
	logger *slog.Logger
}

// NewCSVLoader creates a loader for path. A positive limit keeps only the
// first limit buildings.
func NewCSVLoader(path string, limit int, logger *slog.Logger) *CSVLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVLoader{path: path, limit: limit, logger: logger}
}

// Load opens and parses the file
func (l *CSVLoader) Load(ctx context.Context) ([]building.Record, error) {
	start := time.Now()
	l.logger.Info("Loading dataset", "source", SourceCSV, "path", l.path)

	f, err := os.Open(l.path)
	if err != nil {
		return nil, failure.DatasetLoad("cannot open "+l.path, err)
	}
	defer f.Close()

	records, err := ParseCSV(ctx, f, l.limit)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Dataset loaded",
		"source", SourceCSV,
		"buildings", len(records),
		"duration_ms", time.Since(start).Milliseconds())
	return records, nil
}

// columns maps required and optional fields to their CSV positions
type columns struct {
	index map[string]int
	usage string
}

func newColumns(header []string) (*columns, error) {
	c := &columns{index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		c.index[h] = i
		if c.usage == "" && strings.HasPrefix(h, electricityPrefix) && !strings.Contains(h, "intensity") {
			c.usage = h
		}
	}

	if _, ok := c.index[colFloorArea]; !ok {
		if _, alt := c.index[colFloorAreaAlt]; alt {
			c.index[colFloorArea] = c.index[colFloorAreaAlt]
		}
	}

	var missing []string
	for _, col := range []string{colID, colFloorArea, colBedrooms, colOccupants,
		colBuildingType, colHeatingFuel, colCoolingType, colClimateZone} {
		if _, ok := c.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if c.usage == "" {
		missing = append(missing, electricityPrefix+"..kwh")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return c, nil
}

func (c *columns) get(row []string, col string) string {
	i, ok := c.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseCSV decodes ResStock rows from r. Any row with a missing or invalid
// required field fails the whole load.
func ParseCSV(ctx context.Context, r io.Reader, limit int) ([]building.Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, failure.EmptyDataset()
	}
	if err != nil {
		return nil, failure.DatasetLoad("cannot read header", err)
	}
	cols, err := newColumns(header)
	if err != nil {
		return nil, failure.DatasetLoad("invalid header", err)
	}

	var records []building.Record
	for line := 2; limit <= 0 || len(records) < limit; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, failure.DatasetLoad("load cancelled", err)
			}
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, failure.DatasetLoad(fmt.Sprintf("line %d", line), err)
		}

		rec, err := cols.record(row)
		if err != nil {
			return nil, failure.DatasetLoad(fmt.Sprintf("line %d", line), err)
		}
		if err := prepare(&rec, fmt.Sprintf("line %d", line)); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, failure.EmptyDataset()
	}
	return records, nil
}

func (c *columns) record(row []string) (building.Record, error) {
	var r building.Record
	var err error

	if r.ID, err = strconv.ParseInt(c.get(row, colID), 10, 64); err != nil {
		return r, fmt.Errorf("invalid %s: %w", colID, err)
	}
	if r.FloorArea, err = parseFloat(c.get(row, colFloorArea)); err != nil {
		return r, fmt.Errorf("invalid %s: %w", colFloorArea, err)
	}
	if r.Bedrooms, err = parseCount(c.get(row, colBedrooms)); err != nil {
		return r, fmt.Errorf("invalid %s: %w", colBedrooms, err)
	}
	if r.Occupants, err = parseCount(c.get(row, colOccupants)); err != nil {
		return r, fmt.Errorf("invalid %s: %w", colOccupants, err)
	}
	if r.AnnualKWh, err = parseFloat(c.get(row, c.usage)); err != nil {
		return r, fmt.Errorf("invalid %s: %w", c.usage, err)
	}

	r.BuildingType = c.get(row, colBuildingType)
	r.HeatingFuel = c.get(row, colHeatingFuel)
	r.CoolingType = c.get(row, colCoolingType)
	r.ClimateZone = c.get(row, colClimateZone)

	r.State = c.get(row, colState)
	r.County = c.get(row, colCounty)
	r.City = c.get(row, colWeatherCity)
	if r.City == "" {
		r.City = c.get(row, colCity)
	}
	if isPlaceholderCity(r.City) {
		r.City = ""
	}
	// Coordinates are optional; unparseable values leave the zero point.
	r.Latitude, _ = parseFloat(c.get(row, colLatitude))
	r.Longitude, _ = parseFloat(c.get(row, colLongitude))

	r.HasSolar = strings.EqualFold(c.get(row, colHasPV), "yes")
	if size := c.get(row, colPVSize); size != "" && !strings.EqualFold(size, "none") {
		if r.SolarSizeKW, err = parseFloat(strings.TrimSuffix(size, " kWDC")); err != nil {
			return r, fmt.Errorf("invalid %s: %w", colPVSize, err)
		}
	}

	return r, nil
}

// isPlaceholderCity reports the ResStock labels used for buildings outside a
// named census place
func isPlaceholderCity(city string) bool {
	c := strings.ToLower(city)
	return strings.Contains(c, "another census") || strings.Contains(c, "not in a census")
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

// parseCount accepts integer counts with an optional "+" suffix ("10+")
func parseCount(s string) (int, error) {
	f, err := parseFloat(strings.TrimSuffix(s, "+"))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
