package index

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/encoder"
	"github.com/saaga0h/energy-twins/internal/failure"
)

// Summary holds dataset-wide statistics computed once at build time
type Summary struct {
	TotalHomes     int     `json:"total_homes"`
	AvgMonthlyKWh  float64 `json:"avg_energy"`
	DistinctCities int     `json:"cities"`
}

// Index is the encoded reference set. Row i of the matrix and records[i]
// describe the same building. An Index is read-only after Build and may be
// shared between goroutines without locking.
type Index struct {
	params  *encoder.Params
	matrix  *mat.Dense
	records []building.Record
	byID    map[int64]int
	summary Summary
	print   string
}

// Build fits the encoder on records and encodes every record. The records
// slice is copied; later changes by the caller do not affect the index.
func Build(records []building.Record, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(records) == 0 {
		return nil, failure.EmptyDataset()
	}

	start := time.Now()

	owned := make([]building.Record, len(records))
	copy(owned, records)

	byID := make(map[int64]int, len(owned))
	for i := range owned {
		if err := owned[i].Validate(); err != nil {
			return nil, failure.DatasetLoad(fmt.Sprintf("row %d", i), err)
		}
		if prev, dup := byID[owned[i].ID]; dup {
			return nil, failure.DatasetLoad(
				fmt.Sprintf("duplicate building id %d at rows %d and %d", owned[i].ID, prev, i), nil)
		}
		byID[owned[i].ID] = i
	}

	params, err := encoder.Fit(owned)
	if err != nil {
		return nil, fmt.Errorf("failed to fit encoder: %w", err)
	}

	matrix := mat.NewDense(len(owned), encoder.Dims, nil)
	for i := range owned {
		v, err := params.Encode(&owned[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode building %d: %w", owned[i].ID, err)
		}
		matrix.SetRow(i, v)
	}

	idx := &Index{
		params:  params,
		matrix:  matrix,
		records: owned,
		byID:    byID,
		summary: summarize(owned),
		print:   fingerprint(owned),
	}

	logger.Info("Reference index built",
		"buildings", len(owned),
		"dims", encoder.Dims,
		"cities", idx.summary.DistinctCities,
		"avg_monthly_kwh", idx.summary.AvgMonthlyKWh,
		"fingerprint", idx.print,
		"duration_ms", time.Since(start).Milliseconds())

	return idx, nil
}

// Size returns the number of reference buildings
func (x *Index) Size() int {
	if x == nil {
		return 0
	}
	return len(x.records)
}

// VectorAt returns a copy of the encoded vector at position i
func (x *Index) VectorAt(i int) encoder.Vector {
	return encoder.Vector(mat.Row(nil, i, x.matrix))
}

// RowView returns the encoded vector at position i without copying. Callers
// must not modify the returned slice.
func (x *Index) RowView(i int) []float64 {
	return x.matrix.RawRowView(i)
}

// RecordAt returns the record at position i
func (x *Index) RecordAt(i int) *building.Record {
	return &x.records[i]
}

// Lookup returns the position of a building by its ID
func (x *Index) Lookup(id int64) (int, bool) {
	i, ok := x.byID[id]
	return i, ok
}

// Params returns the frozen encoding parameters
func (x *Index) Params() *encoder.Params {
	return x.params
}

// Summary returns the dataset-wide statistics
func (x *Index) Summary() Summary {
	return x.summary
}

// Fingerprint identifies the loaded dataset. It covers every record field, so
// any change to a stored or encoded value yields a new fingerprint.
func (x *Index) Fingerprint() string {
	return x.print
}

func fingerprint(records []building.Record) string {
	h := fnv.New64a()
	var buf [8]byte
	putUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putFloat := func(v float64) { putUint(math.Float64bits(v)) }
	putString := func(s string) {
		putUint(uint64(len(s)))
		h.Write([]byte(s))
	}

	for i := range records {
		r := &records[i]
		putUint(uint64(r.ID))
		putString(r.City)
		putString(r.State)
		putString(r.County)
		putString(r.Location)
		putFloat(r.Latitude)
		putFloat(r.Longitude)
		putFloat(r.FloorArea)
		putUint(uint64(r.Bedrooms))
		putUint(uint64(r.Occupants))
		putString(r.BuildingType)
		putString(r.HeatingFuel)
		putString(r.CoolingType)
		if r.HasSolar {
			putUint(1)
		} else {
			putUint(0)
		}
		putFloat(r.SolarSizeKW)
		putString(r.ClimateZone)
		putFloat(r.AnnualKWh)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func summarize(records []building.Record) Summary {
	var total float64
	cities := make(map[string]struct{})
	for i := range records {
		total += records[i].MonthlyKWh()
		cities[records[i].DisplayLocation()] = struct{}{}
	}
	return Summary{
		TotalHomes:     len(records),
		AvgMonthlyKWh:  total / float64(len(records)),
		DistinctCities: len(cities),
	}
}
