package index

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/encoder"
	"github.com/saaga0h/energy-twins/internal/failure"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func home(id int64, city string, sqft, monthly float64) building.Record {
	return building.Record{
		ID:           id,
		City:         city,
		State:        "CO",
		FloorArea:    sqft,
		Bedrooms:     3,
		Occupants:    2,
		BuildingType: building.SingleFamilyDetached,
		HeatingFuel:  building.NaturalGas,
		CoolingType:  building.CentralAC,
		ClimateZone:  "5B",
		AnnualKWh:    monthly * 12,
	}
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(nil, testLogger())
	assert.True(t, errors.Is(err, failure.ErrEmptyDataset))

	var idx *Index
	assert.Equal(t, 0, idx.Size(), "nil index has no buildings")
}

func TestBuildRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name    string
		records []building.Record
	}{
		{
			name:    "duplicate id",
			records: []building.Record{home(1, "Denver", 1500, 800), home(1, "Boulder", 1700, 900)},
		},
		{
			name: "non-canonical category",
			records: func() []building.Record {
				r := home(1, "Denver", 1500, 800)
				r.HeatingFuel = "Natural Gas"
				return []building.Record{r}
			}(),
		},
		{
			name:    "zero floor area",
			records: []building.Record{home(1, "Denver", 0, 800)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.records, testLogger())
			require.Error(t, err)
			assert.True(t, errors.Is(err, failure.ErrDatasetLoad))
		})
	}
}

func TestBuildParallelArrays(t *testing.T) {
	records := []building.Record{
		home(10, "Denver", 1500, 800),
		home(20, "Boulder", 2100, 1100),
		home(30, "Denver", 900, 600),
	}
	idx, err := Build(records, testLogger())
	require.NoError(t, err)
	require.Equal(t, 3, idx.Size())

	for i := 0; i < idx.Size(); i++ {
		rec := idx.RecordAt(i)
		assert.Equal(t, records[i].ID, rec.ID)

		want, err := idx.Params().Encode(rec)
		require.NoError(t, err)
		assert.Equal(t, want, idx.VectorAt(i))
		assert.Equal(t, []float64(want), idx.RowView(i))

		pos, ok := idx.Lookup(rec.ID)
		assert.True(t, ok)
		assert.Equal(t, i, pos)
	}

	_, ok := idx.Lookup(99)
	assert.False(t, ok)
}

func TestIndexIsIsolatedFromCaller(t *testing.T) {
	records := []building.Record{home(1, "Denver", 1500, 800), home(2, "Boulder", 2000, 1000)}
	idx, err := Build(records, testLogger())
	require.NoError(t, err)

	records[0].FloorArea = 99999
	assert.Equal(t, 1500.0, idx.RecordAt(0).FloorArea)

	v := idx.VectorAt(0)
	v[encoder.DimFloorArea] = 42
	assert.NotEqual(t, 42.0, idx.VectorAt(0)[encoder.DimFloorArea])
}

func TestSummary(t *testing.T) {
	records := []building.Record{
		home(1, "Denver", 1500, 800),
		home(2, "Boulder", 2100, 1100),
		home(3, "Denver", 900, 600),
	}
	idx, err := Build(records, testLogger())
	require.NoError(t, err)

	s := idx.Summary()
	assert.Equal(t, 3, s.TotalHomes)
	assert.Equal(t, 2, s.DistinctCities)
	assert.InDelta(t, 833.333, s.AvgMonthlyKWh, 1e-3)
}

func TestFingerprint(t *testing.T) {
	records := []building.Record{home(1, "Denver", 1500, 800), home(2, "Boulder", 2000, 1000)}

	a, err := Build(records, testLogger())
	require.NoError(t, err)
	b, err := Build(records, testLogger())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	records[1].AnnualKWh++
	c, err := Build(records, testLogger())
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFingerprintCoversEveryField(t *testing.T) {
	base := func() []building.Record {
		return []building.Record{home(1, "Denver", 1500, 800), home(2, "Boulder", 2000, 1000)}
	}
	ref, err := Build(base(), testLogger())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *building.Record)
	}{
		{"floor area", func(r *building.Record) { r.FloorArea = 1600 }},
		{"climate zone", func(r *building.Record) { r.ClimateZone = "6A" }},
		{"bedrooms", func(r *building.Record) { r.Bedrooms = 4 }},
		{"occupants", func(r *building.Record) { r.Occupants = 5 }},
		{"building type", func(r *building.Record) { r.BuildingType = building.MobileHome }},
		{"heating fuel", func(r *building.Record) { r.HeatingFuel = building.Propane }},
		{"cooling type", func(r *building.Record) { r.CoolingType = building.NoCooling }},
		{"solar", func(r *building.Record) { r.HasSolar, r.SolarSizeKW = true, 4 }},
		{"city", func(r *building.Record) { r.City = "Aurora" }},
		{"coordinates", func(r *building.Record) { r.Latitude = 39.7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := base()
			tt.mutate(&records[0])

			changed, err := Build(records, testLogger())
			require.NoError(t, err)
			assert.NotEqual(t, ref.Fingerprint(), changed.Fingerprint())
		})
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	a := home(1, "Denver", 1500, 800)
	a.City, a.State = "DenverC", "O"
	b := home(1, "Denver", 1500, 800)
	b.City, b.State = "Denver", "CO"

	x, err := Build([]building.Record{a}, testLogger())
	require.NoError(t, err)
	y, err := Build([]building.Record{b}, testLogger())
	require.NoError(t, err)
	assert.NotEqual(t, x.Fingerprint(), y.Fingerprint())
}
