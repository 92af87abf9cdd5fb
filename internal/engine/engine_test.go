package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/internal/insight"
	"github.com/saaga0h/energy-twins/internal/query"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func denverHome(id int64, monthly float64) building.Record {
	return building.Record{
		ID:           id,
		City:         "Denver",
		State:        "CO",
		Latitude:     39.7392,
		Longitude:    -104.9903,
		FloorArea:    1800,
		Bedrooms:     3,
		Occupants:    2,
		BuildingType: building.SingleFamilyDetached,
		HeatingFuel:  building.NaturalGas,
		CoolingType:  building.CentralAC,
		ClimateZone:  "5B",
		AnnualKWh:    monthly * 12,
	}
}

// threeHomes differ only in usage: 500, 1000 and 1500 kWh/month
func threeHomes() []building.Record {
	return []building.Record{
		denverHome(1, 500),
		denverHome(2, 1000),
		denverHome(3, 1500),
	}
}

func newTestEngine(t *testing.T, records []building.Record) *Engine {
	t.Helper()
	idx, err := index.Build(records, testLogger())
	require.NoError(t, err)
	e, err := New(idx, DefaultOptions(), nil, testLogger())
	require.NoError(t, err)
	return e
}

func denverQuery() query.Raw {
	return query.Raw{
		"home_size":     1800,
		"bedrooms":      3,
		"occupants":     2,
		"building_type": "Single-Family Detached",
		"heating_fuel":  "Natural Gas",
		"cooling_type":  "Central AC",
		"climate_zone":  "5B",
		"has_solar":     "No",
	}
}

func TestNewRejectsEmptyIndex(t *testing.T) {
	_, err := New(nil, DefaultOptions(), nil, testLogger())
	assert.True(t, errors.Is(err, failure.ErrEmptyDataset))
}

func TestFindTwinsUsesCallerRequestID(t *testing.T) {
	idx, err := index.Build(threeHomes(), testLogger())
	require.NoError(t, err)
	var logs bytes.Buffer
	e, err := New(idx, DefaultOptions(), nil, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	resp := e.FindTwins(WithRequestID(context.Background(), "req-7"), denverQuery())
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "req-7", resp.RequestID)
	assert.Contains(t, logs.String(), "request_id=req-7")

	raw := denverQuery()
	raw["k_value"] = 0
	resp = e.FindTwins(WithRequestID(context.Background(), "req-8"), raw)
	assert.False(t, resp.Success)
	assert.Equal(t, "req-8", resp.RequestID)
	assert.Contains(t, logs.String(), "request_id=req-8")

	other := e.FindTwins(context.Background(), denverQuery())
	assert.NotEqual(t, "req-7", other.RequestID)
	assert.NotEmpty(t, other.RequestID)
}

func TestFindTwinsTypicalScenario(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	raw := denverQuery()
	raw["monthly_usage"] = 1000
	raw["k_value"] = 3

	resp := e.FindTwins(context.Background(), raw)
	require.True(t, resp.Success, resp.Message)
	assert.NotEmpty(t, resp.RequestID)
	assert.Nil(t, resp.Error)

	require.Len(t, resp.Twins, 3)
	assert.Equal(t, int64(2), resp.Twins[0].ID, "exact match ranks first")
	assert.Equal(t, 1.0, resp.Twins[0].Similarity)
	assert.Equal(t, 100.0, resp.Twins[0].SimilarityPercent)

	require.NotNil(t, resp.Insights)
	assert.InDelta(t, 1000.0, resp.Insights.AvgTwinUsage, 1e-9)
	assert.InDelta(t, 500.0, resp.Insights.MinUsage, 1e-9)
	assert.InDelta(t, 1500.0, resp.Insights.MaxUsage, 1e-9)
	assert.Equal(t, insight.ClassTypical, resp.Insights.UsageClass)
	assert.Contains(t, resp.Insights.Recommendation, "typical")
	assert.Equal(t, building.NaturalGas, resp.Insights.CommonHeating)

	require.NotNil(t, resp.UserProfile)
	assert.Equal(t, building.SingleFamilyDetached, resp.UserProfile.BuildingType)
	assert.Equal(t, 3, resp.UserProfile.K)
}

func TestFindTwinsWithoutStatedUsage(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	resp := e.FindTwins(context.Background(), denverQuery())
	require.True(t, resp.Success, resp.Message)

	assert.Len(t, resp.Twins, 3, "default k is larger than the dataset")
	assert.Empty(t, resp.Insights.UsageClass)
	assert.Contains(t, resp.Insights.Recommendation, "expect around")
	for _, tw := range resp.Twins {
		assert.Equal(t, 1.0, tw.Similarity, "usage is ignored when the query states none")
	}
}

func TestFindTwinsInvalidK(t *testing.T) {
	e := newTestEngine(t, threeHomes())
	before := e.Index().Size()
	summaryBefore := e.GlobalSummary()

	for _, k := range []any{0, 51, -3, "ten"} {
		raw := denverQuery()
		raw["k_value"] = k

		resp := e.FindTwins(context.Background(), raw)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error, "k=%v", k)
		assert.Equal(t, failure.KindInvalidQuery, resp.Error.Kind, "k=%v", k)
		assert.Equal(t, query.FieldK, resp.Error.Field)
		assert.Empty(t, resp.Twins)
	}

	assert.Equal(t, before, e.Index().Size())
	assert.Equal(t, summaryBefore, e.GlobalSummary())

	resp := e.FindTwins(context.Background(), denverQuery())
	assert.True(t, resp.Success, "engine still answers after rejected queries")
}

func TestFindTwinsUnknownCategory(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	t.Run("unrecognised value", func(t *testing.T) {
		raw := denverQuery()
		raw["heating_fuel"] = "solar_thermal"

		resp := e.FindTwins(context.Background(), raw)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, failure.KindUnknownCategory, resp.Error.Kind)
		assert.Equal(t, building.FieldHeatingFuel, resp.Error.Field)
		assert.Equal(t, "solar_thermal", resp.Error.Value)
	})

	t.Run("valid value absent from dataset", func(t *testing.T) {
		raw := denverQuery()
		raw["heating_fuel"] = "propane"

		resp := e.FindTwins(context.Background(), raw)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, failure.KindUnknownCategory, resp.Error.Kind)
		assert.Equal(t, building.FieldHeatingFuel, resp.Error.Field)
	})
}

func TestFindTwinsValidationError(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	raw := denverQuery()
	delete(raw, "home_size")

	resp := e.FindTwins(context.Background(), raw)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, failure.KindValidation, resp.Error.Kind)
	assert.Equal(t, query.FieldHomeSize, resp.Error.Field)
}

func TestFindTwinsCancelled(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := e.FindTwins(ctx, denverQuery())
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, failure.KindTimeout, resp.Error.Kind)
}

func TestFindTwinsConcurrent(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	raw := denverQuery()
	raw["monthly_usage"] = 1400
	want := e.FindTwins(context.Background(), raw)
	require.True(t, want.Success)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := e.FindTwins(context.Background(), raw)
			assert.True(t, got.Success)
			assert.Equal(t, want.Twins, got.Twins)
			assert.Equal(t, want.Insights, got.Insights)
		}()
	}
	wg.Wait()
}

func TestMatch(t *testing.T) {
	e := newTestEngine(t, threeHomes())

	spec := query.FromRecord(e.Index().RecordAt(2), 2)
	result, err := e.Match(context.Background(), spec)
	require.NoError(t, err)
	require.Len(t, result.Twins, 2)
	assert.Equal(t, int64(3), result.Twins[0].ID)
	assert.Equal(t, insight.ClassAboveAverage, result.Insights.UsageClass)

	spec.K = 0
	_, err = e.Match(context.Background(), spec)
	assert.True(t, errors.Is(err, failure.ErrInvalidQuery))
	assert.True(t, errors.Is(err, failure.ErrValidation))

	_, err = e.Match(context.Background(), nil)
	assert.Error(t, err)
}

func TestMatchHonoursMaxK(t *testing.T) {
	idx, err := index.Build(threeHomes(), testLogger())
	require.NoError(t, err)
	e, err := New(idx, Options{MaxK: 2, DefaultK: 2, SearchTimeout: time.Second}, nil, testLogger())
	require.NoError(t, err)

	spec := query.FromRecord(idx.RecordAt(0), 3)
	_, err = e.Match(context.Background(), spec)
	assert.Equal(t, failure.KindInvalidQuery, failure.KindOf(err))
}

func TestGlobalSummary(t *testing.T) {
	records := threeHomes()
	boulder := denverHome(4, 1001)
	boulder.City = "Boulder"
	records = append(records, boulder)

	e := newTestEngine(t, records)
	s := e.GlobalSummary()
	assert.Equal(t, 4, s.TotalHomes)
	assert.Equal(t, 2, s.DistinctCities)
	assert.Equal(t, 1000.3, s.AvgMonthlyKWh)
}
