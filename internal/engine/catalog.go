package engine

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
	"github.com/saaga0h/energy-twins/pkg/redis"
)

// mapSeed fixes the map sample so every process serves the same points
const mapSeed = 42

// GlobalSummary returns dataset-wide statistics with the average rounded to
// one decimal
func (e *Engine) GlobalSummary() index.Summary {
	s := e.idx.Summary()
	s.AvgMonthlyKWh = math.Round(s.AvgMonthlyKWh*10) / 10
	return s
}

// MapPoint is the lightweight map representation of a building
type MapPoint struct {
	ID           int64   `json:"id"`
	Location     string  `json:"location"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	MonthlyUsage int     `json:"usage"`
	FloorArea    int     `json:"size"`
	BuildingType string  `json:"type"`
	Bedrooms     int     `json:"beds"`
	Occupants    int     `json:"occupants"`
}

// MapSample returns up to n buildings chosen by a fixed-seed shuffle, in
// index order. n <= 0 uses the configured sample size. Samples are memoised
// per size.
func (e *Engine) MapSample(ctx context.Context, n int) ([]MapPoint, error) {
	if n <= 0 {
		n = e.opts.MapSampleSize
	}
	n = min(n, e.idx.Size())

	key := redis.MapSampleKey(e.idx.Fingerprint(), n)
	return e.samples.Get(ctx, key, func(context.Context) ([]MapPoint, error) {
		positions := samplePositions(e.idx.Size(), n, mapSeed)
		points := make([]MapPoint, len(positions))
		for i, pos := range positions {
			points[i] = mapPoint(e.idx.RecordAt(pos))
		}
		return points, nil
	})
}

// samplePositions draws n distinct positions from [0, size) with a partial
// Fisher-Yates shuffle and returns them sorted
func samplePositions(size, n int, seed uint64) []int {
	perm := make([]int, size)
	for i := range perm {
		perm[i] = i
	}
	if n < size {
		rng := rand.New(rand.NewPCG(seed, seed))
		for i := 0; i < n; i++ {
			j := i + rng.IntN(size-i)
			perm[i], perm[j] = perm[j], perm[i]
		}
	}
	out := perm[:n]
	slices.Sort(out)
	return out
}

func mapPoint(r *building.Record) MapPoint {
	return MapPoint{
		ID:           r.ID,
		Location:     r.DisplayLocation(),
		Latitude:     round2(r.Latitude),
		Longitude:    round2(r.Longitude),
		MonthlyUsage: int(r.MonthlyKWh()),
		FloorArea:    int(r.FloorArea),
		BuildingType: r.BuildingType,
		Bedrooms:     r.Bedrooms,
		Occupants:    r.Occupants,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Detail describes one reference building relative to its climate zone
type Detail struct {
	Building       building.Record `json:"building"`
	MonthlyUsage   float64         `json:"monthly_usage"`
	ZoneBuildings  int             `json:"zone_buildings"`
	ZoneMedian     float64         `json:"zone_median_usage"`
	ZonePercentile float64         `json:"zone_percentile"`
}

// BuildingDetail returns a building with the share of buildings in the same
// climate zone that use no more energy than it does
func (e *Engine) BuildingDetail(ctx context.Context, id int64) (*Detail, error) {
	pos, ok := e.idx.Lookup(id)
	if !ok {
		return nil, failure.NotFound("id", strconv.FormatInt(id, 10))
	}
	rec := e.idx.RecordAt(pos)
	fp := e.idx.Fingerprint()

	d, err := e.details.Get(ctx, redis.BuildingDetailKey(fp, id), func(ctx context.Context) (Detail, error) {
		usages, err := e.zoneUsages(ctx, rec.ClimateZone)
		if err != nil {
			return Detail{}, err
		}
		monthly := rec.MonthlyKWh()
		return Detail{
			Building:       *rec,
			MonthlyUsage:   monthly,
			ZoneBuildings:  len(usages),
			ZoneMedian:     stat.Quantile(0.5, stat.Empirical, usages, nil),
			ZonePercentile: math.Round(stat.CDF(monthly, stat.Empirical, usages, nil)*1000) / 10,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// zoneUsages returns the sorted monthly usages of every building in zone
func (e *Engine) zoneUsages(ctx context.Context, zone string) ([]float64, error) {
	key := redis.ZonePercentilesKey(e.idx.Fingerprint(), zone)
	return e.zones.Get(ctx, key, func(context.Context) ([]float64, error) {
		var usages []float64
		for i := 0; i < e.idx.Size(); i++ {
			if r := e.idx.RecordAt(i); r.ClimateZone == zone {
				usages = append(usages, r.MonthlyKWh())
			}
		}
		slices.Sort(usages)
		return usages, nil
	})
}
