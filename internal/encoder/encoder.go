package encoder

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/query"
)

// Feature vector layout. Every dimension is z-scored with the frozen
// reference mean and population standard deviation.
//
// [0] floor area (sqft)
// [1] bedrooms
// [2] occupants
// [3] monthly usage (kWh)
// [4] building type (category index)
// [5] heating fuel (category index)
// [6] cooling type (category index)
// [7] climate zone (category index)
// [8] has solar (0/1)
const (
	DimFloorArea = iota
	DimBedrooms
	DimOccupants
	DimMonthlyUsage
	DimBuildingType
	DimHeatingFuel
	DimCoolingType
	DimClimateZone
	DimHasSolar

	Dims
)

// minStdDev is the deviation below which a dimension is treated as constant
const minStdDev = 1e-12

var categoricalFields = []string{
	building.FieldBuildingType,
	building.FieldHeatingFuel,
	building.FieldCoolingType,
	building.FieldClimateZone,
}

// Vector is an encoded feature vector following the documented layout
type Vector []float64

// QueryVector is an encoded query. Inactive dimensions (a missing stated
// usage) are left out of distance computations.
type QueryVector struct {
	Values Vector
	Active [Dims]bool
}

// ActiveDims returns the indices of the dimensions that take part in distance
func (q QueryVector) ActiveDims() []int {
	dims := make([]int, 0, Dims)
	for i, on := range q.Active {
		if on {
			dims = append(dims, i)
		}
	}
	return dims
}

// Params holds the encoding parameters fitted on the reference set. A Params
// value is never modified after Fit and is safe for concurrent use.
type Params struct {
	mean       [Dims]float64
	std        [Dims]float64
	categories map[string][]string
	codes      map[string]map[string]int
	fitted     int
}

// Fit computes category mappings and scaling parameters from the reference
// records. Category indices follow lexicographic order of the observed values.
func Fit(records []building.Record) (*Params, error) {
	if len(records) == 0 {
		return nil, failure.EmptyDataset()
	}

	p := &Params{
		categories: make(map[string][]string, len(categoricalFields)),
		codes:      make(map[string]map[string]int, len(categoricalFields)),
		fitted:     len(records),
	}

	for _, field := range categoricalFields {
		seen := make(map[string]struct{})
		for i := range records {
			seen[categoryValue(&records[i], field)] = struct{}{}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)

		codes := make(map[string]int, len(values))
		for i, v := range values {
			codes[v] = i
		}
		p.categories[field] = values
		p.codes[field] = codes
	}

	columns := make([][]float64, Dims)
	for d := range columns {
		columns[d] = make([]float64, len(records))
	}
	for i := range records {
		raw, err := p.rawRecord(&records[i])
		if err != nil {
			return nil, err
		}
		for d, v := range raw {
			columns[d][i] = v
		}
	}

	for d := 0; d < Dims; d++ {
		mean, std := stat.PopMeanStdDev(columns[d], nil)
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			return nil, fmt.Errorf("dimension %d has non-finite mean", d)
		}
		p.mean[d] = mean
		p.std[d] = std
	}

	return p, nil
}

// Encode converts a reference record to its feature vector
func (p *Params) Encode(r *building.Record) (Vector, error) {
	raw, err := p.rawRecord(r)
	if err != nil {
		return nil, err
	}
	return p.scale(raw), nil
}

// EncodeQuery converts a normalized query to a feature vector using the same
// mappings and scaling as the reference set.
func (p *Params) EncodeQuery(q *query.Spec) (QueryVector, error) {
	var raw [Dims]float64
	raw[DimFloorArea] = q.HomeSize
	raw[DimBedrooms] = float64(q.Bedrooms)
	raw[DimOccupants] = float64(q.Occupants)
	if q.MonthlyUsage != nil {
		raw[DimMonthlyUsage] = *q.MonthlyUsage
	}

	categories := map[string]string{
		building.FieldBuildingType: q.BuildingType,
		building.FieldHeatingFuel:  q.HeatingFuel,
		building.FieldCoolingType:  q.CoolingType,
		building.FieldClimateZone:  q.ClimateZone,
	}
	for _, field := range categoricalFields {
		code, err := p.code(field, categories[field])
		if err != nil {
			return QueryVector{}, err
		}
		raw[dimOf(field)] = float64(code)
	}
	if q.HasSolar {
		raw[DimHasSolar] = 1
	}

	qv := QueryVector{Values: p.scale(raw)}
	for d := range qv.Active {
		qv.Active[d] = true
	}
	if q.MonthlyUsage == nil {
		qv.Active[DimMonthlyUsage] = false
		qv.Values[DimMonthlyUsage] = 0
	}
	return qv, nil
}

// Categories returns the fixed enumeration order of a categorical field
func (p *Params) Categories(field string) []string {
	values := p.categories[field]
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Mean returns the frozen mean of a dimension
func (p *Params) Mean(dim int) float64 { return p.mean[dim] }

// StdDev returns the frozen population standard deviation of a dimension
func (p *Params) StdDev(dim int) float64 { return p.std[dim] }

// FittedOn returns the number of records the parameters were fitted on
func (p *Params) FittedOn() int { return p.fitted }

func (p *Params) rawRecord(r *building.Record) ([Dims]float64, error) {
	var raw [Dims]float64
	raw[DimFloorArea] = r.FloorArea
	raw[DimBedrooms] = float64(r.Bedrooms)
	raw[DimOccupants] = float64(r.Occupants)
	raw[DimMonthlyUsage] = r.MonthlyKWh()
	for _, field := range categoricalFields {
		code, err := p.code(field, categoryValue(r, field))
		if err != nil {
			return raw, err
		}
		raw[dimOf(field)] = float64(code)
	}
	if r.HasSolar {
		raw[DimHasSolar] = 1
	}
	return raw, nil
}

func (p *Params) scale(raw [Dims]float64) Vector {
	v := make(Vector, Dims)
	for d := 0; d < Dims; d++ {
		if p.std[d] < minStdDev {
			v[d] = 0
			continue
		}
		v[d] = (raw[d] - p.mean[d]) / p.std[d]
	}
	return v
}

func (p *Params) code(field, value string) (int, error) {
	c, ok := p.codes[field][value]
	if !ok {
		return 0, failure.UnknownCategory(field, value)
	}
	return c, nil
}

func categoryValue(r *building.Record, field string) string {
	switch field {
	case building.FieldBuildingType:
		return r.BuildingType
	case building.FieldHeatingFuel:
		return r.HeatingFuel
	case building.FieldCoolingType:
		return r.CoolingType
	case building.FieldClimateZone:
		return r.ClimateZone
	}
	return ""
}

func dimOf(field string) int {
	switch field {
	case building.FieldBuildingType:
		return DimBuildingType
	case building.FieldHeatingFuel:
		return DimHeatingFuel
	case building.FieldCoolingType:
		return DimCoolingType
	case building.FieldClimateZone:
		return DimClimateZone
	}
	return -1
}
