package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/failure"
)

// Input field names of the query contract
const (
	FieldHomeSize     = "home_size"
	FieldBedrooms     = "bedrooms"
	FieldOccupants    = "occupants"
	FieldBuildingType = building.FieldBuildingType
	FieldHeatingFuel  = building.FieldHeatingFuel
	FieldCoolingType  = building.FieldCoolingType
	FieldClimateZone  = building.FieldClimateZone
	FieldHasSolar     = "has_solar"
	FieldMonthlyUsage = "monthly_usage"
	FieldK            = "k_value"
	FieldLocation     = "location"
)

// Default bounds for the requested result count
const (
	DefaultK    = 10
	DefaultMaxK = 50
)

// MaxCount bounds bedroom and occupant counts in a query
const MaxCount = 100

// Raw is an unvalidated query as decoded from a transport payload
type Raw map[string]any

// Normalizer validates raw form fields into a Spec
type Normalizer struct {
	MaxK     int
	DefaultK int
}

// NewNormalizer returns a Normalizer with the given bounds, falling back to
// the package defaults for non-positive values.
func NewNormalizer(maxK, defaultK int) *Normalizer {
	if maxK <= 0 {
		maxK = DefaultMaxK
	}
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if defaultK > maxK {
		defaultK = maxK
	}
	return &Normalizer{MaxK: maxK, DefaultK: defaultK}
}

// Normalize validates raw and produces the canonical Spec.
//
// Defaults: bedrooms and occupants 1, has_solar false, k_value DefaultK.
// A k_value outside [1, MaxK] is reported as an invalid query and an
// unrecognised categorical value as an unknown category; both also match
// failure.ErrValidation. Every other rejected field is a plain validation
// error naming the field.
func (n *Normalizer) Normalize(raw Raw) (*Spec, error) {
	spec := &Spec{}

	homeSize, present, err := number(raw, FieldHomeSize)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, failure.Validation(FieldHomeSize, "is required")
	}
	if homeSize <= 0 {
		return nil, failure.Validation(FieldHomeSize, "must be positive")
	}
	spec.HomeSize = homeSize

	if spec.Bedrooms, err = integer(raw, FieldBedrooms, 1, 0, MaxCount); err != nil {
		return nil, err
	}
	if spec.Occupants, err = integer(raw, FieldOccupants, 1, 1, MaxCount); err != nil {
		return nil, err
	}

	if spec.BuildingType, err = category(raw, FieldBuildingType, building.ParseBuildingType); err != nil {
		return nil, err
	}
	if spec.HeatingFuel, err = category(raw, FieldHeatingFuel, building.ParseHeatingFuel); err != nil {
		return nil, err
	}
	if spec.CoolingType, err = category(raw, FieldCoolingType, building.ParseCoolingType); err != nil {
		return nil, err
	}
	if spec.ClimateZone, err = category(raw, FieldClimateZone, building.ParseClimateZone); err != nil {
		return nil, err
	}

	if spec.HasSolar, err = boolean(raw, FieldHasSolar); err != nil {
		return nil, err
	}

	usage, present, err := number(raw, FieldMonthlyUsage)
	if err != nil {
		return nil, err
	}
	if present {
		if usage <= 0 {
			return nil, failure.Validation(FieldMonthlyUsage, "must be positive")
		}
		spec.MonthlyUsage = &usage
	}

	k, present, err := number(raw, FieldK)
	if err != nil {
		return nil, failure.InvalidQuery(FieldK, "must be an integer")
	}
	spec.K = n.DefaultK
	if present {
		if k != math.Trunc(k) {
			return nil, failure.InvalidQuery(FieldK, "must be an integer")
		}
		if k < 1 || k > float64(n.MaxK) {
			return nil, failure.InvalidQuery(FieldK, fmt.Sprintf("must be between 1 and %d", n.MaxK))
		}
		spec.K = int(k)
	}

	if v, ok := raw[FieldLocation]; ok && v != nil {
		spec.Location = strings.TrimSpace(fmt.Sprint(v))
	}

	return spec, nil
}

// number reads a numeric field given as a JSON number or numeric string.
// Empty strings and nulls count as absent.
func number(raw Raw, field string) (float64, bool, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, false, nil
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, true, failure.Validation(field, "must be numeric")
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, true, failure.Validation(field, "must be numeric")
		}
		f = parsed
	default:
		return 0, true, failure.Validation(field, "must be numeric")
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, failure.Validation(field, "must be a finite number")
	}
	return f, true, nil
}

func integer(raw Raw, field string, def, min, max int) (int, error) {
	f, present, err := number(raw, field)
	if err != nil {
		return 0, err
	}
	if !present {
		return def, nil
	}
	if f != math.Trunc(f) {
		return 0, failure.Validation(field, "must be a whole number")
	}
	if f < float64(min) {
		return 0, failure.Validation(field, fmt.Sprintf("must be at least %d", min))
	}
	if f > float64(max) {
		return 0, failure.Validation(field, fmt.Sprintf("must be at most %d", max))
	}
	return int(f), nil
}

func category(raw Raw, field string, parse func(string) (string, bool)) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", failure.Validation(field, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", failure.Validation(field, "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", failure.Validation(field, "is required")
	}
	c, ok := parse(s)
	if !ok {
		return "", failure.UnknownCategory(field, s)
	}
	return c, nil
}

func boolean(raw Raw, field string) (bool, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y", "true", "1", "on":
			return true, nil
		case "no", "n", "false", "0", "off", "":
			return false, nil
		}
	case float64, int, json.Number:
		f, _, err := number(raw, field)
		if err == nil && (f == 0 || f == 1) {
			return f == 1, nil
		}
	}
	return false, failure.Validation(field, "must be yes/no or a boolean")
}
