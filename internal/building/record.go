package building

import (
	"fmt"
	"math"
)

// Record is one reference building from the building stock dataset.
// Records are immutable once loaded.
type Record struct {
	ID        int64   `json:"id" yaml:"id"`
	City      string  `json:"city" yaml:"city"`
	State     string  `json:"state" yaml:"state"`
	County    string  `json:"county,omitempty" yaml:"county"`
	Location  string  `json:"location" yaml:"location"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`

	FloorArea    float64 `json:"home_size" yaml:"home_size"`
	Bedrooms     int     `json:"bedrooms" yaml:"bedrooms"`
	Occupants    int     `json:"occupants" yaml:"occupants"`
	BuildingType string  `json:"building_type" yaml:"building_type"`

	HeatingFuel string  `json:"heating_fuel" yaml:"heating_fuel"`
	CoolingType string  `json:"cooling_type" yaml:"cooling_type"`
	HasSolar    bool    `json:"has_solar" yaml:"has_solar"`
	SolarSizeKW float64 `json:"solar_size_kw" yaml:"solar_size_kw"`

	ClimateZone string `json:"climate_zone" yaml:"climate_zone"`

	AnnualKWh float64 `json:"annual_kwh" yaml:"annual_kwh"`
}

// MonthlyKWh returns the average monthly electricity usage
func (r *Record) MonthlyKWh() float64 {
	return r.AnnualKWh / 12
}

// DisplayLocation returns the map label, falling back to city/state when the
// loader did not provide one.
func (r *Record) DisplayLocation() string {
	if r.Location != "" {
		return r.Location
	}
	switch {
	case r.City != "" && r.State != "":
		return fmt.Sprintf("%s, %s", r.City, r.State)
	case r.State != "":
		return r.State
	case r.County != "":
		return r.County
	}
	return "Unknown"
}

// Validate checks that every required field carries a usable value and that
// categorical fields hold canonical values
func (r *Record) Validate() error {
	if !positive(r.FloorArea) {
		return fmt.Errorf("building %d: floor area must be positive, got %v", r.ID, r.FloorArea)
	}
	if r.Bedrooms < 0 {
		return fmt.Errorf("building %d: bedrooms must be non-negative, got %d", r.ID, r.Bedrooms)
	}
	if r.Occupants < 1 {
		return fmt.Errorf("building %d: occupants must be at least 1, got %d", r.ID, r.Occupants)
	}
	if !positive(r.AnnualKWh) {
		return fmt.Errorf("building %d: annual usage must be positive, got %v", r.ID, r.AnnualKWh)
	}
	if r.SolarSizeKW < 0 || math.IsNaN(r.SolarSizeKW) {
		return fmt.Errorf("building %d: solar size must be non-negative, got %v", r.ID, r.SolarSizeKW)
	}
	if c, ok := ParseBuildingType(r.BuildingType); !ok || c != r.BuildingType {
		return fmt.Errorf("building %d: unrecognised building type %q", r.ID, r.BuildingType)
	}
	if c, ok := ParseHeatingFuel(r.HeatingFuel); !ok || c != r.HeatingFuel {
		return fmt.Errorf("building %d: unrecognised heating fuel %q", r.ID, r.HeatingFuel)
	}
	if c, ok := ParseCoolingType(r.CoolingType); !ok || c != r.CoolingType {
		return fmt.Errorf("building %d: unrecognised cooling type %q", r.ID, r.CoolingType)
	}
	if c, ok := ParseClimateZone(r.ClimateZone); !ok || c != r.ClimateZone {
		return fmt.Errorf("building %d: invalid climate zone %q", r.ID, r.ClimateZone)
	}
	return nil
}

// Canonicalize rewrites categorical fields to their canonical values and fills
// the display location. It returns an error when a field is unrecognised.
func (r *Record) Canonicalize() error {
	bt, ok := ParseBuildingType(r.BuildingType)
	if !ok {
		return fmt.Errorf("building %d: unrecognised building type %q", r.ID, r.BuildingType)
	}
	hf, ok := ParseHeatingFuel(r.HeatingFuel)
	if !ok {
		return fmt.Errorf("building %d: unrecognised heating fuel %q", r.ID, r.HeatingFuel)
	}
	ct, ok := ParseCoolingType(r.CoolingType)
	if !ok {
		return fmt.Errorf("building %d: unrecognised cooling type %q", r.ID, r.CoolingType)
	}
	cz, ok := ParseClimateZone(r.ClimateZone)
	if !ok {
		return fmt.Errorf("building %d: invalid climate zone %q", r.ID, r.ClimateZone)
	}

	r.BuildingType, r.HeatingFuel, r.CoolingType, r.ClimateZone = bt, hf, ct, cz
	r.Location = r.DisplayLocation()
	if r.SolarSizeKW > 0 {
		r.HasSolar = true
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
