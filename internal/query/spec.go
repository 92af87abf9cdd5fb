package query

import "github.com/saaga0h/energy-twins/internal/building"

// Spec is a normalized user query. Categorical fields carry canonical values.
type Spec struct {
	Location     string   `json:"location,omitempty"`
	HomeSize     float64  `json:"home_size"`
	Bedrooms     int      `json:"bedrooms"`
	Occupants    int      `json:"occupants"`
	BuildingType string   `json:"building_type"`
	HeatingFuel  string   `json:"heating_fuel"`
	CoolingType  string   `json:"cooling_type"`
	ClimateZone  string   `json:"climate_zone"`
	HasSolar     bool     `json:"has_solar"`
	MonthlyUsage *float64 `json:"monthly_usage,omitempty"`
	K            int      `json:"k_value"`
}

// FromRecord builds the query a user would submit to describe r exactly,
// stating r's monthly usage.
func FromRecord(r *building.Record, k int) *Spec {
	usage := r.MonthlyKWh()
	return &Spec{
		Location:     r.DisplayLocation(),
		HomeSize:     r.FloorArea,
		Bedrooms:     r.Bedrooms,
		Occupants:    r.Occupants,
		BuildingType: r.BuildingType,
		HeatingFuel:  r.HeatingFuel,
		CoolingType:  r.CoolingType,
		ClimateZone:  r.ClimateZone,
		HasSolar:     r.HasSolar,
		MonthlyUsage: &usage,
		K:            k,
	}
}
