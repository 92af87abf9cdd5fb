package building

import "strings"

// Categorical fields of a building record. Values are the canonical
// lower_snake identifiers used throughout the engine and API.
const (
	FieldBuildingType = "building_type"
	FieldHeatingFuel  = "heating_fuel"
	FieldCoolingType  = "cooling_type"
	FieldClimateZone  = "climate_zone"
)

// Building types
const (
	SingleFamilyDetached = "single_family_detached"
	SingleFamilyAttached = "single_family_attached"
	ApartmentSmall       = "apartment_small"
	ApartmentLarge       = "apartment_large"
	MobileHome           = "mobile_home"
)

// Heating fuels
const (
	NaturalGas  = "natural_gas"
	Electricity = "electricity"
	FuelOil     = "fuel_oil"
	Propane     = "propane"
	OtherFuel   = "other"
)

// Cooling types
const (
	CentralAC = "central_ac"
	RoomAC    = "room_ac"
	HeatPump  = "heat_pump"
	NoCooling = "none"
)

// BuildingTypes lists the recognised building types
var BuildingTypes = []string{SingleFamilyDetached, SingleFamilyAttached, ApartmentSmall, ApartmentLarge, MobileHome}

// HeatingFuels lists the recognised heating fuels
var HeatingFuels = []string{NaturalGas, Electricity, FuelOil, Propane, OtherFuel}

// CoolingTypes lists the recognised cooling types
var CoolingTypes = []string{CentralAC, RoomAC, HeatPump, NoCooling}

// Aliases map display labels (as they appear in the ResStock metadata and
// in the web form) to canonical values. Keys are lower-cased.
var buildingTypeAliases = map[string]string{
	"single-family detached":        SingleFamilyDetached,
	"single family detached":        SingleFamilyDetached,
	"single-family attached":        SingleFamilyAttached,
	"single family attached":        SingleFamilyAttached,
	"mobile home":                   MobileHome,
	"2 unit":                        ApartmentSmall,
	"3 or 4 unit":                   ApartmentSmall,
	"5 to 9 unit":                   ApartmentSmall,
	"10 to 19 unit":                 ApartmentLarge,
	"20 to 49 unit":                 ApartmentLarge,
	"50 or more unit":               ApartmentLarge,
	"multi-family with 2 - 4 units": ApartmentSmall,
	"multi-family with 5+ units":    ApartmentLarge,
}

var heatingFuelAliases = map[string]string{
	"natural gas": NaturalGas,
	"gas":         NaturalGas,
	"electricity": Electricity,
	"electric":    Electricity,
	"fuel oil":    FuelOil,
	"oil":         FuelOil,
	"propane":     Propane,
	"other fuel":  OtherFuel,
	"wood":        OtherFuel,
	"none":        OtherFuel,
}

var coolingTypeAliases = map[string]string{
	"central ac":           CentralAC,
	"room ac":              RoomAC,
	"window ac":            RoomAC,
	"window_ac":            RoomAC,
	"heat pump":            HeatPump,
	"ducted heat pump":     HeatPump,
	"non-ducted heat pump": HeatPump,
	// ResStock 2024 releases list evaporative coolers as a central system
	"evaporative or swamp cooler": CentralAC,
}

// ParseBuildingType resolves a canonical value or display alias
func ParseBuildingType(s string) (string, bool) {
	return parseEnum(s, BuildingTypes, buildingTypeAliases)
}

// ParseHeatingFuel resolves a canonical value or display alias
func ParseHeatingFuel(s string) (string, bool) {
	return parseEnum(s, HeatingFuels, heatingFuelAliases)
}

// ParseCoolingType resolves a canonical value or display alias
func ParseCoolingType(s string) (string, bool) {
	return parseEnum(s, CoolingTypes, coolingTypeAliases)
}

// ParseClimateZone validates an ASHRAE IECC climate zone code such as "4A"
// or "7" and returns it upper-cased.
func ParseClimateZone(s string) (string, bool) {
	z := strings.ToUpper(strings.TrimSpace(s))
	switch len(z) {
	case 1:
		if z[0] >= '1' && z[0] <= '8' {
			return z, true
		}
	case 2:
		if z[0] >= '1' && z[0] <= '8' && (z[1] == 'A' || z[1] == 'B' || z[1] == 'C') {
			return z, true
		}
	}
	return "", false
}

func parseEnum(s string, canonical []string, aliases map[string]string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "", false
	}
	for _, c := range canonical {
		if v == c {
			return c, true
		}
	}
	if c, ok := aliases[v]; ok {
		return c, true
	}
	return "", false
}
