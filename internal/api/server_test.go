package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/energy-twins/internal/building"
	"github.com/saaga0h/energy-twins/internal/engine"
	"github.com/saaga0h/energy-twins/internal/failure"
	"github.com/saaga0h/energy-twins/internal/index"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	var records []building.Record
	for i, monthly := range []float64{500, 1000, 1500} {
		records = append(records, building.Record{
			ID:           int64(i + 1),
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
		})
	}
	idx, err := index.Build(records, testLogger())
	require.NoError(t, err)
	e, err := engine.New(idx, engine.DefaultOptions(), nil, testLogger())
	require.NoError(t, err)
	return NewServer(e, testLogger()).Handler()
}

func TestFindTwinsEndpoint(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   failure.Kind
		wantTwins  int
	}{
		{
			name:       "typical usage",
			body:       `{"home_size":"1800","bedrooms":3,"occupants":2,"building_type":"Single-Family Detached","heating_fuel":"Natural Gas","cooling_type":"Central AC","climate_zone":"5B","has_solar":"No","monthly_usage":1000,"k_value":3}`,
			wantStatus: http.StatusOK,
			wantTwins:  3,
		},
		{
			name:       "numeric solar flag",
			body:       `{"home_size":1800,"building_type":"single_family_detached","heating_fuel":"natural_gas","cooling_type":"central_ac","climate_zone":"5B","has_solar":0,"k_value":2}`,
			wantStatus: http.StatusOK,
			wantTwins:  2,
		},
		{
			name:       "k above maximum",
			body:       `{"home_size":1800,"building_type":"single_family_detached","heating_fuel":"natural_gas","cooling_type":"central_ac","climate_zone":"5B","k_value":51}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   failure.KindInvalidQuery,
		},
		{
			name:       "unknown heating fuel",
			body:       `{"home_size":1800,"building_type":"single_family_detached","heating_fuel":"solar_thermal","cooling_type":"central_ac","climate_zone":"5B"}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   failure.KindUnknownCategory,
		},
		{
			name:       "malformed JSON",
			body:       `{"home_size":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   failure.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/find-twins", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp engine.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.wantKind != "" {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantKind, resp.Error.Kind)
				return
			}
			assert.True(t, resp.Success, resp.Message)
			assert.Len(t, resp.Twins, tt.wantTwins)
		})
	}
}

func TestFindTwinsRejectsGet(t *testing.T) {
	h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/find-twins", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGlobalDataEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/global-data?sample=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data GlobalData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.True(t, data.Success)
	assert.Len(t, data.Homes, 2)
	assert.Equal(t, 3, data.Stats.TotalHomes)
	assert.Equal(t, 1000.0, data.Stats.AvgMonthlyKWh)
	assert.Equal(t, 1, data.Stats.DistinctCities)
	assert.Equal(t, 2, data.SampleInfo.Displayed)
	assert.Equal(t, 3, data.SampleInfo.Total)
	assert.Equal(t, -104.99, data.Homes[0].Longitude)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/global-data?sample=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_homes":3,"avg_energy":1000,"cities":1}`, rec.Body.String())
}

func TestBuildingEndpoint(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/buildings/2", http.StatusOK},
		{"/api/buildings/99", http.StatusNotFound},
		{"/api/buildings/abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/buildings/2", nil))
	var detail engine.Detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, int64(2), detail.Building.ID)
	assert.Equal(t, 3, detail.ZoneBuildings)
}
