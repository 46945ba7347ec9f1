package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReading(t *testing.T) {

	valid := map[any]float64{
		3:                   3,
		int64(-2):           -2,
		4.5:                 4.5,
		float32(0.5):        0.5,
		"7":                 7,
		" 2.25 ":            2.25,
		"3,5":               3.5,
		"-0,75":             -0.75,
		json.Number("12.5"): 12.5,
	}
	for in, want := range valid {
		r := NewReading(in)
		assert.True(t, r.Valid, "%#v", in)
		assert.Equal(t, want, r.Value, "%#v", in)
	}

	invalid := []any{nil, true, false, "", "   ", "--", "n/a", "1 234", "5 kW", "NaN", "Inf", math.NaN(), math.Inf(-1), []any{1}, map[string]any{}}
	for _, in := range invalid {
		assert.False(t, NewReading(in).Valid, "%#v", in)
	}
}

func TestCoerce(t *testing.T) {

	assert.Equal(t, 1.5, Coerce("1,5", 9))
	assert.Equal(t, 9.0, Coerce(nil, 9))
	assert.Equal(t, 9.0, Coerce("garbage", 9))
	assert.Equal(t, 0.0, Coerce(0, 9), "zero is a value, not a missing field")
}

func TestReadingJSON(t *testing.T) {

	var raw RawTelemetry
	err := json.Unmarshal([]byte(`{
		"currentPowerKw": 4.2,
		"energyTodayKwh": "12,5",
		"energyTotalKwh": null,
		"stationCurrentPower": "--",
		"totalUsePower": {"nested": true},
		"productPowerTime": "13:40"
	}`), &raw)
	require.NoError(t, err)

	assert.Equal(t, Known(4.2), raw.CurrentPowerKw)
	assert.Equal(t, Known(12.5), raw.EnergyTodayKwh)
	assert.False(t, raw.EnergyTotalKwh.Valid)
	assert.False(t, raw.StationCurrentPower.Valid)
	assert.False(t, raw.TotalUsePower.Valid)
	assert.False(t, raw.BuyPowerRatio.Valid, "absent field")
	assert.Equal(t, "13:40", raw.ProductPowerTime)

	out, err := json.Marshal(struct {
		A Reading `json:"a"`
		B Reading `json:"b"`
	}{A: Known(1.25)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1.25, "b": null}`, string(out))
}

func TestReadingOr(t *testing.T) {

	assert.Equal(t, 2.0, Known(2).Or(5))
	assert.Equal(t, 5.0, Reading{}.Or(5))
}

func TestSnapshotFieldNames(t *testing.T) {

	pb := PowerBalance{
		SolarKw:            3.25,
		LoadKw:             2.6,
		SelfUseKw:          1.9,
		GridImportKw:       0.65,
		GridExportKw:       1.35,
		BatteryKw:          -0.4,
		BatterySocPercent:  80.5,
		SelfUseRatio:       0.5846,
		AutonomyRatio:      0.7308,
		EnergyTodayKwh:     21.4,
		EnergyTotalKwh:     10234.5,
		Timestamp:          time.Date(2024, 6, 21, 13, 45, 10, 0, time.Local),
		StationName:        "El Sebadal",
		FleetPowerKw:       4.75,
		LastProductionKw:   1.2,
		LastProductionTime: "2024-06-21 13:35",
	}

	out, err := json.Marshal(pb.Snapshot())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"total": {"potencia": 4.75, "energia_hoy": 21.4, "energia_total": 10234.5},
		"sebadal": {
			"potencia": 3.25,
			"ultima_produccion_valor": 1.2,
			"ultima_produccion_hora": "2024-06-21 13:35",
			"uso_total": 2.6,
			"autoconsumo": 1.9,
			"compra_red": 0.65,
			"exportacion_red": 1.35,
			"bateria_kw": -0.4,
			"bateria_soc": 80.5,
			"ratio_autoconsumo": 0.5846,
			"ratio_autonomia": 0.7308
		},
		"actualizado": "2024-06-21 13:45:10"
	}`, string(out))
}

func TestPollCycleResultOk(t *testing.T) {

	assert.True(t, PollCycleResult{Balance: &PowerBalance{}}.Ok())
	assert.False(t, PollCycleResult{}.Ok())
	assert.False(t, PollCycleResult{Balance: &PowerBalance{}, Err: ErrNoPlants}.Ok())
}
