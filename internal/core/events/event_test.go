package events

import (
	"testing"
	"time"

	. "github.com/sebadal-solar/fusionsolar2json/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestBalanceToUpdateEvents(t *testing.T) {

	pb := PowerBalance{
		SolarKw:            3.25,
		GridImportKw:       0.65,
		BatteryKw:          -0.4,
		SelfUseRatio:       0.5846,
		LastProductionTime: "13:35",
		Timestamp:          time.Date(2024, 6, 21, 13, 45, 10, 0, time.Local),
	}

	evs := BalanceToUpdateEvents(pb)

	byId := map[string]SensorUpdateEvent{}
	for _, ev := range evs {
		byId[ev.SensorId()] = ev
	}

	assert.Equal(t, 3.25, byId[SENSOR_ID_SOLAR_POWER].(FloatSensorUpdateEvent).Value)
	assert.Equal(t, 0.65, byId[SENSOR_ID_GRID_IMPORT_POWER].(FloatSensorUpdateEvent).Value)
	assert.Equal(t, -0.4, byId[SENSOR_ID_BATTERY_POWER].(FloatSensorUpdateEvent).Value)
	assert.InDelta(t, 58.46, byId[SENSOR_ID_SELF_USE_RATIO].(FloatSensorUpdateEvent).Value, 1e-9)
	assert.Equal(t, "13:35", byId[SENSOR_ID_LAST_PRODUCTION_TIME].(TextSensorUpdateEvent).Value)
	assert.Equal(t, "2024-06-21 13:45:10", byId[SENSOR_ID_LAST_UPDATE].(TextSensorUpdateEvent).Value)
}

func TestEveryEventHasASensor(t *testing.T) {

	bridge := BridgeDevice("fusionsolar")
	station := StationDevice(bridge, "El Sebadal")

	sensors := map[string]GenericSensor{}
	for _, s := range append(BridgeSensors(bridge), StationSensors(station)...) {
		_, dup := sensors[s.Id]
		assert.False(t, dup, "duplicated sensor %s", s.Id)
		sensors[s.Id] = s
	}

	for _, ev := range BalanceToUpdateEvents(PowerBalance{}) {
		assert.Contains(t, sensors, ev.SensorId())
	}
	assert.Contains(t, sensors, BridgeStateEvent(true).SensorId())
}

func TestDevices(t *testing.T) {

	bridge := BridgeDevice("fusionsolar")
	assert.Equal(t, bridge, BridgeDevice("fusionsolar"), "stable ids")
	assert.NotEqual(t, bridge.Id, BridgeDevice("other").Id)

	station := StationDevice(bridge, "")
	assert.Equal(t, bridge.Id, station.ViaDevice)
	assert.Equal(t, "station", station.Name)
}
