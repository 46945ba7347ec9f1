package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/sebadal-solar/fusionsolar2json/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_FLEET_POWER           = "fleet_power"
	SENSOR_ID_ENERGY_TODAY          = "energy_today"
	SENSOR_ID_ENERGY_TOTAL          = "energy_total"
	SENSOR_ID_SOLAR_POWER           = "solar_power"
	SENSOR_ID_LAST_PRODUCTION_POWER = "last_production_power"
	SENSOR_ID_LAST_PRODUCTION_TIME  = "last_production_time"
	SENSOR_ID_LOAD_POWER            = "load_power"
	SENSOR_ID_SELF_USE_POWER        = "self_use_power"
	SENSOR_ID_GRID_IMPORT_POWER     = "grid_import_power"
	SENSOR_ID_GRID_EXPORT_POWER     = "grid_export_power"
	SENSOR_ID_BATTERY_POWER         = "battery_power"
	SENSOR_ID_BATTERY_SOC           = "battery_soc"
	SENSOR_ID_SELF_USE_RATIO        = "self_use_ratio"
	SENSOR_ID_AUTONOMY_RATIO        = "autonomy_ratio"
	SENSOR_ID_LAST_UPDATE           = "last_update"
	STATE_CLASS_MEASUREMENT         = "measurement"
	STATE_CLASS_TOTAL_INCREASING    = "total_increasing"
	DEVICE_CLASS_BATTERY            = "battery"
	DEVICE_CLASS_ENERGY             = "energy"
	DEVICE_CLASS_POWER              = "power"
	DEVICE_CLASS_CONNECTIVITY       = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC         = "diagnostic"
	SENSOR_TYPE_SENSOR              = "sensor"
	SENSOR_TYPE_BINARY              = "binary_sensor"
)

// balanceSensor maps one numeric field of a PowerBalance to a sensor.
type balanceSensor struct {
	id          string
	name        string
	unit        string
	deviceClass string
	stateClass  string
	icon        string
	decimals    uint
	value       func(PowerBalance) float64
}

func percent(ratio float64) float64 {
	return ratio * 100
}

var balanceSensors = []balanceSensor{
	{SENSOR_ID_FLEET_POWER, "Fleet power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "", 3,
		func(pb PowerBalance) float64 { return pb.FleetPowerKw }},
	{SENSOR_ID_ENERGY_TODAY, "Energy today", "kWh", DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING, "", 3,
		func(pb PowerBalance) float64 { return pb.EnergyTodayKwh }},
	{SENSOR_ID_ENERGY_TOTAL, "Energy total", "kWh", DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING, "", 3,
		func(pb PowerBalance) float64 { return pb.EnergyTotalKwh }},
	{SENSOR_ID_SOLAR_POWER, "Solar power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "mdi:solar-power", 3,
		func(pb PowerBalance) float64 { return pb.SolarKw }},
	{SENSOR_ID_LAST_PRODUCTION_POWER, "Last production", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "", 3,
		func(pb PowerBalance) float64 { return pb.LastProductionKw }},
	{SENSOR_ID_LOAD_POWER, "Load power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "mdi:home-lightning-bolt", 3,
		func(pb PowerBalance) float64 { return pb.LoadKw }},
	{SENSOR_ID_SELF_USE_POWER, "Self use power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "", 3,
		func(pb PowerBalance) float64 { return pb.SelfUseKw }},
	{SENSOR_ID_GRID_IMPORT_POWER, "Grid import power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "mdi:transmission-tower-import", 3,
		func(pb PowerBalance) float64 { return pb.GridImportKw }},
	{SENSOR_ID_GRID_EXPORT_POWER, "Grid export power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "mdi:transmission-tower-export", 3,
		func(pb PowerBalance) float64 { return pb.GridExportKw }},
	{SENSOR_ID_BATTERY_POWER, "Battery power", "kW", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, "", 3,
		func(pb PowerBalance) float64 { return pb.BatteryKw }},
	{SENSOR_ID_BATTERY_SOC, "Battery SoC", "%", DEVICE_CLASS_BATTERY, STATE_CLASS_MEASUREMENT, "", 1,
		func(pb PowerBalance) float64 { return pb.BatterySocPercent }},
	{SENSOR_ID_SELF_USE_RATIO, "Self use ratio", "%", "", STATE_CLASS_MEASUREMENT, "mdi:percent", 2,
		func(pb PowerBalance) float64 { return percent(pb.SelfUseRatio) }},
	{SENSOR_ID_AUTONOMY_RATIO, "Autonomy ratio", "%", "", STATE_CLASS_MEASUREMENT, "mdi:percent", 2,
		func(pb PowerBalance) float64 { return percent(pb.AutonomyRatio) }},
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("fusionsolar2json_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "fusionsolar2json",
		Model:        "FusionSolar bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("FusionSolar %s", md5HashShort(baseTopic)),
	}
}

// StationDevice is the monitored plant, reached through the bridge.
func StationDevice(bridge Device, stationName string) Device {
	if stationName == "" {
		stationName = "station"
	}
	return Device{
		Id:           fmt.Sprintf("fusionsolar_station_%s", md5HashShort(stationName)),
		Manufacturer: "Huawei",
		Model:        "FusionSolar",
		Name:         stationName,
		ViaDevice:    bridge.Id,
	}
}

func BridgeSensors(bridge Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridge,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridge.Id, SENSOR_ID_BRIDGE_STATE),
		},
		{
			Device:         bridge,
			Id:             SENSOR_ID_LAST_UPDATE,
			SensorType:     SENSOR_TYPE_SENSOR,
			Name:           "Last update",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			Icon:           "mdi:clock-outline",
			UniqueId:       uniqueId(bridge.Id, SENSOR_ID_LAST_UPDATE),
		},
	}
}

// StationSensors lists every sensor published for a reconciled balance.
func StationSensors(station Device) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(balanceSensors)+1)
	for _, s := range balanceSensors {
		sensors = append(sensors, GenericSensor{
			Device:            station,
			Id:                s.id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              s.name,
			UniqueId:          uniqueId(station.Id, s.id),
			UnitOfMeasurement: s.unit,
			StateClass:        s.stateClass,
			DeviceClass:       s.deviceClass,
			Icon:              s.icon,
		})
	}
	sensors = append(sensors, GenericSensor{
		Device:     station,
		Id:         SENSOR_ID_LAST_PRODUCTION_TIME,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Last production time",
		Icon:       "mdi:clock-outline",
		UniqueId:   uniqueId(station.Id, SENSOR_ID_LAST_PRODUCTION_TIME),
	})
	return sensors
}

func uniqueId(deviceId string, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[:8]
}
