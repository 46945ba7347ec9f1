package events

import (
	. "github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
)

// BalanceToUpdateEvents converts a reconciled balance to the sensor updates
// published on the event stream, one per sensor of StationSensors plus the
// last update sensor of the bridge.
func BalanceToUpdateEvents(pb PowerBalance) []SensorUpdateEvent {
	events := make([]SensorUpdateEvent, 0, len(balanceSensors)+2)

	for _, s := range balanceSensors {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: s.id,
			},
			Value:    s.value(pb),
			Decimals: s.decimals,
		})
	}

	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LAST_PRODUCTION_TIME,
		},
		Value: pb.LastProductionTime,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LAST_UPDATE,
		},
		Value: pb.Timestamp.Format(SNAPSHOT_TIME_LAYOUT),
	})

	return events
}

func BridgeStateEvent(online bool) BridgeStateUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
