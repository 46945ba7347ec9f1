package domain

const (
	ACTOR_ID_MASTER    = "master"
	ACTOR_ID_TELEMETRY = "telemetry"
	ACTOR_ID_POLLER    = "poller"
	ACTOR_ID_WRITER    = "writer"
	ACTOR_ID_MQTT      = "mqtt"
	ACTOR_ID_DISCOVERY = "hadiscovery"
)

// PollTick starts a poll cycle. Sent by the schedule and once at startup.
type PollTick struct {
}

type GetTelemetryRequest struct {
	ActorRequestMixIn
	CycleId    string
	PlantIndex uint
}

type GetTelemetryResponse struct {
	ActorResponseMixIn
	CycleId   string
	Telemetry *RawTelemetry
}

type GetLatestBalanceRequest struct {
	ActorRequestMixIn
}

type GetLatestBalanceResponse struct {
	ActorResponseMixIn
	Balance   *PowerBalance
	LastCycle *PollCycleResult
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// PublishDiscoveryRequest asks the MQTT actor to publish Home Assistant
// discovery configs for the given sensors.
type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}
