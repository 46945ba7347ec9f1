package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/events"
	"github.com/sebadal-solar/fusionsolar2json/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	assert.Equal("fusionsolar/bridge/state", c.BridgeStateTopic())
	assert.Equal("fusionsolar/sensor/solar_power/state", c.SensorStateTopic(events.SENSOR_ID_SOLAR_POWER))
	assert.Equal("homeassistant", c.DiscoveryPrefix())
}

func TestOptsFromConfig(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.Username = "user"
	cfg.MQTT.Password = "secret"
	opts := OptsFromConfig(&cfg)

	assert.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
	assert.Regexp(t, `^fusionsolar_\d+$`, opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "fusionsolar/bridge/state", opts.WillTopic)
	assert.Equal(t, []byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
}

func TestSensorDiscoveryMessage(t *testing.T) {

	c := testClient()
	bridge := events.BridgeDevice("fusionsolar")
	station := events.StationDevice(bridge, "El Sebadal")

	sensors := events.StationSensors(station)
	require.NotEmpty(t, sensors)
	s := sensors[0]
	for _, candidate := range sensors {
		if candidate.Id == events.SENSOR_ID_SOLAR_POWER {
			s = candidate
		}
	}

	msg := GenericSensorToHADiscoveryMessage(c, s)
	assert.Equal(t, "fusionsolar/sensor/solar_power/state", msg.StateTopic)
	assert.Equal(t, "fusionsolar/bridge/state", msg.AvTopic)
	assert.Equal(t, "kW", msg.UnitOfMeasurement)
	assert.Equal(t, events.DEVICE_CLASS_POWER, msg.DeviceClass)
	assert.Equal(t, []string{station.Id}, msg.Device.Id)
	assert.Equal(t, bridge.Id, msg.Device.ViaDevice)
	assert.Equal(t, "homeassistant/sensor/"+station.Id+"/solar_power/config", HADiscoverySensorTopic(c.DiscoveryPrefix(), s))

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "payload_on")
}

func TestBridgeDiscoveryMessage(t *testing.T) {

	c := testClient()
	bridge := events.BridgeDevice("fusionsolar")
	state := events.BridgeSensors(bridge)[0]
	require.Equal(t, events.SENSOR_ID_BRIDGE_STATE, state.Id)

	msg := GenericSensorToHADiscoveryMessage(c, state)
	assert.Equal(t, c.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(t, MQTT_PAYLOAD_OFFLINE, msg.PayloadOff)
	assert.Equal(t, "homeassistant/binary_sensor/"+bridge.Id+"/bridge/config", HADiscoverySensorTopic("homeassistant", state))
}
