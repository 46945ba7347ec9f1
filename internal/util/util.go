package util

import (
	"github.com/sebadal-solar/fusionsolar2json/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Fusion: config.FusionConfig{
			User:        "test",
			Pass:        "test",
			Subdomain:   "uni000eu5",
			KeepSession: true,
			MaxRetries:  0,
		},
		Poll: config.PollConfig{
			RefreshSeconds: 60,
			PlantIndex:     0,
			TimeoutSeconds: 5,
		},
		Output: config.OutputConfig{
			JSONFile: "datos.json",
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "fusionsolar",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
