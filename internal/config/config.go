package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap/zapcore"
)

const (
	MIN_REFRESH_SECONDS     = 5
	DEFAULT_TIMEOUT_SECONDS = 30
)

type Config struct {
	LogLevel zapcore.Level
	Fusion   FusionConfig `mapstructure:"fusion"`
	Poll     PollConfig   `mapstructure:"poll"`
	Output   OutputConfig `mapstructure:"output"`
	MQTT     MQTTConfig   `mapstructure:"mqtt"`
	Port     uint         `mapstructure:"port"`
	HttpLog  bool         `mapstructure:"http_log"`
}

type FusionConfig struct {
	User        string
	Pass        string
	Subdomain   string
	BaseURL     string `mapstructure:"base_url"`
	KeepSession bool   `mapstructure:"keep_session"`
	MaxRetries  uint64 `mapstructure:"max_retries"`
}

type PollConfig struct {
	RefreshSeconds uint `mapstructure:"refresh_seconds"`
	PlantIndex     uint `mapstructure:"plant_index"`
	TimeoutSeconds uint `mapstructure:"timeout_seconds"`
}

type OutputConfig struct {
	JSONFile string `mapstructure:"json_file"`
	HTMLFile string `mapstructure:"html_file"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

func (c PollConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks required values and bounds, fixing the ones that can be
// fixed in place.
func (c *Config) Validate() error {
	if c.Fusion.User == "" || c.Fusion.Pass == "" || c.Fusion.Subdomain == "" {
		return errors.New("config params fusion.user, fusion.pass and fusion.subdomain are required")
	}

	if c.Poll.RefreshSeconds < MIN_REFRESH_SECONDS {
		c.Poll.RefreshSeconds = MIN_REFRESH_SECONDS
	}
	if c.Poll.TimeoutSeconds == 0 {
		c.Poll.TimeoutSeconds = DEFAULT_TIMEOUT_SECONDS
	}
	// a cycle must end before the next tick
	if c.Poll.TimeoutSeconds >= c.Poll.RefreshSeconds {
		c.Poll.TimeoutSeconds = c.Poll.RefreshSeconds - 1
	}

	if c.Output.JSONFile == "" {
		return errors.New("config param output.json_file is required")
	}

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic

	if c.MQTT.Enable && c.MQTT.Host == "" {
		return errors.New("config param mqtt.host is required when mqtt is enabled")
	}

	return nil
}

// Redacted returns a copy safe to be logged.
func (c Config) Redacted() Config {
	c.Fusion.Pass = "*redacted*"
	c.MQTT.Username = "*redacted*"
	c.MQTT.Password = "*redacted*"
	return c
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// UintOr converts a raw config value, falling back to def when it is not a
// non-negative integer. The error tells why the fallback was used.
func UintOr(v any, def uint) (uint, error) {
	if v == nil {
		return def, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	u, err := cast.ToUintE(v)
	if err != nil {
		return def, err
	}
	return u, nil
}
