// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the pacesim configuration from the environment.
//
// [Load] starts from defaults matching the classic experiment and
// applies PACESIM_* environment variable overrides. Values may carry
// inline comments (e.g., "2ms # one way"), as systemd environment
// files and .env files often do.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/scenario"
)

// Environment variable names.
const (
	EnvLatency             = "PACESIM_LATENCY"
	EnvBandwidth           = "PACESIM_BANDWIDTH"
	EnvBottleneckBandwidth = "PACESIM_BOTTLENECK_BANDWIDTH"
	EnvErrorRate           = "PACESIM_ERROR_RATE"
	EnvSeed                = "PACESIM_SEED"
	EnvStop                = "PACESIM_STOP"
	EnvLogLevel            = "PACESIM_LOG_LEVEL"
	EnvMetricsEnabled      = "PACESIM_METRICS_ENABLED"
	EnvMetricsBind         = "PACESIM_METRICS_BIND"
	EnvMQTTBrokerURL       = "PACESIM_MQTT_BROKER_URL"
	EnvMQTTClientID        = "PACESIM_MQTT_CLIENT_ID"
	EnvMQTTTopicPrefix     = "PACESIM_MQTT_TOPIC_PREFIX"
	EnvMQTTQoS             = "PACESIM_MQTT_QOS"
	EnvMQTTUsername        = "PACESIM_MQTT_USERNAME"
	EnvMQTTPassword        = "PACESIM_MQTT_PASSWORD"
)

const (
	defaultMetricsBind     = "127.0.0.1:9464"
	defaultMQTTTopicPrefix = "pacesim"
)

// Simulation contains the experiment parameters.
type Simulation struct {
	Latency             time.Duration     // propagation delay of every link
	Bandwidth           datarate.DataRate // access link rate
	BottleneckBandwidth datarate.DataRate // bottleneck link rate
	ErrorRate           float64           // per-byte receive error rate in [0, 1]
	Seed                uint64            // error model seed
	Stop                time.Duration     // simulation end
}

// Metrics contains the Prometheus endpoint configuration.
type Metrics struct {
	Enabled bool   // serve /metrics after the run
	Bind    string // listen address (e.g., "127.0.0.1:9464")
}

// MQTT contains the trace export configuration. Export is
// disabled when BrokerURL is empty.
type MQTT struct {
	BrokerURL   string // e.g., "tcp://127.0.0.1:1883"
	ClientID    string // optional; generated when empty
	TopicPrefix string // topics are <prefix>/<session>/<kind>
	QoS         byte   // 0 or 1
	Username    string // optional
	Password    string // optional
}

// Config holds the complete configuration.
type Config struct {
	Simulation Simulation
	Metrics    Metrics
	MQTT       MQTT
	LogLevel   slog.Level
}

// Default returns the default configuration.
func Default() Config {
	params := scenario.Defaults()
	return Config{
		Simulation: Simulation{
			Latency:             params.Delay,
			Bandwidth:           params.LinkRate,
			BottleneckBandwidth: params.BottleneckRate,
			ErrorRate:           params.ErrorRate,
			Seed:                params.Seed,
			Stop:                params.StopAt,
		},
		Metrics: Metrics{
			Enabled: false,
			Bind:    defaultMetricsBind,
		},
		MQTT: MQTT{
			TopicPrefix: defaultMQTTTopicPrefix,
		},
		LogLevel: slog.LevelWarn,
	}
}

// Load reads the configuration from environment variables and returns
// a validated [Config]. Unset variables keep their default value.
func Load() (Config, error) {
	cfg := Default()
	if err := applySimulationEnvVars(&cfg); err != nil {
		return cfg, err
	}
	if err := applyMetricsEnvVars(&cfg); err != nil {
		return cfg, err
	}
	if err := applyMQTTEnvVars(&cfg); err != nil {
		return cfg, err
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", EnvLogLevel, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applySimulationEnvVars(cfg *Config) (err error) {
	sim := &cfg.Simulation
	if sim.Latency, err = ParseDurationEnv(EnvLatency, sim.Latency); err != nil {
		return err
	}
	if sim.Bandwidth, err = ParseDataRateEnv(EnvBandwidth, sim.Bandwidth); err != nil {
		return err
	}
	if sim.BottleneckBandwidth, err = ParseDataRateEnv(EnvBottleneckBandwidth, sim.BottleneckBandwidth); err != nil {
		return err
	}
	if v, ok := lookupEnv(EnvErrorRate); ok {
		if sim.ErrorRate, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("config: %s: %w", EnvErrorRate, err)
		}
	}
	if v, ok := lookupEnv(EnvSeed); ok {
		if sim.Seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return fmt.Errorf("config: %s: %w", EnvSeed, err)
		}
	}
	if sim.Stop, err = ParseDurationEnv(EnvStop, sim.Stop); err != nil {
		return err
	}
	return nil
}

func applyMetricsEnvVars(cfg *Config) (err error) {
	if cfg.Metrics.Enabled, err = ParseBoolEnv(EnvMetricsEnabled, cfg.Metrics.Enabled); err != nil {
		return err
	}
	cfg.Metrics.Bind = GetEnvDefault(EnvMetricsBind, cfg.Metrics.Bind)
	return nil
}

func applyMQTTEnvVars(cfg *Config) error {
	cfg.MQTT.BrokerURL = GetEnvDefault(EnvMQTTBrokerURL, cfg.MQTT.BrokerURL)
	cfg.MQTT.ClientID = getEnvVerbatim(EnvMQTTClientID, cfg.MQTT.ClientID)
	cfg.MQTT.TopicPrefix = strings.Trim(GetEnvDefault(EnvMQTTTopicPrefix, cfg.MQTT.TopicPrefix), "/")
	cfg.MQTT.Username = getEnvVerbatim(EnvMQTTUsername, cfg.MQTT.Username)
	cfg.MQTT.Password = getEnvVerbatim(EnvMQTTPassword, cfg.MQTT.Password)
	if v, ok := lookupEnv(EnvMQTTQoS); ok {
		qos, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be a number (0 or 1)", EnvMQTTQoS)
		}
		// clamp to [0, 1]
		cfg.MQTT.QoS = byte(min(max(qos, 0), 1))
	}
	return nil
}

// Validate returns an error if the configuration is not usable.
func (cfg *Config) Validate() error {
	sim := &cfg.Simulation
	switch {
	case sim.Latency < 0:
		return errors.New("config: latency must not be negative")
	case sim.Bandwidth <= 0:
		return errors.New("config: bandwidth must be positive")
	case sim.BottleneckBandwidth <= 0:
		return errors.New("config: bottleneck bandwidth must be positive")
	case sim.ErrorRate < 0 || sim.ErrorRate > 1:
		return fmt.Errorf("config: error rate must be in [0, 1], got %g", sim.ErrorRate)
	case sim.Stop <= 0:
		return errors.New("config: stop time must be positive")
	case cfg.Metrics.Enabled && cfg.Metrics.Bind == "":
		return fmt.Errorf("config: %s is required when metrics are enabled", EnvMetricsBind)
	case cfg.MQTT.BrokerURL != "" && cfg.MQTT.TopicPrefix == "":
		return fmt.Errorf("config: %s must not be empty", EnvMQTTTopicPrefix)
	}
	return nil
}

// Params returns the scenario parameters.
func (cfg *Config) Params() scenario.Params {
	return scenario.Params{
		LinkRate:       cfg.Simulation.Bandwidth,
		BottleneckRate: cfg.Simulation.BottleneckBandwidth,
		Delay:          cfg.Simulation.Latency,
		ErrorRate:      cfg.Simulation.ErrorRate,
		Seed:           cfg.Simulation.Seed,
		StopAt:         cfg.Simulation.Stop,
	}
}

// cleanEnvValue trims whitespace and strips inline comments.
func cleanEnvValue(value string) string {
	cleaned := strings.TrimSpace(value)
	if idx := strings.Index(cleaned, "#"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned
}

// lookupEnv returns the cleaned value of a variable and whether it
// is set to a non-empty value.
func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	cleaned := cleanEnvValue(value)
	return cleaned, cleaned != ""
}

// GetEnvDefault retrieves an environment variable or returns a fallback value.
// Empty or whitespace-only values are treated as unset.
func GetEnvDefault(key, fallback string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvVerbatim is like [GetEnvDefault] but keeps "#" characters, since
// credentials and identifiers may legitimately contain them.
func getEnvVerbatim(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// ParseDurationEnv reads a duration such as "2ms" or "20s".
func ParseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

// ParseDataRateEnv reads a data rate such as "5Mbps" or "1000kb/s".
func ParseDataRateEnv(key string, fallback datarate.DataRate) (datarate.DataRate, error) {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := datarate.Parse(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

// ParseBoolEnv reads a boolean accepting 1/0, true/false, yes/no and on/off.
func ParseBoolEnv(key string, fallback bool) (bool, error) {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return fallback, fmt.Errorf("config: %s has unrecognised boolean value %q", key, value)
	}
}
