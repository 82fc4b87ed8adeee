package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	Remote     RemoteConfig     `yaml:"remote"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Geofence   GeofenceConfig   `yaml:"geofence"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Network    NetworkConfig    `yaml:"network"`
}

type AgentConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// Путь к локальной sqlite-базе (очередь, кэш, снапшоты).
	StorePath string `yaml:"store_path"`

	QueueSafetyFlushSeconds int `yaml:"queue_safety_flush_seconds"`
	SyncIntervalSeconds     int `yaml:"sync_interval_seconds"`
}

type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RatePerSecond  int    `yaml:"rate_per_second"`
}

// RedisConfig is optional: when Host is empty the agent caches enrichment
// in the local sqlite store instead.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// KafkaConfig is optional applied-operation telemetry. Empty host disables it.
type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	OperationAppliedTopic string `yaml:"operation_applied_topic"`
}

type GeofenceConfig struct {
	FarDistanceMeters       float64 `yaml:"far_distance_meters"`
	NearDistanceMeters      float64 `yaml:"near_distance_meters"`
	LowIntervalSeconds      int     `yaml:"low_interval_seconds"`
	BalancedIntervalSeconds int     `yaml:"balanced_interval_seconds"`
	HighIntervalSeconds     int     `yaml:"high_interval_seconds"`
}

type EnrichmentConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`

	WeatherProvider string `yaml:"weather_provider"` // "openweather" | "fake"
	WeatherBaseURL  string `yaml:"weather_base_url"`
	WeatherAPIKey   string `yaml:"weather_api_key"`

	TravelProvider string `yaml:"travel_provider"` // "osrm" | "fake"
	TravelBaseURL  string `yaml:"travel_base_url"`
}

type NetworkConfig struct {
	Mode                 string `yaml:"mode"` // "probe" | "manual"
	ProbeURL             string `yaml:"probe_url"`
	ProbeIntervalSeconds int    `yaml:"probe_interval_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.HTTPAddr == "" {
		c.Agent.HTTPAddr = ":8080"
	}
	if c.Agent.StorePath == "" {
		c.Agent.StorePath = "fieldsync.db"
	}
	if c.Agent.QueueSafetyFlushSeconds <= 0 {
		c.Agent.QueueSafetyFlushSeconds = 30
	}
	if c.Agent.SyncIntervalSeconds <= 0 {
		c.Agent.SyncIntervalSeconds = 300
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = 10
	}
	if c.Enrichment.TTLSeconds <= 0 {
		c.Enrichment.TTLSeconds = 3600
	}
	if c.Network.Mode == "" {
		c.Network.Mode = "manual"
	}
	if c.Network.ProbeIntervalSeconds <= 0 {
		c.Network.ProbeIntervalSeconds = 15
	}
}

func (c *Config) QueueSafetyFlush() time.Duration {
	return time.Duration(c.Agent.QueueSafetyFlushSeconds) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Agent.SyncIntervalSeconds) * time.Second
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

func (c *Config) EnrichmentTTL() time.Duration {
	return time.Duration(c.Enrichment.TTLSeconds) * time.Second
}

func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Network.ProbeIntervalSeconds) * time.Second
}
