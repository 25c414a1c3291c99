// Package config loads this library's YAML configuration, mirroring the
// teacher's internal/bridges/knx/config.go shape: a root struct per
// subsystem, environment variable overrides, and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a host application embedding this
// library. Every section is optional except Routing/Tunnel, exactly one of
// which a host typically enables.
type Config struct {
	Routing   RoutingConfig   `yaml:"routing"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
	Cache     CacheConfig     `yaml:"cache"`
	MQTT      MQTTBridgeConfig `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Store     StoreConfig     `yaml:"store"`
	StatusAPI StatusAPIConfig `yaml:"status_api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RoutingConfig configures a routing.Client.
type RoutingConfig struct {
	Enabled         bool              `yaml:"enabled"`
	MulticastIP     string            `yaml:"multicast_ip"`
	Port            int               `yaml:"port"`
	LocalIP         string            `yaml:"local_ip"`
	SourceAddress   string            `yaml:"source_address"`
	AllowUnknownGPA bool              `yaml:"allow_unknown_gpa"`
	GroupAddresses  map[string]string `yaml:"group_addresses"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
}

// TunnelConfig configures a tunnel.Client.
type TunnelConfig struct {
	Enabled         bool              `yaml:"enabled"`
	Host            string            `yaml:"host"`
	Port            int               `yaml:"port"`
	SourceAddress   string            `yaml:"source_address"`
	AllowUnknownGPA bool              `yaml:"allow_unknown_gpa"`
	GroupAddresses  map[string]string `yaml:"group_addresses"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
}

// CacheConfig configures the address-value cache's hydration behaviour.
type CacheConfig struct {
	HydrateFromBus bool          `yaml:"hydrate_from_bus"`
	HydrateTimeout time.Duration `yaml:"hydrate_timeout"`
}

// MQTTBridgeConfig configures the optional mqttbridge publisher/subscriber.
type MQTTBridgeConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	QoS          byte   `yaml:"qos"`
	TopicPrefix  string `yaml:"topic_prefix"`
}

// InfluxDBConfig configures the optional telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     uint          `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// StoreConfig configures the optional SQLite persistence layer.
type StoreConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StatusAPIConfig configures the optional chi status server.
type StatusAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, and validates the result. Environment variables follow the
// pattern KNXNETIP_SECTION_KEY.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Routing: RoutingConfig{
			MulticastIP:    "224.0.23.12",
			Port:           3671,
			RequestTimeout: 5 * time.Second,
		},
		Tunnel: TunnelConfig{
			Port:           3671,
			RequestTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			HydrateTimeout: 5 * time.Second,
		},
		MQTT: MQTTBridgeConfig{
			ClientID:    "knxnetip",
			QoS:         1,
			TopicPrefix: "knx",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     20,
			FlushInterval: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:        "./knxnetip.db",
			BusyTimeout: 5000,
		},
		StatusAPI: StatusAPIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KNXNETIP_ROUTING_MULTICAST_IP"); v != "" {
		cfg.Routing.MulticastIP = v
	}
	if v := os.Getenv("KNXNETIP_TUNNEL_HOST"); v != "" {
		cfg.Tunnel.Host = v
	}
	if v := os.Getenv("KNXNETIP_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("KNXNETIP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("KNXNETIP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("KNXNETIP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("KNXNETIP_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

// Validate checks for required fields and obviously invalid values.
func (c *Config) Validate() error {
	var errs []string

	if !c.Routing.Enabled && !c.Tunnel.Enabled {
		errs = append(errs, "at least one of routing.enabled or tunnel.enabled must be true")
	}
	if c.Routing.Enabled && c.Routing.SourceAddress == "" {
		errs = append(errs, "routing.source_address is required when routing.enabled")
	}
	if c.Tunnel.Enabled && c.Tunnel.Host == "" {
		errs = append(errs, "tunnel.host is required when tunnel.enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt.enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb.enabled")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		errs = append(errs, "store.path is required when store.enabled")
	}
	if c.StatusAPI.Enabled && (c.StatusAPI.Port < 1 || c.StatusAPI.Port > 65535) {
		errs = append(errs, "status_api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
