// Package config loads go-rebel settings from the environment, an optional
// .env file and YAML geometry files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort            = "8080"
	DefaultServerURL       = "ws://localhost:8080"
	DefaultWaypointDir     = "./waypoints"
	DefaultRedisAddr       = "localhost:6379"
	DefaultMQTTTopicPrefix = "rebel"
	DefaultSerialBaud      = 115200
	DefaultDebounce        = 100 * time.Millisecond
	DefaultReportInterval  = 200 * time.Millisecond
)

// Waypoint backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Arm drivers.
const (
	DriverSim    = "sim"
	DriverSerial = "serial"
)

// Config holds settings shared by the server, the agent and the CLI.
type Config struct {
	// Server
	Port     string
	Debug    bool
	LogLevel string

	// Waypoints
	WaypointBackend string
	WaypointDir     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisKey        string

	// Telemetry, disabled when MQTTBroker is empty
	MQTTBroker      string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTQoS         byte

	// Operator and agent
	ServerURL      string
	RobotID        string
	GeometryFile   string
	Debounce       time.Duration
	Driver         string
	SerialPort     string
	SerialBaud     int
	SettingsFile   string
	ReportInterval time.Duration
}

// Load reads files (default ".env") into the environment, then builds a
// Config. Missing env files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:     getEnv("PORT", DefaultPort),
		Debug:    getEnvBool("DEBUG", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WaypointBackend: strings.ToLower(getEnv("WAYPOINT_BACKEND", BackendFile)),
		WaypointDir:     getEnv("WAYPOINT_DIR", DefaultWaypointDir),
		RedisAddr:       getEnv("REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RedisKey:        getEnv("REDIS_WAYPOINT_KEY", "rebel:waypoints"),

		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", DefaultMQTTTopicPrefix),
		MQTTQoS:         byte(getEnvInt("MQTT_QOS", 0)),

		ServerURL:      getEnv("REBEL_SERVER", DefaultServerURL),
		RobotID:        getEnv("ROBOT_ID", "1"),
		GeometryFile:   getEnv("GEOMETRY_FILE", ""),
		Debounce:       getEnvDuration("DEBOUNCE", DefaultDebounce),
		Driver:         strings.ToLower(getEnv("ARM_DRIVER", DriverSim)),
		SerialPort:     getEnv("SERIAL_PORT", ""),
		SerialBaud:     getEnvInt("SERIAL_BAUD", DefaultSerialBaud),
		SettingsFile:   getEnv("AGENT_SETTINGS", "./rebel-agent.yaml"),
		ReportInterval: getEnvDuration("REPORT_INTERVAL", DefaultReportInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.WaypointBackend {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown waypoint backend %q", c.WaypointBackend)
	}
	switch c.Driver {
	case DriverSim:
	case DriverSerial:
		if c.SerialPort == "" {
			return errors.New("serial driver needs SERIAL_PORT")
		}
	default:
		return fmt.Errorf("unknown arm driver %q", c.Driver)
	}
	if c.MQTTQoS > 2 {
		return fmt.Errorf("invalid MQTT QoS %d", c.MQTTQoS)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
