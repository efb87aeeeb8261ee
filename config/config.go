package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v2"
)

const (
	// DefaultUserAgent identifies the harvester to remote sites.
	DefaultUserAgent = "Harvester/0.2"

	// DefaultTimeout bounds an entire fetch, headers and body included.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the per-host fetch rate in requests per second.
	DefaultRateLimit = 1.0

	// DefaultMaxResponseSize caps how many bytes a single fetch may read.
	DefaultMaxResponseSize = 10 * 1024 * 1024
)

// Engine holds the harvest engine settings supplied at plugin initialization.
type Engine struct {
	UserAgent       string
	Timeout         time.Duration
	RespectRobots   bool
	RateLimit       float64
	MaxResponseSize int64
	AllowPrivateIPs bool
}

// DefaultEngine returns the engine settings with all defaults applied.
func DefaultEngine() Engine {
	return Engine{
		UserAgent:       DefaultUserAgent,
		Timeout:         DefaultTimeout,
		RespectRobots:   true,
		RateLimit:       DefaultRateLimit,
		MaxResponseSize: DefaultMaxResponseSize,
		AllowPrivateIPs: false,
	}
}

// EngineFromMap builds engine settings from the string config map passed to
// Initialize. Unknown keys are ignored; malformed values are an error.
func EngineFromMap(m map[string]string) (Engine, error) {
	cfg := DefaultEngine()

	if v, ok := m["user_agent"]; ok && v != "" {
		cfg.UserAgent = v
	}

	if v, ok := m["timeout"]; ok {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		cfg.Timeout = time.Duration(seconds) * time.Second
	}

	if v, ok := m["respect_robots"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid respect_robots %q: %w", v, err)
		}
		cfg.RespectRobots = b
	}

	if v, ok := m["rate_limit"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid rate_limit %q: %w", v, err)
		}
		cfg.RateLimit = f
	}

	if v, ok := m["max_response_size"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid max_response_size %q: %w", v, err)
		}
		cfg.MaxResponseSize = n
	}

	if v, ok := m["allow_private_ips"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid allow_private_ips %q: %w", v, err)
		}
		cfg.AllowPrivateIPs = b
	}

	return cfg, nil
}

// Server holds settings for the standalone daemon.
type Server struct {
	Addr          string            `yaml:"addr"`
	LogLevel      string            `yaml:"log_level"`
	RedisURL      string            `yaml:"redis_url"`
	RequestLimit  int               `yaml:"request_limit"`
	RequestWindow time.Duration     `yaml:"request_window"`
	SinkEndpoint  string            `yaml:"sink_endpoint"`
	QueueEndpoint string            `yaml:"queue_endpoint"`
	AuthToken     string            `yaml:"auth_token"`
	Engine        map[string]string `yaml:"engine"`
}

// DefaultServer returns daemon settings with defaults applied.
func DefaultServer() *Server {
	return &Server{
		Addr:          ":8080",
		LogLevel:      "info",
		RequestLimit:  100,
		RequestWindow: time.Minute,
	}
}

// LoadServer reads daemon settings from a YAML file, filling in defaults
// for anything unset.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultServer()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 100
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = time.Minute
	}

	return cfg, nil
}
