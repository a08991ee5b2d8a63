package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Remote struct {
		// SocketURL is the ws:// or wss:// endpoint accepting per-track
		// chunk channels.
		SocketURL string `yaml:"socket_url"`
		// APIURL is the base URL of the recording metadata service.
		APIURL           string        `yaml:"api_url"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
	} `yaml:"remote"`

	Ingest struct {
		// MaxParallel caps concurrent track loaders. 0 means
		// min(available parallelism, 8).
		MaxParallel int `yaml:"max_parallel"`
		// PrimeBytes is the initial burst pulled before opening the
		// container, so the demuxer can probe the format.
		PrimeBytes int `yaml:"prime_bytes"`
		// PacketBatch bounds how many demuxed packets one decode turn
		// requests.
		PacketBatch int `yaml:"packet_batch"`
		// QueueDepth is the chunk queue capacity between the channel's
		// receive loop and the pull reader.
		QueueDepth int `yaml:"queue_depth"`
	} `yaml:"ingest"`

	Output struct {
		Directory string `yaml:"directory"`
	} `yaml:"output"`

	Progress struct {
		// RendersPerSecond throttles duration-only re-renders of the
		// progress table; status transitions always render.
		RendersPerSecond float64 `yaml:"renders_per_second"`
	} `yaml:"progress"`

	Monitoring struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Remote.SocketURL == "" {
		return fmt.Errorf("remote.socket_url must not be empty")
	}
	if c.Remote.APIURL == "" {
		return fmt.Errorf("remote.api_url must not be empty")
	}
	if c.Remote.HandshakeTimeout <= 0 {
		return fmt.Errorf("remote.handshake_timeout must be > 0")
	}
	if c.Remote.WriteTimeout <= 0 {
		return fmt.Errorf("remote.write_timeout must be > 0")
	}

	if c.Ingest.MaxParallel < 0 {
		return fmt.Errorf("ingest.max_parallel must be >= 0")
	}
	if c.Ingest.PrimeBytes <= 0 {
		return fmt.Errorf("ingest.prime_bytes must be > 0")
	}
	if c.Ingest.PacketBatch <= 0 {
		return fmt.Errorf("ingest.packet_batch must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}

	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}

	if c.Progress.RendersPerSecond <= 0 {
		return fmt.Errorf("progress.renders_per_second must be > 0")
	}

	if c.Monitoring.Enabled && c.Monitoring.Address == "" {
		return fmt.Errorf("monitoring.address must not be empty when monitoring.enabled=true")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file is not an error: defaults are used.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Remote.SocketURL = "wss://localhost:8443/track"
	cfg.Remote.APIURL = "https://localhost:8443"
	cfg.Remote.HandshakeTimeout = 15 * time.Second
	cfg.Remote.WriteTimeout = 10 * time.Second

	cfg.Ingest.MaxParallel = 0 // min(available parallelism, 8)
	cfg.Ingest.PrimeBytes = 1 << 20
	cfg.Ingest.PacketBatch = 16
	cfg.Ingest.QueueDepth = 64

	cfg.Output.Directory = "tracks"

	cfg.Progress.RendersPerSecond = 4

	cfg.Monitoring.Enabled = false
	cfg.Monitoring.Address = ":9090"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "stemfetch"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("STEMFETCH_SOCKET_URL"); u != "" {
		c.Remote.SocketURL = u
	}
	if u := os.Getenv("STEMFETCH_API_URL"); u != "" {
		c.Remote.APIURL = u
	}
	if dir := os.Getenv("STEMFETCH_OUTPUT_DIR"); dir != "" {
		c.Output.Directory = dir
	}
	if level := os.Getenv("STEMFETCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if par := os.Getenv("STEMFETCH_MAX_PARALLEL"); par != "" {
		if n, err := strconv.Atoi(par); err == nil && n >= 0 {
			c.Ingest.MaxParallel = n
		}
	}
}
