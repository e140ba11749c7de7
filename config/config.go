package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/pipeline"
)

// Default values
const (
	DefaultHTTPAddr         = ":8080"
	DefaultNATSURL          = "nats://localhost:4222"
	DefaultWorkers          = 2
	DefaultQueueSize        = 64
	DefaultCallbackRetries  = 3
	DefaultCallbackTimeout  = 10 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultOptionalPipeline = "*"

	envPrefix = "CONVSTREAMS_"
)

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL           string `json:"url"`
	ClientName    string `json:"clientName,omitempty"`
	MaxReconnects int    `json:"maxReconnects,omitempty"`
	// Embedded selects the in-memory store instead of NATS KV. The NATS
	// connection (and completion events) are skipped entirely.
	Embedded bool `json:"embedded,omitempty"`
}

// PipelineConfig holds the comma-separated stage selection lists.
type PipelineConfig struct {
	Required string `json:"required"`
	Optional string `json:"optional"`
}

// Resolve parses the lists into the pipeline's stage selection config.
func (p PipelineConfig) Resolve() pipeline.Config {
	return pipeline.Config{
		Required: splitList(p.Required),
		Optional: splitList(p.Optional),
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ProcessingConfig bounds the async dispatcher.
type ProcessingConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// CallbackConfig controls result delivery to callback URIs.
type CallbackConfig struct {
	MaxRetries int           `json:"maxRetries"`
	Timeout    time.Duration `json:"timeout"`
	Proxy      string        `json:"proxy,omitempty"`
}

// UnmarshalJSON accepts the timeout as a duration string ("10s").
func (c *CallbackConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		MaxRetries int    `json:"maxRetries"`
		Timeout    string `json:"timeout"`
		Proxy      string `json:"proxy"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.MaxRetries = raw.MaxRetries
	c.Proxy = raw.Proxy
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("callback timeout: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// Config is the root service configuration.
type Config struct {
	Service    string                `json:"service"`
	LogLevel   string                `json:"logLevel"`
	HTTPAddr   string                `json:"httpAddr"`
	NATS       NATSConfig            `json:"nats"`
	Pipeline   PipelineConfig        `json:"pipeline"`
	Processing ProcessingConfig      `json:"processing"`
	Callback   CallbackConfig        `json:"callback"`
	Clients    []ClientConfiguration `json:"clients,omitempty"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Service:  "convstreams",
		LogLevel: "info",
		HTTPAddr: DefaultHTTPAddr,
		NATS: NATSConfig{
			URL:           DefaultNATSURL,
			ClientName:    "convstreams",
			MaxReconnects: -1,
		},
		Pipeline: PipelineConfig{
			Optional: DefaultOptionalPipeline,
		},
		Processing: ProcessingConfig{
			Workers:   DefaultWorkers,
			QueueSize: DefaultQueueSize,
		},
		Callback: CallbackConfig{
			MaxRetries: DefaultCallbackRetries,
			Timeout:    DefaultCallbackTimeout,
		},
	}
}

// Load reads configuration from an optional JSON file, applies environment
// overrides, and validates the result. An empty path loads defaults plus
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv(envPrefix + "NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(envPrefix + "NATS_EMBEDDED"); v != "" {
		c.NATS.Embedded = v == "true" || v == "1"
	}
	if v := os.Getenv(envPrefix + "PIPELINE_REQUIRED"); v != "" {
		c.Pipeline.Required = v
	}
	if v := os.Getenv(envPrefix + "PIPELINE_OPTIONAL"); v != "" {
		c.Pipeline.Optional = v
	}
	if v := os.Getenv(envPrefix + "WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Processing.Workers = n
		}
	}
	if v := os.Getenv(envPrefix + "QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Processing.QueueSize = n
		}
	}
	if v := os.Getenv(envPrefix + "CALLBACK_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Callback.MaxRetries = n
		}
	}
	if v := os.Getenv(envPrefix + "CALLBACK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Callback.Timeout = d
		}
	}
	if v := os.Getenv(envPrefix + "CALLBACK_PROXY"); v != "" {
		c.Callback.Proxy = v
	}
}

// Validate checks the configuration for consistency, including the
// per-client component configuration blocks.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "httpAddr")
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "nats.url")
	}
	if c.Processing.Workers < 0 || c.Processing.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "processing bounds")
	}
	if c.Callback.MaxRetries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "callback retries")
	}

	seen := make(map[string]bool, len(c.Clients))
	for i := range c.Clients {
		client := &c.Clients[i]
		if client.Client == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("clients[%d] missing client id", i))
		}
		if seen[client.Client] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				"duplicate client "+client.Client)
		}
		seen[client.Client] = true

		if err := client.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ClientConfig returns the component configuration for a client, or nil
// when the client has no dedicated block.
func (c *Config) ClientConfig(client string) *ClientConfiguration {
	for i := range c.Clients {
		if c.Clients[i].Client == client {
			return &c.Clients[i]
		}
	}
	return nil
}
