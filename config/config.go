// Package config loads and validates the runtime configuration from JSON,
// with environment overrides for deployment-specific settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/c360/edgetwin/errors"
	"github.com/c360/edgetwin/process"
)

const envPrefix = "EDGETWIN"

// Duration is a time.Duration that marshals as a duration string and
// accepts both strings ("50ms") and raw nanosecond integers in JSON.
type Duration time.Duration

// Std returns the standard library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", val, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %s", string(data))
	}
}

// Config is the complete application configuration.
type Config struct {
	Version string                 `json:"version"`
	NATS    NATSConfig             `json:"nats"`
	Buffer  BufferConfig           `json:"buffer"`
	Loops   LoopConfig             `json:"loops"`
	ML      MLConfig               `json:"ml"`
	Gateway GatewayConfig          `json:"gateway"`
	Catalog []process.CatalogEntry `json:"catalog,omitempty"`
}

// NATSConfig configures the broker connection and subjects.
type NATSConfig struct {
	URL              string   `json:"url"`
	Name             string   `json:"name"`
	TelemetrySubject string   `json:"telemetry_subject"`
	ControlSubject   string   `json:"control_subject"`
	ReconnectWait    Duration `json:"reconnect_wait"`
	Timeout          Duration `json:"timeout"`
}

// BufferConfig sizes the sample buffer.
type BufferConfig struct {
	Capacity int `json:"capacity"`
}

// LoopConfig sets the scheduler periods.
type LoopConfig struct {
	Ingest    Duration `json:"ingest"`
	Physics   Duration `json:"physics"`
	Inference Duration `json:"inference"`
	Monitor   Duration `json:"monitor"`
}

// MLConfig tunes the inference engine.
type MLConfig struct {
	MinTrainingSamples int `json:"min_training_samples"`
}

// GatewayConfig configures the HTTP surface.
type GatewayConfig struct {
	Addr string `json:"addr"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		NATS: NATSConfig{
			URL:              "nats://localhost:4222",
			Name:             "edgetwin",
			TelemetrySubject: "edgetwin.telemetry.frames",
			ControlSubject:   "edgetwin.control.commands",
			ReconnectWait:    Duration(2 * time.Second),
			Timeout:          Duration(5 * time.Second),
		},
		Buffer: BufferConfig{Capacity: 10000},
		Loops: LoopConfig{
			Ingest:    Duration(50 * time.Millisecond),
			Physics:   Duration(100 * time.Millisecond),
			Inference: Duration(time.Second),
			Monitor:   Duration(10 * time.Second),
		},
		ML:      MLConfig{MinTrainingSamples: 50},
		Gateway: GatewayConfig{Addr: ":8080"},
		Catalog: process.DefaultCatalog(),
	}
}

// Load reads the config file, merges it over the defaults, applies
// environment overrides, and validates the result. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "reading config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parsing config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(envPrefix + "_GATEWAY_ADDR"); val != "" {
		cfg.Gateway.Addr = val
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("empty NATS url"),
			"config", "Validate", "nats validation")
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return errors.WrapInvalid(fmt.Errorf("NATS url must use nats:// or tls:// scheme"),
			"config", "Validate", "nats validation")
	}
	if c.NATS.TelemetrySubject == "" || c.NATS.ControlSubject == "" {
		return errors.WrapInvalid(fmt.Errorf("empty NATS subject"),
			"config", "Validate", "subject validation")
	}
	if c.Buffer.Capacity <= 0 {
		return errors.WrapInvalid(fmt.Errorf("buffer capacity must be positive, got %d", c.Buffer.Capacity),
			"config", "Validate", "buffer validation")
	}
	for _, d := range []Duration{c.Loops.Ingest, c.Loops.Physics, c.Loops.Inference, c.Loops.Monitor} {
		if d <= 0 {
			return errors.WrapInvalid(fmt.Errorf("loop periods must be positive"),
				"config", "Validate", "loop validation")
		}
	}
	if c.ML.MinTrainingSamples <= 0 {
		return errors.WrapInvalid(fmt.Errorf("min training samples must be positive, got %d", c.ML.MinTrainingSamples),
			"config", "Validate", "ml validation")
	}
	if len(c.Catalog) == 0 {
		return errors.WrapInvalid(fmt.Errorf("empty process catalog"),
			"config", "Validate", "catalog validation")
	}
	seen := make(map[string]bool, len(c.Catalog))
	for _, entry := range c.Catalog {
		if entry.ID == "" || entry.TargetCycleTime <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("catalog entry %q needs an id and a positive target cycle time", entry.ID),
				"config", "Validate", "catalog validation")
		}
		if seen[entry.ID] {
			return errors.WrapInvalid(fmt.Errorf("duplicate catalog id %q", entry.ID),
				"config", "Validate", "catalog validation")
		}
		seen[entry.ID] = true
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to the configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a config for concurrent access.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(fmt.Errorf("nil config"),
			"config", "Update", "config validation")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
