// Package config loads the dapi service configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// Listen is the gRPC listen address.
	Listen string `yaml:"listen"`

	// MetricsListen is the prometheus listen address. Empty disables
	// the metrics endpoint.
	MetricsListen string `yaml:"metrics_listen"`

	// DataDir holds the packet and block database. Empty keeps
	// everything in memory.
	DataDir string `yaml:"data_dir"`

	Node   NodeConfig   `yaml:"node"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
}

// NodeConfig configures the ledger node connection.
type NodeConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// StartHeight is the first block to ingest when the block store
	// is empty.
	StartHeight uint64 `yaml:"start_height"`
}

// StreamConfig configures transaction streams.
type StreamConfig struct {
	// LiveBuffer is the per-session channel capacity for live blocks.
	LiveBuffer int `yaml:"live_buffer"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Listen:        "127.0.0.1:3010",
		MetricsListen: "127.0.0.1:9310",
		DataDir:       "data",
		Node: NodeConfig{
			URL:          "http://127.0.0.1:19998",
			PollInterval: 2 * time.Second,
		},
		Stream: StreamConfig{
			LiveBuffer: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if err := checkAddr(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if c.MetricsListen != "" {
		if err := checkAddr(c.MetricsListen); err != nil {
			errs = append(errs, fmt.Errorf("metrics_listen: %w", err))
		}
	}
	if c.Node.URL == "" {
		errs = append(errs, errors.New("node.url: required"))
	}
	if c.Node.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("node.poll_interval: must be positive, got %s", c.Node.PollInterval))
	}
	if c.Stream.LiveBuffer <= 0 {
		errs = append(errs, fmt.Errorf("stream.live_buffer: must be positive, got %d", c.Stream.LiveBuffer))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func checkAddr(addr string) error {
	if addr == "" {
		return errors.New("required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return err
	}
	return nil
}
