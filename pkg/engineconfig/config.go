// Package engineconfig loads the engine's runtime configuration, grounded on
// the teacher's pkg/infrastructure/config.Config: a plain JSON/YAML-tagged
// struct, loaded from an optional file, then overridden by environment
// variables, then validated.
package engineconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable the core reads at query setup.
type Config struct {
	Buffer  BufferConfig  `json:"buffer" yaml:"buffer"`
	Worker  WorkerConfig  `json:"worker" yaml:"worker"`
	TCP     TCPConfig     `json:"tcp" yaml:"tcp"`
	Join    JoinConfig    `json:"join" yaml:"join"`
	Network NetworkConfig `json:"network" yaml:"network"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// BufferConfig sizes the global tuple buffer pool (spec.md §4.1).
type BufferConfig struct {
	SegmentSize  int `json:"segment_size" yaml:"segment_size"`
	Alignment    int `json:"alignment" yaml:"alignment"`
	Capacity     int `json:"capacity" yaml:"capacity"`
	StandbyLimit int `json:"standby_limit" yaml:"standby_limit"`
}

// WorkerConfig sizes the fixed worker thread pool (spec.md §4.2).
type WorkerConfig struct {
	Count     int `json:"count" yaml:"count"`
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// TCPConfig configures a TCP source (spec.md §6, "TCP source configuration keys").
type TCPConfig struct {
	Host                       string `json:"host" yaml:"host"`
	Port                       int    `json:"port" yaml:"port"`
	SocketType                 string `json:"type" yaml:"type"`   // stream | dgram
	SocketDomain               string `json:"domain" yaml:"domain"` // inet | inet6
	Format                     string `json:"format" yaml:"format"`
	DecideMessageSize          string `json:"decide_message_size" yaml:"decide_message_size"`
	TupleSeparator             string `json:"tuple_separator" yaml:"tuple_separator"`
	FixedBufferSize            int    `json:"socket_buffer_size" yaml:"socket_buffer_size"`
	LengthPrefixWidth          int    `json:"socket_buffer_transfer_size" yaml:"socket_buffer_transfer_size"`
	FlushIntervalMillis        int    `json:"flush_interval_ms" yaml:"flush_interval_ms"`
	RingBufferPages            int    `json:"ring_buffer_pages" yaml:"ring_buffer_pages"`
}

// JoinConfig bounds the stream join's spill-to-disk memory controller
// (spec.md §4.6).
type JoinConfig struct {
	MemoryBudgetBytes int    `json:"memory_budget_bytes" yaml:"memory_budget_bytes"`
	WorkingDir        string `json:"working_dir" yaml:"working_dir"`
	MaxOpenWriters    int    `json:"max_open_writers" yaml:"max_open_writers"`
	FileDescriptorCap int    `json:"file_descriptor_cap" yaml:"file_descriptor_cap"`
}

// NetworkConfig configures channel transport timeouts (spec.md §4.7).
type NetworkConfig struct {
	LowWatermarkDeque int `json:"low_watermark_deque" yaml:"low_watermark_deque"`
	HighWatermarkDeque int `json:"high_watermark_deque" yaml:"high_watermark_deque"`
	DialTimeoutMillis int `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
}

// LoggingConfig configures enginelog.Logger construction.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns sensible defaults for a single-process engine.
func DefaultConfig() *Config {
	return &Config{
		Buffer: BufferConfig{
			SegmentSize:  64 * 1024,
			Alignment:    64,
			Capacity:     256,
			StandbyLimit: 8,
		},
		Worker: WorkerConfig{
			Count:     8,
			QueueSize: 1024,
		},
		TCP: TCPConfig{
			SocketType:           "stream",
			SocketDomain:         "inet",
			DecideMessageSize:    "tuple_separator",
			TupleSeparator:       "\n",
			FixedBufferSize:      4096,
			LengthPrefixWidth:    4,
			FlushIntervalMillis:  10,
			RingBufferPages:      4,
		},
		Join: JoinConfig{
			MemoryBudgetBytes: 64 * 1024 * 1024,
			WorkingDir:        os.TempDir(),
			MaxOpenWriters:    16,
			FileDescriptorCap: 256,
		},
		Network: NetworkConfig{
			LowWatermarkDeque:  16,
			HighWatermarkDeque: 256,
			DialTimeoutMillis:  5000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a JSON configuration file (if configPath is non-empty),
// applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("engineconfig: failed to load config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engineconfig: invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("STREAMENGINE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.Count = n
		}
	}
	if v := os.Getenv("STREAMENGINE_BUFFER_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Buffer.Capacity = n
		}
	}
	if v := os.Getenv("STREAMENGINE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations that would violate a core invariant
// before any pipeline is set up (spec.md §7, "configuration inconsistency
// at setup").
func (c *Config) Validate() error {
	if c.Buffer.SegmentSize <= 0 {
		return fmt.Errorf("buffer.segment_size must be positive")
	}
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be positive")
	}
	if c.Buffer.Alignment <= 0 || c.Buffer.Alignment&(c.Buffer.Alignment-1) != 0 {
		return fmt.Errorf("buffer.alignment must be a power of two")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be positive")
	}
	if c.TCP.DecideMessageSize != "tuple_separator" && c.TCP.DecideMessageSize != "user_specified_buffer_size" && c.TCP.DecideMessageSize != "buffer_size_from_socket" {
		return fmt.Errorf("tcp.decide_message_size %q is not one of tuple_separator|user_specified_buffer_size|buffer_size_from_socket", c.TCP.DecideMessageSize)
	}
	return nil
}
