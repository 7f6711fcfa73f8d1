// Package config loads the link configuration from a JSON or YAML file.
// Every field is optional; the Get* accessors supply defaults for anything
// the file leaves out, so partial files are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/gnsslink/internal/gnsslink"
	"github.com/banshee-data/gnsslink/internal/serialport"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/gnsslink.defaults.json"

const (
	DefaultPort   = "/dev/ttyUSB0"
	DefaultListen = "localhost:8090"
)

// maxFileSize caps configuration files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// LinkConfig is the on-disk configuration of the link manager.
type LinkConfig struct {
	// Transport
	Port        *string `json:"port,omitempty" yaml:"port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // duration string like "50ms"

	// Protocol
	ProbeCommand        *string `json:"probe_command,omitempty" yaml:"probe_command,omitempty"`
	CandidateBauds      []int   `json:"candidate_bauds,omitempty" yaml:"candidate_bauds,omitempty"`
	ReadChunkSize       *int    `json:"read_chunk_size,omitempty" yaml:"read_chunk_size,omitempty"`
	ReaderInterval      *string `json:"reader_interval,omitempty" yaml:"reader_interval,omitempty"`
	AckPollInterval     *string `json:"ack_poll_interval,omitempty" yaml:"ack_poll_interval,omitempty"`
	AckTimeout          *string `json:"ack_timeout,omitempty" yaml:"ack_timeout,omitempty"`
	ConnectProbeTimeout *string `json:"connect_probe_timeout,omitempty" yaml:"connect_probe_timeout,omitempty"`
	DetectProbeTimeout  *string `json:"detect_probe_timeout,omitempty" yaml:"detect_probe_timeout,omitempty"`
	DetectSettle        *string `json:"detect_settle,omitempty" yaml:"detect_settle,omitempty"`
	SwitchApplyDelay    *string `json:"switch_apply_delay,omitempty" yaml:"switch_apply_delay,omitempty"`
	SwitchSettle        *string `json:"switch_settle,omitempty" yaml:"switch_settle,omitempty"`

	// Settings are sent in order after connecting.
	Settings []string `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Service
	Listen  *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Journal *string `json:"journal,omitempty" yaml:"journal,omitempty"` // SQLite path, empty disables
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyLinkConfig returns a LinkConfig with all fields unset.
func EmptyLinkConfig() *LinkConfig {
	return &LinkConfig{}
}

// DefaultLinkConfig returns a LinkConfig with every field set to its default.
func DefaultLinkConfig() *LinkConfig {
	d := gnsslink.DefaultConfig()
	return &LinkConfig{
		Port:                ptrString(DefaultPort),
		BaudRate:            ptrInt(serialport.DefaultBaudRate),
		DataBits:            ptrInt(8),
		StopBits:            ptrInt(1),
		Parity:              ptrString("N"),
		ReadTimeout:         ptrString(serialport.DefaultReadTimeout.String()),
		ProbeCommand:        ptrString(d.ProbeCommand),
		CandidateBauds:      append([]int(nil), d.CandidateBauds...),
		ReadChunkSize:       ptrInt(d.ReadChunkSize),
		ReaderInterval:      ptrString(d.ReaderInterval.String()),
		AckPollInterval:     ptrString(d.AckPollInterval.String()),
		AckTimeout:          ptrString(d.AckTimeout.String()),
		ConnectProbeTimeout: ptrString(d.ConnectProbeTimeout.String()),
		DetectProbeTimeout:  ptrString(d.DetectProbeTimeout.String()),
		DetectSettle:        ptrString(d.DetectSettle.String()),
		SwitchApplyDelay:    ptrString(d.SwitchApplyDelay.String()),
		SwitchSettle:        ptrString(d.SwitchSettle.String()),
		Listen:              ptrString(DefaultListen),
		Journal:             ptrString(""),
	}
}

// LoadLinkConfig loads a LinkConfig from a .json, .yaml or .yml file no
// larger than 1MB. The result is validated.
func LoadLinkConfig(path string) (*LinkConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLinkConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *LinkConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadLinkConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LinkConfig) Validate() error {
	if c.Port != nil && strings.TrimSpace(*c.Port) == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if _, err := c.PortOptions().Normalise(); err != nil {
		return err
	}

	if c.ProbeCommand != nil {
		p := *c.ProbeCommand
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("probe_command must not be empty")
		}
		if strings.ContainsAny(p, "\r\n") {
			return fmt.Errorf("probe_command must be a single line, got %q", p)
		}
	}

	seen := make(map[int]bool, len(c.CandidateBauds))
	for _, b := range c.CandidateBauds {
		if b <= 0 {
			return fmt.Errorf("candidate_bauds must be positive, got %d", b)
		}
		if seen[b] {
			return fmt.Errorf("candidate_bauds lists %d twice", b)
		}
		seen[b] = true
	}

	if c.ReadChunkSize != nil && *c.ReadChunkSize <= 0 {
		return fmt.Errorf("read_chunk_size must be positive, got %d", *c.ReadChunkSize)
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"read_timeout", c.ReadTimeout},
		{"reader_interval", c.ReaderInterval},
		{"ack_poll_interval", c.AckPollInterval},
		{"ack_timeout", c.AckTimeout},
		{"connect_probe_timeout", c.ConnectProbeTimeout},
		{"detect_probe_timeout", c.DetectProbeTimeout},
		{"detect_settle", c.DetectSettle},
		{"switch_apply_delay", c.SwitchApplyDelay},
		{"switch_settle", c.SwitchSettle},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}

	for i, s := range c.Settings {
		if _, err := gnsslink.ParseCommand(s); err != nil {
			return fmt.Errorf("settings[%d]: %w", i, err)
		}
	}
	return nil
}

// parseDuration returns the parsed value of s, or def when s is unset or
// malformed.
func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetPort returns the device path or the default.
func (c *LinkConfig) GetPort() string {
	if c.Port == nil {
		return DefaultPort
	}
	return *c.Port
}

// GetBaudRate returns the speed tried first on connect or the default.
func (c *LinkConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return serialport.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetListen returns the admin HTTP listen address or the default.
func (c *LinkConfig) GetListen() string {
	if c.Listen == nil {
		return DefaultListen
	}
	return *c.Listen
}

// GetJournal returns the journal database path. Empty means no journal.
func (c *LinkConfig) GetJournal() string {
	if c.Journal == nil {
		return ""
	}
	return *c.Journal
}

// GetSettings returns the settings sent after connecting.
func (c *LinkConfig) GetSettings() []string {
	return c.Settings
}

// GetAckTimeout returns the ack_timeout value or the default.
func (c *LinkConfig) GetAckTimeout() time.Duration {
	return parseDuration(c.AckTimeout, gnsslink.DefaultConfig().AckTimeout)
}

// PortOptions returns the transport options. Unset fields are left zero so
// serialport.Options.Normalise applies its defaults.
func (c *LinkConfig) PortOptions() serialport.Options {
	opts := serialport.Options{
		BaudRate:    c.GetBaudRate(),
		ReadTimeout: parseDuration(c.ReadTimeout, serialport.DefaultReadTimeout),
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// LinkTimings returns the protocol configuration for gnsslink.New.
func (c *LinkConfig) LinkTimings() gnsslink.Config {
	d := gnsslink.DefaultConfig()
	cfg := gnsslink.Config{
		ProbeCommand:        d.ProbeCommand,
		CandidateBauds:      d.CandidateBauds,
		ReadChunkSize:       d.ReadChunkSize,
		ReaderInterval:      parseDuration(c.ReaderInterval, d.ReaderInterval),
		AckPollInterval:     parseDuration(c.AckPollInterval, d.AckPollInterval),
		AckTimeout:          parseDuration(c.AckTimeout, d.AckTimeout),
		ConnectProbeTimeout: parseDuration(c.ConnectProbeTimeout, d.ConnectProbeTimeout),
		DetectProbeTimeout:  parseDuration(c.DetectProbeTimeout, d.DetectProbeTimeout),
		DetectSettle:        parseDuration(c.DetectSettle, d.DetectSettle),
		SwitchApplyDelay:    parseDuration(c.SwitchApplyDelay, d.SwitchApplyDelay),
		SwitchSettle:        parseDuration(c.SwitchSettle, d.SwitchSettle),
	}
	if c.ProbeCommand != nil {
		cfg.ProbeCommand = *c.ProbeCommand
	}
	if len(c.CandidateBauds) > 0 {
		cfg.CandidateBauds = append([]int(nil), c.CandidateBauds...)
	}
	if c.ReadChunkSize != nil {
		cfg.ReadChunkSize = *c.ReadChunkSize
	}
	return cfg
}
