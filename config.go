package beacon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/newsroomkit/beacon-go/pkg/event"
)

// Config is the full tuning surface of a pipeline. The zero value is not
// usable; start from DefaultConfig and fill in SiteID and Endpoint.
type Config struct {
	// SiteID names the property events belong to. Required.
	SiteID string
	// Endpoint is the collection URL batches are POSTed to. Required.
	Endpoint string
	// SiteKey authenticates requests via the X-Site-Key header. Optional.
	SiteKey string

	// BatchSize triggers an immediate flush once that many events buffer up.
	BatchSize int
	// FlushInterval is the timer-driven flush period.
	FlushInterval time.Duration

	// HeartbeatInterval is the engaged-reader ping period.
	HeartbeatInterval time.Duration
	// MaxHeartbeatInterval caps the backed-off ping period while idle.
	MaxHeartbeatInterval time.Duration
	// InactivityThreshold is how long without interaction counts as idle.
	InactivityThreshold time.Duration

	// SessionTimeout is the idle gap after which the session id rotates.
	SessionTimeout time.Duration

	// MaxOfflineEvents bounds the spool; oldest events are evicted beyond it.
	MaxOfflineEvents int
	// OfflineRetentionDays bounds spooled event age.
	OfflineRetentionDays int
	// MaxRetryCount bounds delivery attempts per spooled event.
	MaxRetryCount int

	// DebugLogging switches the default logger to verbose console output.
	DebugLogging bool

	// SpoolDir holds the offline spool and, without a system keychain, the
	// encrypted identity store. Defaults under the user home directory.
	SpoolDir string

	// Device is the host-supplied context stamped on every event.
	Device event.DeviceInfo
}

// DefaultConfig returns the tuning used in production unless overridden.
func DefaultConfig() Config {
	return Config{
		BatchSize:            10,
		FlushInterval:        10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		MaxHeartbeatInterval: 2 * time.Minute,
		InactivityThreshold:  30 * time.Second,
		SessionTimeout:       30 * time.Minute,
		MaxOfflineEvents:     1000,
		OfflineRetentionDays: 7,
		MaxRetryCount:        3,
		SpoolDir:             defaultSpoolDir(),
	}
}

func defaultSpoolDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".beacon"
	}
	return filepath.Join(home, ".beacon")
}

// Validate reports every problem at once rather than the first one found.
func (c Config) Validate() error {
	var err error
	if c.SiteID == "" {
		err = multierr.Append(err, fmt.Errorf("siteId is required"))
	}
	if c.Endpoint == "" {
		err = multierr.Append(err, fmt.Errorf("endpoint is required"))
	}
	if c.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("batchSize must be positive, got %d", c.BatchSize))
	}
	if c.FlushInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("flushInterval must be positive, got %s", c.FlushInterval))
	}
	if c.HeartbeatInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("heartbeatInterval must be positive, got %s", c.HeartbeatInterval))
	}
	if c.MaxHeartbeatInterval < c.HeartbeatInterval {
		err = multierr.Append(err, fmt.Errorf("maxHeartbeatInterval %s is below heartbeatInterval %s",
			c.MaxHeartbeatInterval, c.HeartbeatInterval))
	}
	if c.InactivityThreshold <= 0 {
		err = multierr.Append(err, fmt.Errorf("inactivityThreshold must be positive, got %s", c.InactivityThreshold))
	}
	if c.SessionTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("sessionTimeout must be positive, got %s", c.SessionTimeout))
	}
	if c.MaxOfflineEvents <= 0 {
		err = multierr.Append(err, fmt.Errorf("maxOfflineEvents must be positive, got %d", c.MaxOfflineEvents))
	}
	if c.OfflineRetentionDays <= 0 {
		err = multierr.Append(err, fmt.Errorf("offlineRetentionDays must be positive, got %d", c.OfflineRetentionDays))
	}
	if c.MaxRetryCount < 0 {
		err = multierr.Append(err, fmt.Errorf("maxRetryCount must not be negative, got %d", c.MaxRetryCount))
	}
	return err
}

func (c Config) retention() time.Duration {
	return time.Duration(c.OfflineRetentionDays) * 24 * time.Hour
}

// fileConfig is the YAML shape of Config. Durations are Go duration strings
// ("10s", "30m") so the file stays readable.
type fileConfig struct {
	SiteID               string           `yaml:"siteId"`
	Endpoint             string           `yaml:"endpoint"`
	SiteKey              string           `yaml:"siteKey,omitempty"`
	BatchSize            int              `yaml:"batchSize"`
	FlushInterval        string           `yaml:"flushInterval"`
	HeartbeatInterval    string           `yaml:"heartbeatInterval"`
	MaxHeartbeatInterval string           `yaml:"maxHeartbeatInterval"`
	InactivityThreshold  string           `yaml:"inactivityThreshold"`
	SessionTimeout       string           `yaml:"sessionTimeout"`
	MaxOfflineEvents     int              `yaml:"maxOfflineEvents"`
	OfflineRetentionDays int              `yaml:"offlineRetentionDays"`
	MaxRetryCount        int              `yaml:"maxRetryCount"`
	DebugLogging         bool             `yaml:"debugLogging"`
	SpoolDir             string           `yaml:"spoolDir,omitempty"`
	Device               event.DeviceInfo `yaml:"device,omitempty"`
}

// LoadConfig reads a YAML config file; fields absent from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.SiteID = fc.SiteID
	cfg.Endpoint = fc.Endpoint
	cfg.SiteKey = fc.SiteKey
	cfg.DebugLogging = fc.DebugLogging
	cfg.Device = fc.Device
	if fc.BatchSize != 0 {
		cfg.BatchSize = fc.BatchSize
	}
	if fc.MaxOfflineEvents != 0 {
		cfg.MaxOfflineEvents = fc.MaxOfflineEvents
	}
	if fc.OfflineRetentionDays != 0 {
		cfg.OfflineRetentionDays = fc.OfflineRetentionDays
	}
	if fc.MaxRetryCount != 0 {
		cfg.MaxRetryCount = fc.MaxRetryCount
	}
	if fc.SpoolDir != "" {
		cfg.SpoolDir = fc.SpoolDir
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.FlushInterval, "flushInterval", &cfg.FlushInterval},
		{fc.HeartbeatInterval, "heartbeatInterval", &cfg.HeartbeatInterval},
		{fc.MaxHeartbeatInterval, "maxHeartbeatInterval", &cfg.MaxHeartbeatInterval},
		{fc.InactivityThreshold, "inactivityThreshold", &cfg.InactivityThreshold},
		{fc.SessionTimeout, "sessionTimeout", &cfg.SessionTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// SaveConfig writes the config as YAML, creating the directory if needed.
func SaveConfig(path string, cfg Config) error {
	fc := fileConfig{
		SiteID:               cfg.SiteID,
		Endpoint:             cfg.Endpoint,
		SiteKey:              cfg.SiteKey,
		BatchSize:            cfg.BatchSize,
		FlushInterval:        cfg.FlushInterval.String(),
		HeartbeatInterval:    cfg.HeartbeatInterval.String(),
		MaxHeartbeatInterval: cfg.MaxHeartbeatInterval.String(),
		InactivityThreshold:  cfg.InactivityThreshold.String(),
		SessionTimeout:       cfg.SessionTimeout.String(),
		MaxOfflineEvents:     cfg.MaxOfflineEvents,
		OfflineRetentionDays: cfg.OfflineRetentionDays,
		MaxRetryCount:        cfg.MaxRetryCount,
		DebugLogging:         cfg.DebugLogging,
		SpoolDir:             cfg.SpoolDir,
		Device:               cfg.Device,
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
