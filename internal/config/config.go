package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every static setting of a monitoring run.
// It is loaded once at startup and treated as read-only afterwards.
type Config struct {
	// Detector configures the connection to the external detection model.
	Detector DetectorConfig `yaml:"detector"`
	// Source configures frame acquisition.
	Source SourceConfig `yaml:"source"`
	// Policy configures the alert debounce and monitored classes.
	Policy PolicyConfig `yaml:"policy"`
	// Dataset is the optional path to a data.yaml file with class names.
	Dataset string `yaml:"dataset,omitempty"`
	// Sinks configures where frames and alerts are delivered.
	Sinks SinksConfig `yaml:"sinks"`
	// Log configures the logger.
	Log LogConfig `yaml:"log"`
	// ReportFile is where the session summary is written after a run.
	ReportFile string `yaml:"report_file,omitempty"`
}

// DetectorConfig describes the external detection service.
type DetectorConfig struct {
	// Address is the gRPC address of the detection server.
	Address string `yaml:"address"`
	// Weights is the path to the model weights file.
	Weights string `yaml:"weights"`
	// Timeout bounds every inference call.
	Timeout time.Duration `yaml:"timeout"`
	// LoadTimeout bounds loading the weights. Zero keeps the client default.
	LoadTimeout time.Duration `yaml:"load_timeout,omitempty"`
}

// SourceConfig describes the frame source.
type SourceConfig struct {
	// Path is a video file, image, directory of images or camera id/device.
	Path string `yaml:"path"`
	// FPS is used when the source frame rate cannot be probed.
	FPS float64 `yaml:"fps"`
	// Width forces decoded frame width; zero keeps the probed size.
	Width int `yaml:"width,omitempty"`
	// Height forces decoded frame height; zero keeps the probed size.
	Height int `yaml:"height,omitempty"`
	// CameraFormat overrides the ffmpeg capture format for camera sources.
	CameraFormat string `yaml:"camera_format,omitempty"`
}

// PolicyConfig describes the alert policy.
type PolicyConfig struct {
	// Threshold is the default minimum confidence for a detection to count.
	// It stays nil only until defaults are applied, so an explicit 0 is kept.
	Threshold *float64 `yaml:"threshold,omitempty"`
	// MinFrames is the default number of consecutive frames that raise an alert.
	MinFrames int `yaml:"min_frames"`
	// ClearFrames is the number of absent frames that re-arm a latched class.
	ClearFrames int `yaml:"clear_frames"`
	// Classes lists the monitored classes.
	Classes []ClassConfig `yaml:"classes"`
}

// ClassConfig overrides the policy for one class.
type ClassConfig struct {
	Name        string        `yaml:"name"`
	Threshold   *float64      `yaml:"threshold,omitempty"`
	MinFrames   int           `yaml:"min_frames,omitempty"`
	MinDuration time.Duration `yaml:"min_duration,omitempty"`
}

// SinksConfig enables presentation and alert delivery targets.
// Every target except the log is optional and disabled when left empty.
type SinksConfig struct {
	// Output is the path of the annotated output video.
	Output string `yaml:"output,omitempty"`
	// SnapshotDir receives an annotated JPEG for every alert.
	SnapshotDir string          `yaml:"snapshot_dir,omitempty"`
	Siren       SirenConfig     `yaml:"siren"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	Redis       RedisConfig     `yaml:"redis"`
	Postgres    PostgresConfig  `yaml:"postgres"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
}

// SirenConfig configures the audible alarm.
type SirenConfig struct {
	Enabled bool `yaml:"enabled"`
	// File is a WAV file to play; a beep is synthesized when empty.
	File string `yaml:"file,omitempty"`
	// Player overrides the platform audio player command.
	Player string `yaml:"player,omitempty"`
}

// MQTTConfig configures alert publishing to an MQTT broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// RedisConfig configures alert publishing to a Redis stream.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty"`
	Stream   string `yaml:"stream,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// PostgresConfig configures the alert journal.
type PostgresConfig struct {
	DSN string `yaml:"dsn,omitempty"`
	// Table receives one row per alert.
	Table string `yaml:"table,omitempty"`
}

// WebSocketConfig configures the live alert feed.
type WebSocketConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for run settings.
	DefaultConfigFilename = "driver-guard.yaml"

	// DefaultReportFilename is the default filename for the session summary.
	DefaultReportFilename = "driver-guard-report.yaml"

	// DefaultTimeout is the default duration of a single inference call.
	DefaultTimeout = 5 * time.Second

	// DefaultFPS is assumed when the source frame rate is unknown.
	DefaultFPS = 30.0

	// DefaultThreshold is the default minimum detection confidence.
	DefaultThreshold = 0.5

	// DefaultMinFrames is the default debounce window.
	DefaultMinFrames = 3

	// DefaultClearFrames is the default re-arm window.
	DefaultClearFrames = 1

	// DefaultMQTTTopic is the topic alerts are published to.
	DefaultMQTTTopic = "driver-guard/alerts"

	// DefaultRedisStream is the stream alerts are appended to.
	DefaultRedisStream = "driver-guard:alerts"

	// DefaultPostgresTable is the table alerts are journaled to.
	DefaultPostgresTable = "driver_alerts"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// DefaultClasses are monitored when the configuration lists none.
//
//nolint:gochecknoglobals // Read-only table of the behaviors the stock model is trained on.
var DefaultClasses = []string{
	"phone",
	"drowsy",
	"Eyes Closed",
	"Nodding Off",
	"Texting",
	"Talking on the phone",
	"Yawning",
	"Drinking",
	"Operating the Radio",
	"Reaching Behind",
	"Hair and Makeup",
	"Talking to Passenger",
}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errDetectorAddressRequired is returned when the detector address is missing.
	errDetectorAddressRequired = errors.New("detector address must be provided")
	// errWeightsRequired is returned when the weights path is missing.
	errWeightsRequired = errors.New("model weights path must be provided")
	// errSourceRequired is returned when the source is missing.
	errSourceRequired = errors.New("source must be provided")
	// errThresholdRange is returned for thresholds outside [0,1].
	errThresholdRange = errors.New("threshold must lie in [0,1]")
	// errNegativeValue is returned for negative counters and sizes.
	errNegativeValue = errors.New("value must not be negative")
	// errClassNameRequired is returned when a class entry has no name.
	errClassNameRequired = errors.New("class name must be provided")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	ApplyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path, applies environment
// overrides and defaults. Required run fields are checked by Validate, after
// command-line overrides have been merged.
//
// A missing file is only tolerated for the default filename.
func Load(path string) (*Config, error) {
	isDefault := path == "" || path == DefaultConfigFilename
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := new(Config)

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && isDefault:
		// Flags and environment can carry the whole configuration.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = loadDotEnv(filepath.Join(filepath.Dir(path), DefaultEnvFilename)); err != nil {
		return nil, err
	}

	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may carry broker and database credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyDefaults fills every zero field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Detector.Timeout <= 0 {
		cfg.Detector.Timeout = DefaultTimeout
	}

	if cfg.Source.FPS <= 0 {
		cfg.Source.FPS = DefaultFPS
	}

	if cfg.Policy.Threshold == nil {
		threshold := DefaultThreshold
		cfg.Policy.Threshold = &threshold
	}

	if cfg.Policy.MinFrames == 0 {
		cfg.Policy.MinFrames = DefaultMinFrames
	}

	if cfg.Policy.ClearFrames == 0 {
		cfg.Policy.ClearFrames = DefaultClearFrames
	}

	if len(cfg.Policy.Classes) == 0 {
		cfg.Policy.Classes = make([]ClassConfig, 0, len(DefaultClasses))
		for _, name := range DefaultClasses {
			cfg.Policy.Classes = append(cfg.Policy.Classes, ClassConfig{Name: name})
		}
	}

	if cfg.Sinks.MQTT.Broker != "" && cfg.Sinks.MQTT.Topic == "" {
		cfg.Sinks.MQTT.Topic = DefaultMQTTTopic
	}

	if cfg.Sinks.MQTT.Broker != "" && cfg.Sinks.MQTT.ClientID == "" {
		cfg.Sinks.MQTT.ClientID = "driver-guard"
	}

	if cfg.Sinks.Redis.Address != "" && cfg.Sinks.Redis.Stream == "" {
		cfg.Sinks.Redis.Stream = DefaultRedisStream
	}

	if cfg.Sinks.Postgres.DSN != "" && cfg.Sinks.Postgres.Table == "" {
		cfg.Sinks.Postgres.Table = DefaultPostgresTable
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.ReportFile == "" {
		cfg.ReportFile = DefaultReportFilename
	}
}

// Validate checks the provided settings for required fields and formatting.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	ApplyDefaults(cfg)

	if cfg.Detector.Address == "" {
		return errDetectorAddressRequired
	}

	if _, _, err := net.SplitHostPort(cfg.Detector.Address); err != nil {
		return fmt.Errorf("invalid detector address: %w", err)
	}

	if strings.TrimSpace(cfg.Detector.Weights) == "" {
		return errWeightsRequired
	}

	if cfg.Detector.LoadTimeout < 0 {
		return fmt.Errorf("detector load timeout: %w", errNegativeValue)
	}

	if strings.TrimSpace(cfg.Source.Path) == "" {
		return errSourceRequired
	}

	if cfg.Source.Width < 0 || cfg.Source.Height < 0 {
		return fmt.Errorf("source size: %w", errNegativeValue)
	}

	if err := validatePolicy(&cfg.Policy); err != nil {
		return err
	}

	return validateSinks(&cfg.Sinks)
}

// validatePolicy checks thresholds and frame counters.
func validatePolicy(policy *PolicyConfig) error {
	if policy.Threshold != nil && !inUnitRange(*policy.Threshold) {
		return fmt.Errorf("policy: %w", errThresholdRange)
	}

	if policy.MinFrames < 0 || policy.ClearFrames < 0 {
		return fmt.Errorf("policy frames: %w", errNegativeValue)
	}

	for i, class := range policy.Classes {
		if strings.TrimSpace(class.Name) == "" {
			return fmt.Errorf("class #%d: %w", i, errClassNameRequired)
		}

		if class.Threshold != nil && !inUnitRange(*class.Threshold) {
			return fmt.Errorf("class %q: %w", class.Name, errThresholdRange)
		}

		if class.MinFrames < 0 || class.MinDuration < 0 {
			return fmt.Errorf("class %q: %w", class.Name, errNegativeValue)
		}
	}

	return nil
}

// validateSinks checks the addresses of the optional sinks.
func validateSinks(sinks *SinksConfig) error {
	if sinks.MQTT.Broker != "" {
		if _, err := url.ParseRequestURI(sinks.MQTT.Broker); err != nil {
			return fmt.Errorf("invalid MQTT broker URI: %w", err)
		}
	}

	if sinks.Redis.Address != "" {
		if _, _, err := net.SplitHostPort(sinks.Redis.Address); err != nil {
			return fmt.Errorf("invalid Redis address: %w", err)
		}
	}

	if sinks.WebSocket.Listen != "" {
		if _, _, err := net.SplitHostPort(sinks.WebSocket.Listen); err != nil {
			return fmt.Errorf("invalid websocket listen address: %w", err)
		}
	}

	return nil
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
