package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/lora-locator/internal/fingerprint"
)

const (
	SourceTTN    SourceType = "ttn"
	SourceMQTT   SourceType = "mqtt"
	SourceReplay SourceType = "replay"

	defaultMessages         = 5
	defaultPollInterval     = 5 * time.Second
	defaultUsedChannelField = "digital_out_5"
	defaultListen           = ":8080"
	defaultZoom             = 18
	defaultTimeout          = 10 * time.Second
	defaultDataDirectory    = "data"

	// APIKeyEnv overrides an empty ttn.apiKey.
	APIKeyEnv = "TTN_API_KEY"
)

var validSources = map[SourceType]struct{}{
	SourceTTN:    {},
	SourceMQTT:   {},
	SourceReplay: {},
}

type SourceType string

// Duration is a time.Duration read from strings such as "5s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the deployment configuration shared by all tools
type Config struct {
	Settings     Settings              `yaml:"settings"`
	TTN          TTNConfig             `yaml:"ttn"`
	Locator      LocatorConfig         `yaml:"locator"`
	Fingerprints FingerprintsConfig    `yaml:"fingerprints"`
	Coordinates  map[string]Coordinate `yaml:"coordinates"`
	Calibration  fingerprint.Sweep     `yaml:"calibration"`
	Web          WebConfig             `yaml:"web"`
	Storage      StorageConfig         `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, info when unset.
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': %w", s.LogLevel, err)
	}
	return level, nil
}

// TTNConfig represents The Things Network integration settings
type TTNConfig struct {
	StorageURL       string      `yaml:"storageURL"`
	APIKey           string      `yaml:"apiKey"`
	DownlinkURLs     []string    `yaml:"downlinkURLs"`
	UsedChannelField string      `yaml:"usedChannelField"`
	Timeout          Duration    `yaml:"timeout"`
	Retry            RetryConfig `yaml:"retry"`
	MQTT             MQTTConfig  `yaml:"mqtt"`
}

// RetryConfig controls retries of TTN requests
type RetryConfig struct {
	MaxAttempts   int      `yaml:"maxAttempts"`
	InitialDelay  Duration `yaml:"initialDelay"`
	MaxDelay      Duration `yaml:"maxDelay"`
	BackoffFactor float64  `yaml:"backoffFactor"`
}

// MQTTConfig represents the TTN MQTT integration settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientID"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	Buffer   int    `yaml:"buffer"`
}

// LocatorConfig represents the location estimation loop settings
type LocatorConfig struct {
	Source                SourceType   `yaml:"source"`
	Messages              int          `yaml:"messages"`
	PollInterval          Duration     `yaml:"pollInterval"`
	ChannelAware          bool         `yaml:"channelAware"`
	IgnoreUnknownGateways bool         `yaml:"ignoreUnknownGateways"`
	MapServerURL          string       `yaml:"mapServerURL"`
	MetricsListen         string       `yaml:"metricsListen"`
	Replay                ReplayConfig `yaml:"replay"`
}

// ReplayConfig selects a recorded session for the replay source
type ReplayConfig struct {
	DBPath    string `yaml:"dbPath"`
	SessionID int64  `yaml:"sessionID"`
}

// Coordinate is a WGS84 position of a fingerprint label
type Coordinate struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// Point returns the coordinate as an orb point.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// WebConfig represents the map server settings
type WebConfig struct {
	Listen string `yaml:"listen"`
	Title  string `yaml:"title"`
	Zoom   int    `yaml:"zoom"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

func defaults() *Config {
	return &Config{
		Locator: LocatorConfig{
			Source:       SourceTTN,
			Messages:     defaultMessages,
			PollInterval: Duration(defaultPollInterval),
		},
		TTN: TTNConfig{
			UsedChannelField: defaultUsedChannelField,
			Timeout:          Duration(defaultTimeout),
		},
		Calibration: fingerprint.Sweep{Begin: 0, End: -400, Stride: -1},
		Web: WebConfig{
			Listen: defaultListen,
			Zoom:   defaultZoom,
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
		},
	}
}

// LoadConfig reads and validates the YAML configuration at path. A
// fingerprints.file reference is resolved relative to the directory of path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if file := c.Fingerprints.File; file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(path), file)
		}
		if c.Fingerprints, err = LoadFingerprints(file, c.Fingerprints); err != nil {
			return nil, fmt.Errorf("loading fingerprints: %w", err)
		}
	}

	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return c, nil
}

// Parse decodes a YAML document over the defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	c := defaults()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if c.TTN.APIKey == "" {
		c.TTN.APIKey = os.Getenv(APIKeyEnv)
	}
	return c, nil
}

// Validate checks the settings every tool relies on.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := validSources[c.Locator.Source]; !ok {
		errs = append(errs, fmt.Errorf("invalid locator source '%s'", c.Locator.Source))
	}
	if c.Locator.Messages <= 0 {
		errs = append(errs, fmt.Errorf("locator messages must be positive, got %d", c.Locator.Messages))
	}
	if c.Locator.PollInterval <= 0 {
		errs = append(errs, errors.New("locator poll interval must be positive"))
	}
	for _, entry := range c.Fingerprints.Entries {
		if _, err := fingerprint.ParseLabel(entry.Label); err != nil {
			errs = append(errs, fmt.Errorf("fingerprints: %w", err))
		}
		if entry.empty() {
			errs = append(errs, fmt.Errorf("fingerprints: entry '%s' has no channels", entry.Label))
		}
	}
	for label := range c.Coordinates {
		if _, err := fingerprint.ParseLabel(label); err != nil {
			errs = append(errs, fmt.Errorf("coordinates: %w", err))
		}
	}

	return errors.Join(errs...)
}

// LabelCoordinates returns the coordinates keyed by parsed label.
func (c *Config) LabelCoordinates() (map[fingerprint.Label]Coordinate, error) {
	coords := make(map[fingerprint.Label]Coordinate, len(c.Coordinates))
	for s, coord := range c.Coordinates {
		label, err := fingerprint.ParseLabel(s)
		if err != nil {
			return nil, err
		}
		coords[label] = coord
	}
	return coords, nil
}
