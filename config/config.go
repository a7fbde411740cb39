// Package config loads and validates the controller configuration.
//
// Configuration is parsed once at startup into an immutable structure; anything
// malformed is a fatal Error at load time, never a runtime condition.
package config

import (
	"fmt"
	"os"

	"github.com/cepro/plantcontroller/pointmap"
	"github.com/cepro/plantcontroller/telemetry"
	"gopkg.in/yaml.v3"
)

// Error reports invalid configuration. It is startup-fatal.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return "config: " + e.msg
}

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// PointConfig describes one modbus point as written in the configuration file.
// Byte and word order are mandatory: there is no implicit default.
type PointConfig struct {
	Addr      uint16  `yaml:"addr"`
	Type      string  `yaml:"type"`
	Scale     float64 `yaml:"scale"`
	ByteOrder string  `yaml:"byte_order"`
	WordOrder string  `yaml:"word_order"`
}

// EndpointConfig describes one transport endpoint of a plant.
type EndpointConfig struct {
	Host   string                 `yaml:"host"`
	Points map[string]PointConfig `yaml:"points"`

	descriptors map[string]pointmap.Descriptor
}

// Descriptors returns the typed, validated point map. Only available after Load.
func (e *EndpointConfig) Descriptors() map[string]pointmap.Descriptor {
	return e.descriptors
}

// PlantConfig holds the capacity, limits and endpoints of one plant.
type PlantConfig struct {
	CapacityKwh  float64 `yaml:"capacity_kwh"`
	InitialSocPu float64 `yaml:"initial_soc_pu"`
	PLimitKw     float64 `yaml:"p_limit_kw"`
	QLimitKvar   float64 `yaml:"q_limit_kvar"`
	PoiVoltageKv float64 `yaml:"poi_voltage_kv"`

	Local  EndpointConfig `yaml:"local"`
	Remote EndpointConfig `yaml:"remote"`

	FluxAssetID string            `yaml:"flux_asset_id"`
	SeriesIDs   map[string]string `yaml:"series_ids"` // telemetry series id per metric; unset metrics are never posted
}

// TimingConfig holds the periods of all periodic workers.
type TimingConfig struct {
	DispatchPeriod     Duration `yaml:"dispatch_period"`
	EmulationPeriod    Duration `yaml:"emulation_period"`
	SamplePeriod       Duration `yaml:"sample_period"`
	PostPeriod         Duration `yaml:"post_period"`
	ObservedPollPeriod Duration `yaml:"observed_poll_period"`
	SafeStopPollPeriod Duration `yaml:"safe_stop_poll_period"`
	SchedulePullPeriod Duration `yaml:"schedule_pull_period"`
}

// ScheduleConfig holds the schedule resolution parameters.
type ScheduleConfig struct {
	StalenessWindow Duration `yaml:"staleness_window"`
}

// SafeStopConfig holds the parameters of the safe-stop sequence.
type SafeStopConfig struct {
	DecayThresholdKw float64  `yaml:"decay_threshold_kw"`
	Timeout          Duration `yaml:"timeout"`
}

// TolerancesConfig bounds the per-field deviation allowed before a sample must be kept.
type TolerancesConfig struct {
	PSetpointKw   float64 `yaml:"p_setpoint_kw"`
	PActualKw     float64 `yaml:"p_actual_kw"`
	QSetpointKvar float64 `yaml:"q_setpoint_kvar"`
	QActualKvar   float64 `yaml:"q_actual_kvar"`
	SocPu         float64 `yaml:"soc_pu"`
	PoiPKw        float64 `yaml:"poi_p_kw"`
	PoiQKvar      float64 `yaml:"poi_q_kvar"`
	PoiVKv        float64 `yaml:"poi_v_kv"`
}

// CompressionConfig holds the loss-bounded compression parameters.
type CompressionConfig struct {
	MaxKeptGap Duration         `yaml:"max_kept_gap"`
	Tolerances TolerancesConfig `yaml:"tolerances"`
}

// PostingConfig holds the posting queue bounds and backoff parameters.
type PostingConfig struct {
	QueueMax       int      `yaml:"queue_max"`
	BackoffInitial Duration `yaml:"backoff_initial"`
	BackoffMax     Duration `yaml:"backoff_max"`
}

// CommandsConfig holds the command engine bounds.
type CommandsConfig struct {
	QueueDepth         int      `yaml:"queue_depth"`
	ObservedStaleAfter Duration `yaml:"observed_stale_after"`
}

// FluxConfig holds the connection parameters for the Flux cloud API.
type FluxConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	// Password is normally supplied via the FLUX_PASSWORD environment variable.
	Password string `yaml:"password"`
}

// RecorderConfig holds the telemetry file store parameters.
type RecorderConfig struct {
	Dir string `yaml:"dir"`
}

// RepositoryConfig holds the command audit database parameters.
type RepositoryConfig struct {
	Path string `yaml:"path"`
}

// Config is the root configuration structure. Immutable after Load.
type Config struct {
	Plants      map[telemetry.PlantID]*PlantConfig `yaml:"plants"`
	Timing      TimingConfig                       `yaml:"timing"`
	Schedule    ScheduleConfig                     `yaml:"schedule"`
	SafeStop    SafeStopConfig                     `yaml:"safe_stop"`
	Compression CompressionConfig                  `yaml:"compression"`
	Posting     PostingConfig                      `yaml:"posting"`
	Commands    CommandsConfig                     `yaml:"commands"`
	Flux        FluxConfig                         `yaml:"flux"`
	Recorder    RecorderConfig                     `yaml:"recorder"`
	Repository  RepositoryConfig                   `yaml:"repository"`
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errorf("read config file: %v", err)
	}
	return Parse(content)
}

// Parse parses and validates raw YAML configuration.
func Parse(content []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, errorf("unmarshal config: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
