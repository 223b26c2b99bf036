// pkg/config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-spacerace/pkg/input"
	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// Config contains the configuration of a simulator run
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Craft      CraftConfig      `json:"craft" yaml:"craft"`
	Input      InputConfig      `json:"input" yaml:"input"`
	Pilot      PilotConfig      `json:"pilot" yaml:"pilot"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Replay     ReplayConfig     `json:"replay" yaml:"replay"`
	Results    ResultsConfig    `json:"results" yaml:"results"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// SimulationConfig contains loop settings
type SimulationConfig struct {
	TickRate        int    `json:"tickRate" yaml:"tick_rate"` // ticks per simulated second
	Realtime        bool   `json:"realtime" yaml:"realtime"`  // pace ticks to the wall clock
	HaltOnCollision bool   `json:"haltOnCollision" yaml:"halt_on_collision"`
	StopOnRaceEnd   bool   `json:"stopOnRaceEnd" yaml:"stop_on_race_end"`
	MaxTicks        uint64 `json:"maxTicks" yaml:"max_ticks"` // 0 runs until stopped
}

// Timestep returns the fixed tick duration in seconds
func (s SimulationConfig) Timestep() float64 {
	if s.TickRate <= 0 {
		return 0
	}
	return 1 / float64(s.TickRate)
}

// CraftConfig contains the flight model and start pose
type CraftConfig struct {
	Mass            float64         `json:"mass" yaml:"mass"`
	Inertia         physics.Vector3 `json:"inertia" yaml:"inertia"`
	LinearDamping   float64         `json:"linearDamping" yaml:"linear_damping"`
	AngularDamping  float64         `json:"angularDamping" yaml:"angular_damping"`
	Radius          float64         `json:"radius" yaml:"radius"`
	MaxSpeed        float64         `json:"maxSpeed" yaml:"max_speed"`
	MaxAngularSpeed float64         `json:"maxAngularSpeed" yaml:"max_angular_speed"`
	StartPosition   physics.Vector3 `json:"startPosition" yaml:"start_position"`
	StartYaw        float64         `json:"startYaw" yaml:"start_yaw"` // degrees
	StartPitch      float64         `json:"startPitch" yaml:"start_pitch"`
	StartRoll       float64         `json:"startRoll" yaml:"start_roll"`
}

// Body returns the rigid body parameters
func (c CraftConfig) Body() physics.BodyConfig {
	return physics.BodyConfig{
		Mass:            c.Mass,
		Inertia:         c.Inertia,
		LinearDamping:   c.LinearDamping,
		AngularDamping:  c.AngularDamping,
		Radius:          c.Radius,
		MaxSpeed:        c.MaxSpeed,
		MaxAngularSpeed: c.MaxAngularSpeed,
	}
}

// Pose returns the start pose
func (c CraftConfig) Pose() physics.Pose {
	return physics.Pose{
		Position:    c.StartPosition,
		Orientation: physics.FromEuler(c.StartYaw, c.StartPitch, c.StartRoll),
	}
}

// InputConfig contains command limits and controller settings
type InputConfig struct {
	MaxThrust   float64 `json:"maxThrust" yaml:"max_thrust"`
	MaxTorque   float64 `json:"maxTorque" yaml:"max_torque"`
	Deadzone    float64 `json:"deadzone" yaml:"deadzone"`
	InvertPitch bool    `json:"invertPitch" yaml:"invert_pitch"`
}

// Limits returns the command clamp
func (c InputConfig) Limits() input.Limits {
	return input.Limits{MaxThrust: c.MaxThrust, MaxTorque: c.MaxTorque}
}

// Mapper returns the controller axis mapper
func (c InputConfig) Mapper() input.Mapper {
	return input.Mapper{Limits: c.Limits(), Deadzone: c.Deadzone, InvertPitch: c.InvertPitch}
}

// PilotConfig identifies the player
type PilotConfig struct {
	Name string `json:"name" yaml:"name"`
}

// TelemetryConfig contains the snapshot feed settings
type TelemetryConfig struct {
	Enabled            bool          `json:"enabled" yaml:"enabled"`
	Address            string        `json:"address" yaml:"address"`
	BroadcastEvery     int           `json:"broadcastEvery" yaml:"broadcast_every"` // ticks between snapshots
	WriteTimeout       time.Duration `json:"writeTimeout" yaml:"write_timeout"`
	BreakerMaxFailures uint32        `json:"breakerMaxFailures" yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `json:"breakerTimeout" yaml:"breaker_timeout"`
}

// ReplayConfig contains recording settings
type ReplayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
}

// ResultsConfig contains leaderboard storage settings
type ResultsConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	DatabasePath string `json:"databasePath" yaml:"database_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json or text
}

// isYAML reports whether path should be read as YAML
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a configuration from a JSON or YAML file. Fields missing
// from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves a configuration to a file, as YAML when the extension
// says so and JSON otherwise
func SaveConfig(config *Config, path string) error {
	if config == nil {
		return errors.New("failed to marshal config: nil config")
	}

	var data []byte
	var err error
	if isYAML(path) {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err = encoder.Encode(config); err == nil {
			err = encoder.Close()
		}
		data = buf.Bytes()
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load builds the effective configuration: defaults, then the file at path
// when one is given, then SPACERACE_* environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if err := ApplyEnvironmentOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			TickRate:        60,
			Realtime:        true,
			HaltOnCollision: false,
			StopOnRaceEnd:   true,
			MaxTicks:        0,
		},
		Craft: CraftConfig{
			Mass:            1000,
			Inertia:         physics.Vector3{X: 1000, Y: 1000, Z: 1000},
			LinearDamping:   0.002,
			AngularDamping:  0.02,
			Radius:          10,
			MaxSpeed:        1000,
			MaxAngularSpeed: 3,
		},
		Input: InputConfig{
			MaxThrust:   50000,
			MaxTorque:   2000,
			Deadzone:    0.1,
			InvertPitch: false,
		},
		Pilot: PilotConfig{
			Name: "Pilot",
		},
		Telemetry: TelemetryConfig{
			Enabled:            false,
			Address:            "localhost:8088",
			BroadcastEvery:     2,
			WriteTimeout:       time.Second,
			BreakerMaxFailures: 3,
			BreakerTimeout:     5 * time.Second,
		},
		Replay: ReplayConfig{
			Enabled: false,
			Dir:     "replays",
		},
		Results: ResultsConfig{
			Enabled:      false,
			DatabasePath: "spacerace.db",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}
