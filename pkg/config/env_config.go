// pkg/config/env_config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/go-spacerace/pkg/validation"
)

// Environment variables understood by ApplyEnvironmentOverrides
const (
	EnvTickRate         = "SPACERACE_TICK_RATE"
	EnvRealtime         = "SPACERACE_REALTIME"
	EnvHaltOnCollision  = "SPACERACE_HALT_ON_COLLISION"
	EnvStopOnRaceEnd    = "SPACERACE_STOP_ON_RACE_END"
	EnvMaxTicks         = "SPACERACE_MAX_TICKS"
	EnvMaxSpeed         = "SPACERACE_MAX_SPEED"
	EnvDeadzone         = "SPACERACE_DEADZONE"
	EnvInvertPitch      = "SPACERACE_INVERT_PITCH"
	EnvPilotName        = "SPACERACE_PILOT"
	EnvTelemetryEnabled = "SPACERACE_TELEMETRY_ENABLED"
	EnvTelemetryAddr    = "SPACERACE_TELEMETRY_ADDR"
	EnvTelemetryTimeout = "SPACERACE_TELEMETRY_WRITE_TIMEOUT"
	EnvReplayEnabled    = "SPACERACE_REPLAY_ENABLED"
	EnvReplayDir        = "SPACERACE_REPLAY_DIR"
	EnvResultsEnabled   = "SPACERACE_RESULTS_ENABLED"
	EnvResultsDB        = "SPACERACE_RESULTS_DB"
	EnvLogLevel         = "SPACERACE_LOG_LEVEL"
	EnvLogFormat        = "SPACERACE_LOG_FORMAT"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s (value: %v): %s", e.Field, e.Value, e.Message)
}

// ApplyEnvironmentOverrides applies SPACERACE_* environment variables on
// top of config. Unparseable values leave the field unchanged.
func ApplyEnvironmentOverrides(config *Config) error {
	if config == nil {
		return fmt.Errorf("cannot apply environment overrides to nil config")
	}

	sim := &config.Simulation
	sim.TickRate = getEnvAsIntOrDefault(EnvTickRate, sim.TickRate)
	sim.Realtime = getEnvAsBoolOrDefault(EnvRealtime, sim.Realtime)
	sim.HaltOnCollision = getEnvAsBoolOrDefault(EnvHaltOnCollision, sim.HaltOnCollision)
	sim.StopOnRaceEnd = getEnvAsBoolOrDefault(EnvStopOnRaceEnd, sim.StopOnRaceEnd)
	sim.MaxTicks = uint64(getEnvAsIntOrDefault(EnvMaxTicks, int(sim.MaxTicks)))

	config.Craft.MaxSpeed = getEnvAsFloatOrDefault(EnvMaxSpeed, config.Craft.MaxSpeed)
	config.Input.Deadzone = getEnvAsFloatOrDefault(EnvDeadzone, config.Input.Deadzone)
	config.Input.InvertPitch = getEnvAsBoolOrDefault(EnvInvertPitch, config.Input.InvertPitch)
	config.Pilot.Name = getEnvOrDefault(EnvPilotName, config.Pilot.Name)

	config.Telemetry.Enabled = getEnvAsBoolOrDefault(EnvTelemetryEnabled, config.Telemetry.Enabled)
	config.Telemetry.Address = getEnvOrDefault(EnvTelemetryAddr, config.Telemetry.Address)
	config.Telemetry.WriteTimeout = getEnvAsDurationOrDefault(EnvTelemetryTimeout, config.Telemetry.WriteTimeout)

	config.Replay.Enabled = getEnvAsBoolOrDefault(EnvReplayEnabled, config.Replay.Enabled)
	config.Replay.Dir = getEnvOrDefault(EnvReplayDir, config.Replay.Dir)
	config.Results.Enabled = getEnvAsBoolOrDefault(EnvResultsEnabled, config.Results.Enabled)
	config.Results.DatabasePath = getEnvOrDefault(EnvResultsDB, config.Results.DatabasePath)
	config.Logging.Level = getEnvOrDefault(EnvLogLevel, config.Logging.Level)
	config.Logging.Format = getEnvOrDefault(EnvLogFormat, config.Logging.Format)

	return nil
}

// Validate checks the configuration for values the simulator cannot run with
func (c *Config) Validate() error {
	if c.Simulation.TickRate < 1 || c.Simulation.TickRate > 1000 {
		return &ValidationError{Field: "Simulation.TickRate", Value: c.Simulation.TickRate, Message: "must be between 1 and 1000"}
	}

	if err := c.Craft.Body().Validate(); err != nil {
		return &ValidationError{Field: "Craft", Value: err, Message: "invalid flight model"}
	}
	if !c.Craft.StartPosition.IsFinite() {
		return &ValidationError{Field: "Craft.StartPosition", Value: c.Craft.StartPosition, Message: "must be finite"}
	}

	if c.Input.MaxThrust < 0 {
		return &ValidationError{Field: "Input.MaxThrust", Value: c.Input.MaxThrust, Message: "must not be negative"}
	}
	if c.Input.MaxTorque < 0 {
		return &ValidationError{Field: "Input.MaxTorque", Value: c.Input.MaxTorque, Message: "must not be negative"}
	}
	if c.Input.Deadzone < 0 || c.Input.Deadzone >= 1 {
		return &ValidationError{Field: "Input.Deadzone", Value: c.Input.Deadzone, Message: "must be in [0, 1)"}
	}

	if _, err := validation.ValidatePilotName(c.Pilot.Name); err != nil {
		return &ValidationError{Field: "Pilot.Name", Value: c.Pilot.Name, Message: err.Error()}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Address == "" {
			return &ValidationError{Field: "Telemetry.Address", Value: c.Telemetry.Address, Message: "cannot be empty"}
		}
		if c.Telemetry.BroadcastEvery < 1 {
			return &ValidationError{Field: "Telemetry.BroadcastEvery", Value: c.Telemetry.BroadcastEvery, Message: "must be at least 1"}
		}
		if c.Telemetry.WriteTimeout <= 0 {
			return &ValidationError{Field: "Telemetry.WriteTimeout", Value: c.Telemetry.WriteTimeout, Message: "must be positive"}
		}
	}

	if c.Replay.Enabled && c.Replay.Dir == "" {
		return &ValidationError{Field: "Replay.Dir", Value: c.Replay.Dir, Message: "cannot be empty"}
	}
	if c.Results.Enabled && c.Results.DatabasePath == "" {
		return &ValidationError{Field: "Results.DatabasePath", Value: c.Results.DatabasePath, Message: "cannot be empty"}
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return &ValidationError{Field: "Logging.Level", Value: c.Logging.Level, Message: "must be DEBUG, INFO, WARN or ERROR"}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return &ValidationError{Field: "Logging.Format", Value: c.Logging.Format, Message: "must be json or text"}
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns environment variable as int or default if not set or invalid
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault returns environment variable as bool or default if not set or invalid
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault returns environment variable as float64 or default if not set or invalid
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault returns environment variable as time.Duration or default if not set or invalid
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
