// pkg/replay/reader.go
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/input"
)

// MaxTicks bounds the length of a replay, about three days at 60 ticks per
// second. Bundles of unfinished recordings are checked against it instead of
// the manifest tick count.
const MaxTicks = 1 << 24

var (
	// ErrCorruptReplay is returned when a bundle cannot be decoded
	ErrCorruptReplay = errors.New("replay: corrupt bundle")
	// ErrCourseMismatch is returned when a replay is played on another course
	ErrCourseMismatch = errors.New("replay: recorded on a different course")
)

// Replay is a loaded bundle. It is an input.Source that plays back the
// recorded commands and idles afterwards.
type Replay struct {
	dir      string
	manifest Manifest
	commands []input.Command
}

var _ input.Source = (*Replay)(nil)

// Open loads the bundle in dir
func Open(dir string) (*Replay, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("replay: read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrCorruptReplay, err)
	}
	if manifest.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptReplay, manifest.Version)
	}
	inputsPath := manifest.InputsPath
	if inputsPath == "" {
		inputsPath = InputsFile
	}

	limit := uint64(MaxTicks)
	if manifest.Ticks > 0 && manifest.Ticks < limit {
		limit = manifest.Ticks
	}
	commands, err := loadInputs(filepath.Join(dir, inputsPath), limit)
	if err != nil {
		return nil, err
	}
	return &Replay{dir: dir, manifest: manifest, commands: commands}, nil
}

// Manifest returns the bundle manifest
func (r *Replay) Manifest() Manifest { return r.manifest }

// Dir returns the bundle directory
func (r *Replay) Dir() string { return r.dir }

// Len returns the number of recorded ticks
func (r *Replay) Len() uint64 { return uint64(len(r.commands)) }

// Next returns the command recorded for tick
func (r *Replay) Next(tick uint64) input.Command {
	if tick == 0 || tick > uint64(len(r.commands)) {
		return input.Command{}
	}
	return r.commands[tick-1]
}

// VerifyCourse checks that c is the course the replay was recorded on
func (r *Replay) VerifyCourse(c *course.Course) error {
	if c.Checksum() != r.manifest.CourseChecksum {
		return fmt.Errorf("%w: %q (%016x), replay expects %q (%016x)",
			ErrCourseMismatch, c.Name(), c.Checksum(), r.manifest.CourseName, r.manifest.CourseChecksum)
	}
	return nil
}

// Configure overwrites the tick rate, craft, command limits and collision
// handling of cfg with the recorded ones, so playback reproduces the flight
// whatever the local configuration says
func (r *Replay) Configure(cfg *config.Config) error {
	flight := r.manifest.Flight
	if flight == nil || r.manifest.TickRate <= 0 {
		return fmt.Errorf("%w: manifest lacks tick rate or flight settings", ErrCorruptReplay)
	}
	cfg.Simulation.TickRate = r.manifest.TickRate
	cfg.Simulation.HaltOnCollision = flight.HaltOnCollision
	cfg.Craft = flight.Craft
	cfg.Input.MaxThrust = flight.Limits.MaxThrust
	cfg.Input.MaxTorque = flight.Limits.MaxTorque
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: recorded settings: %v", ErrCorruptReplay, err)
	}
	return nil
}

// Events reads the recorded event stream
func (r *Replay) Events() ([]EventRecord, error) {
	eventsPath := r.manifest.EventsPath
	if eventsPath == "" {
		eventsPath = EventsFile
	}
	file, err := os.Open(filepath.Join(r.dir, eventsPath))
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer file.Close()

	var records []EventRecord
	err = scanLines(snappy.NewReader(file), func(line []byte) error {
		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: events: %v", ErrCorruptReplay, err)
	}
	return records, nil
}

// loadInputs reads the command stream. Ticks past limit are rejected before
// any gap up to them is filled.
func loadInputs(path string, limit uint64) ([]input.Command, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: inputs: %v", ErrCorruptReplay, err)
	}
	defer decoder.Close()

	var commands []input.Command
	err = scanLines(decoder, func(line []byte) error {
		var record inputRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return err
		}
		if record.Tick <= uint64(len(commands)) {
			return fmt.Errorf("tick %d out of order", record.Tick)
		}
		if record.Tick > limit {
			return fmt.Errorf("tick %d beyond limit %d", record.Tick, limit)
		}
		// Gaps replay as idle ticks
		for uint64(len(commands)) < record.Tick-1 {
			commands = append(commands, input.Command{})
		}
		commands = append(commands, record.Command)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: inputs: %v", ErrCorruptReplay, err)
	}
	return commands, nil
}

func scanLines(r io.Reader, fn func([]byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
