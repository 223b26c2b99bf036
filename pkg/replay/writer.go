// pkg/replay/writer.go
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/event"
	"github.com/opd-ai/go-spacerace/pkg/input"
)

// FormatVersion is the replay bundle layout version. Version 2 added the
// flight settings to the manifest.
const FormatVersion = 2

// File names inside a replay bundle
const (
	ManifestFile = "manifest.json"
	InputsFile   = "inputs.jsonl.zst"
	EventsFile   = "events.jsonl.sz"
)

var folderCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes a recorded session
type Manifest struct {
	Version        int       `json:"version"`
	SessionID      string    `json:"session_id"`
	Pilot          string    `json:"pilot,omitempty"`
	CourseName     string    `json:"course_name"`
	CourseChecksum uint64    `json:"course_checksum"`
	TickRate       int       `json:"tick_rate"`
	Flight         *Flight   `json:"flight,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Ticks          uint64    `json:"ticks"`
	FinalStatus    string    `json:"final_status,omitempty"`
	InputsPath     string    `json:"inputs_path"`
	EventsPath     string    `json:"events_path"`
}

// Flight holds the settings that decide how recorded commands move the
// craft. Playback applies them over the local configuration.
type Flight struct {
	Craft           config.CraftConfig `json:"craft"`
	Limits          input.Limits       `json:"limits"`
	HaltOnCollision bool               `json:"halt_on_collision"`
}

// FlightOf captures the flight settings of cfg
func FlightOf(cfg *config.Config) *Flight {
	return &Flight{
		Craft:           cfg.Craft,
		Limits:          cfg.Input.Limits(),
		HaltOnCollision: cfg.Simulation.HaltOnCollision,
	}
}

// inputRecord is one line of the inputs stream
type inputRecord struct {
	Tick uint64 `json:"tick"`
	input.Command
}

// EventRecord is one line of the events stream
type EventRecord struct {
	Tick        uint64     `json:"tick"`
	Type        event.Type `json:"type"`
	Gate        int        `json:"gate"`
	Obstacle    int        `json:"obstacle"`
	GatesPassed int        `json:"gates_passed"`
	Status      string     `json:"status,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// recordedEvents are the event types a recorder captures
var recordedEvents = []event.Type{
	event.SessionStarted,
	event.SessionStopped,
	event.GatePassed,
	event.RaceFinished,
	event.ObstacleCollision,
	event.BoundaryLeft,
}

// Recorder streams the applied commands and race events of one session to
// a replay bundle. Commands are zstd compressed, events snappy compressed.
type Recorder struct {
	mu          sync.Mutex
	dir         string
	manifest    Manifest
	inputFile   *os.File
	inputStream *zstd.Encoder
	inputEnc    *json.Encoder
	eventFile   *os.File
	eventStream *snappy.Writer
	eventEnc    *json.Encoder
	lastTick    uint64
	closed      bool
}

// NewRecorder creates a bundle directory under root and opens the
// compressed streams. SessionID, course, tick rate and flight settings are
// taken from manifest; the remaining fields are filled in by the recorder.
func NewRecorder(root string, manifest Manifest, clock func() time.Time) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("replay: root directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	name := folderCleaner.ReplaceAllString(manifest.SessionID, "")
	if name == "" {
		name = "session"
	}
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", created.Format("20060102T150405Z"), name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	inputFile, err := os.Create(filepath.Join(dir, InputsFile))
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	inputStream, err := zstd.NewWriter(inputFile)
	if err != nil {
		inputFile.Close()
		return nil, fmt.Errorf("replay: %w", err)
	}

	eventFile, err := os.Create(filepath.Join(dir, EventsFile))
	if err != nil {
		inputStream.Close()
		inputFile.Close()
		return nil, fmt.Errorf("replay: %w", err)
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	manifest.Version = FormatVersion
	manifest.CreatedAt = created
	manifest.Ticks = 0
	manifest.FinalStatus = ""
	manifest.InputsPath = InputsFile
	manifest.EventsPath = EventsFile

	r := &Recorder{
		dir:         dir,
		manifest:    manifest,
		inputFile:   inputFile,
		inputStream: inputStream,
		inputEnc:    json.NewEncoder(inputStream),
		eventFile:   eventFile,
		eventStream: eventStream,
		eventEnc:    json.NewEncoder(eventStream),
	}
	if err := r.writeManifest(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Dir returns the bundle directory
func (r *Recorder) Dir() string {
	return r.dir
}

// Manifest returns the manifest as it stands
func (r *Recorder) Manifest() Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifest
}

// RecordTick appends the command applied on tick. Ticks must increase.
func (r *Recorder) RecordTick(tick uint64, cmd input.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("replay: recorder closed")
	}
	if tick <= r.lastTick {
		return fmt.Errorf("replay: tick %d recorded after tick %d", tick, r.lastTick)
	}
	if err := r.inputEnc.Encode(inputRecord{Tick: tick, Command: cmd}); err != nil {
		return fmt.Errorf("replay: write input: %w", err)
	}
	r.lastTick = tick
	r.manifest.Ticks = tick
	return nil
}

// RecordEvent appends a session or race event
func (r *Recorder) RecordEvent(e event.Event) error {
	record, ok := toRecord(e)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("replay: recorder closed")
	}
	switch record.Type {
	case event.RaceFinished, event.ObstacleCollision:
		r.manifest.FinalStatus = record.Status
	}
	if err := r.eventEnc.Encode(record); err != nil {
		return fmt.Errorf("replay: write event: %w", err)
	}
	return r.eventStream.Flush()
}

// Attach subscribes the recorder to the recorded event types on bus. The
// returned function detaches it.
func (r *Recorder) Attach(bus *event.Bus) func() {
	subs := make([]*event.Subscription, 0, len(recordedEvents))
	for _, typ := range recordedEvents {
		subs = append(subs, bus.Subscribe(typ, func(e event.Event) {
			// Best effort: playback only needs the inputs stream
			_ = r.RecordEvent(e)
		}))
	}
	return func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}
}

// Close flushes both streams and rewrites the manifest with the final tick
// count and status
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	if err := r.inputStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.inputFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.writeManifest(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (r *Recorder) writeManifest() error {
	data, err := json.MarshalIndent(r.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("replay: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("replay: write manifest: %w", err)
	}
	return nil
}

func toRecord(e event.Event) (EventRecord, bool) {
	switch ev := e.(type) {
	case *event.RaceEvent:
		return EventRecord{
			Tick:        ev.Tick,
			Type:        ev.GetType(),
			Gate:        ev.Gate,
			Obstacle:    ev.Obstacle,
			GatesPassed: ev.GatesPassed,
			Status:      ev.Status,
		}, true
	case *event.SessionEvent:
		return EventRecord{Tick: ev.Tick, Type: ev.GetType(), Gate: -1, Obstacle: -1, Reason: ev.Reason}, true
	case *event.BoundaryEvent:
		return EventRecord{Tick: ev.Tick, Type: ev.GetType(), Gate: -1, Obstacle: -1}, true
	default:
		return EventRecord{}, false
	}
}
