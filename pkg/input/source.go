// pkg/input/source.go
package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// Source supplies the command for each tick. Ticks start at 1.
type Source interface {
	Next(tick uint64) Command
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(tick uint64) Command

// Next calls f
func (f SourceFunc) Next(tick uint64) Command { return f(tick) }

// Idle is a source that never applies input
type Idle struct{}

// Next returns the zero command
func (Idle) Next(uint64) Command { return Command{} }

// Constant repeats the same command every tick
type Constant Command

// Next returns the command
func (c Constant) Next(uint64) Command { return Command(c) }

// ErrEmptyScript is returned when a script has no segment
var ErrEmptyScript = errors.New("input: script has no segments")

// ScriptDocument is the file form of a scripted flight. Each segment holds a
// command for a number of ticks; a segment gives either raw vectors or
// controller axes.
type ScriptDocument struct {
	Name     string          `json:"name" yaml:"name"`
	Loop     bool            `json:"loop" yaml:"loop"`
	Segments []ScriptSegment `json:"segments" yaml:"segments"`
}

// ScriptSegment is one stretch of constant input
type ScriptSegment struct {
	Ticks  uint64    `json:"ticks" yaml:"ticks"`
	Thrust []float64 `json:"thrust,omitempty" yaml:"thrust,flow,omitempty"`
	Torque []float64 `json:"torque,omitempty" yaml:"torque,flow,omitempty"`
	Axes   *Axes     `json:"axes,omitempty" yaml:"axes,omitempty"`
}

// Script plays back timed segments. After the last segment it idles, or
// starts over when Loop is set.
type Script struct {
	name     string
	loop     bool
	commands []Command
	ends     []uint64 // cumulative tick count at the end of each segment
}

// NewScript compiles a script document. Axes segments are converted with
// mapper.
func NewScript(doc ScriptDocument, mapper Mapper) (*Script, error) {
	if len(doc.Segments) == 0 {
		return nil, ErrEmptyScript
	}
	s := &Script{name: doc.Name, loop: doc.Loop}
	var total uint64
	for i, segment := range doc.Segments {
		if segment.Ticks == 0 {
			return nil, fmt.Errorf("input: segment %d: ticks must be positive", i)
		}
		command, err := segment.command(mapper)
		if err != nil {
			return nil, fmt.Errorf("input: segment %d: %w", i, err)
		}
		total += segment.Ticks
		s.commands = append(s.commands, command)
		s.ends = append(s.ends, total)
	}
	return s, nil
}

func (seg ScriptSegment) command(mapper Mapper) (Command, error) {
	if seg.Axes != nil {
		if seg.Thrust != nil || seg.Torque != nil {
			return Command{}, errors.New("axes cannot be combined with thrust or torque")
		}
		return mapper.Map(*seg.Axes), nil
	}
	thrust, err := optionalVector("thrust", seg.Thrust)
	if err != nil {
		return Command{}, err
	}
	torque, err := optionalVector("torque", seg.Torque)
	if err != nil {
		return Command{}, err
	}
	return Command{Thrust: thrust, Torque: torque}, nil
}

func optionalVector(name string, values []float64) (physics.Vector3, error) {
	if values == nil {
		return physics.Vector3{}, nil
	}
	v, ok := physics.FromSlice(values)
	if !ok {
		return physics.Vector3{}, fmt.Errorf("%s: expected 3 components, got %d", name, len(values))
	}
	if !v.IsFinite() {
		return physics.Vector3{}, fmt.Errorf("%s: must be finite", name)
	}
	return v, nil
}

// Name returns the script name
func (s *Script) Name() string { return s.name }

// Duration returns the number of ticks covered by one pass of the script
func (s *Script) Duration() uint64 { return s.ends[len(s.ends)-1] }

// Next returns the command for tick
func (s *Script) Next(tick uint64) Command {
	if tick == 0 {
		return Command{}
	}
	offset := tick - 1
	if offset >= s.Duration() {
		if !s.loop {
			return Command{}
		}
		offset %= s.Duration()
	}
	i := sort.Search(len(s.ends), func(i int) bool { return s.ends[i] > offset })
	return s.commands[i]
}

// DecodeScript reads a script document as YAML or JSON
func DecodeScript(r io.Reader, yamlFormat bool) (ScriptDocument, error) {
	var doc ScriptDocument
	var err error
	if yamlFormat {
		err = yaml.NewDecoder(r).Decode(&doc)
	} else {
		err = json.NewDecoder(r).Decode(&doc)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return ScriptDocument{}, fmt.Errorf("input: decode script: %w", err)
	}
	return doc, nil
}

// LoadScript reads and compiles a script file. Files ending in .yaml or
// .yml are YAML, anything else JSON.
func LoadScript(path string, mapper Mapper) (*Script, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: open script: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	doc, err := DecodeScript(file, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, err
	}
	return NewScript(doc, mapper)
}
