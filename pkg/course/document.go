// pkg/course/document.go
package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-spacerace/pkg/physics"
)

// DocumentVersion is the course document version written by Encode
const DocumentVersion = 1

// ErrMalformedCourse is wrapped by every FormatError
var ErrMalformedCourse = errors.New("course: malformed course data")

// FormatError describes the first invalid field of a course document
type FormatError struct {
	Field  string
	Index  int // record index, -1 for top-level fields
	Reason string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("course: %s: %s", e.Field, e.Reason)
	}
	section, field, found := strings.Cut(e.Field, ".")
	if !found {
		return fmt.Sprintf("course: %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("course: %s[%d].%s: %s", section, e.Index, field, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrMalformedCourse
}

// Format is the textual encoding of a course document
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks the encoding from the file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the on-disk representation of a course. Pointer fields
// distinguish a missing value from a zero one.
type Document struct {
	Version    int              `json:"version" yaml:"version"`
	Name       string           `json:"name" yaml:"name"`
	Boundaries *Bounds          `json:"boundaries,omitempty" yaml:"boundaries,omitempty"`
	Gates      []GateRecord     `json:"gates" yaml:"gates"`
	Obstacles  []ObstacleRecord `json:"obstacles" yaml:"obstacles"`
}

// GateRecord is one gate entry. Orientation holds either yaw, pitch and roll
// in degrees or a w, x, y, z quaternion.
type GateRecord struct {
	Index       *int      `json:"index" yaml:"index"`
	Position    []float64 `json:"position" yaml:"position,flow"`
	Orientation []float64 `json:"orientation" yaml:"orientation,flow"`
	Radius      *float64  `json:"radius" yaml:"radius"`
}

// ObstacleRecord is one obstacle entry
type ObstacleRecord struct {
	Position        []float64 `json:"position" yaml:"position,flow"`
	Scale           *float64  `json:"scale" yaml:"scale"`
	Model           *int      `json:"model" yaml:"model"`
	Orientation     []float64 `json:"orientation,omitempty" yaml:"orientation,flow,omitempty"`
	AngularVelocity []float64 `json:"angular_velocity,omitempty" yaml:"angular_velocity,flow,omitempty"`
}

// Decode reads a course document and converts it into a layout. A layout
// without gates is accepted here so editors can open unfinished courses;
// New rejects it.
func Decode(r io.Reader, format Format) (Layout, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return Layout{}, fmt.Errorf("%w: %v", ErrMalformedCourse, err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return Layout{}, fmt.Errorf("%w: %v", ErrMalformedCourse, err)
		}
	}
	return doc.Layout()
}

// Layout validates the document structure and converts it
func (d Document) Layout() (Layout, error) {
	if d.Version > DocumentVersion || d.Version < 0 {
		return Layout{}, &FormatError{Field: "version", Index: -1, Reason: fmt.Sprintf("unsupported version %d", d.Version)}
	}

	layout := Layout{Name: d.Name, Bounds: DefaultBounds()}
	if d.Boundaries != nil {
		if err := validateBounds(*d.Boundaries); err != nil {
			return Layout{}, err
		}
		layout.Bounds = *d.Boundaries
	}

	gates, err := decodeGates(d.Gates)
	if err != nil {
		return Layout{}, err
	}
	layout.Gates = gates

	for i, record := range d.Obstacles {
		obstacle, err := record.obstacle(i)
		if err != nil {
			return Layout{}, err
		}
		layout.Obstacles = append(layout.Obstacles, obstacle)
	}
	return layout, nil
}

func decodeGates(records []GateRecord) ([]Gate, error) {
	gates := make([]Gate, len(records))
	seen := make([]bool, len(records))
	for i, record := range records {
		gate, err := record.gate(i)
		if err != nil {
			return nil, err
		}
		if gate.Index < 0 || gate.Index >= len(records) {
			return nil, &FormatError{Field: "gates.index", Index: i, Reason: fmt.Sprintf("%d out of range [0, %d)", gate.Index, len(records))}
		}
		if seen[gate.Index] {
			return nil, &FormatError{Field: "gates.index", Index: i, Reason: fmt.Sprintf("duplicate index %d", gate.Index)}
		}
		seen[gate.Index] = true
		gates[i] = gate
	}
	sort.Slice(gates, func(a, b int) bool { return gates[a].Index < gates[b].Index })
	return gates, nil
}

func (r GateRecord) gate(i int) (Gate, error) {
	if r.Index == nil {
		return Gate{}, &FormatError{Field: "gates.index", Index: i, Reason: "missing"}
	}
	position, err := decodeVector("gates.position", i, r.Position, true)
	if err != nil {
		return Gate{}, err
	}
	if r.Orientation == nil {
		return Gate{}, &FormatError{Field: "gates.orientation", Index: i, Reason: "missing"}
	}
	orientation, err := decodeOrientation("gates.orientation", i, r.Orientation)
	if err != nil {
		return Gate{}, err
	}
	if r.Radius == nil {
		return Gate{}, &FormatError{Field: "gates.radius", Index: i, Reason: "missing"}
	}
	gate := Gate{Index: *r.Index, Position: position, Orientation: orientation, Radius: *r.Radius}
	if err := validateGate(i, gate); err != nil {
		return Gate{}, err
	}
	return gate, nil
}

func (r ObstacleRecord) obstacle(i int) (Obstacle, error) {
	position, err := decodeVector("obstacles.position", i, r.Position, true)
	if err != nil {
		return Obstacle{}, err
	}
	if r.Scale == nil {
		return Obstacle{}, &FormatError{Field: "obstacles.scale", Index: i, Reason: "missing"}
	}
	if r.Model == nil {
		return Obstacle{}, &FormatError{Field: "obstacles.model", Index: i, Reason: "missing"}
	}
	orientation := physics.Identity()
	if r.Orientation != nil {
		if orientation, err = decodeOrientation("obstacles.orientation", i, r.Orientation); err != nil {
			return Obstacle{}, err
		}
	}
	spin, err := decodeVector("obstacles.angular_velocity", i, r.AngularVelocity, false)
	if err != nil {
		return Obstacle{}, err
	}

	obstacle := Obstacle{
		Position:        position,
		Scale:           *r.Scale,
		Variant:         Variant(*r.Model),
		Orientation:     orientation,
		AngularVelocity: spin,
	}
	if err := validateObstacle(i, obstacle); err != nil {
		return Obstacle{}, err
	}
	return obstacle, nil
}

func decodeVector(field string, i int, values []float64, required bool) (physics.Vector3, error) {
	if values == nil {
		if required {
			return physics.Vector3{}, &FormatError{Field: field, Index: i, Reason: "missing"}
		}
		return physics.Vector3{}, nil
	}
	v, ok := physics.FromSlice(values)
	if !ok {
		return physics.Vector3{}, &FormatError{Field: field, Index: i, Reason: fmt.Sprintf("expected 3 components, got %d", len(values))}
	}
	if !v.IsFinite() {
		return physics.Vector3{}, &FormatError{Field: field, Index: i, Reason: "must be finite"}
	}
	return v, nil
}

func decodeOrientation(field string, i int, values []float64) (physics.Orientation, error) {
	for _, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return physics.Orientation{}, &FormatError{Field: field, Index: i, Reason: "must be finite"}
		}
	}
	switch len(values) {
	case 3:
		return physics.FromEuler(values[0], values[1], values[2]), nil
	case 4:
		o, err := physics.FromQuaternion(values[0], values[1], values[2], values[3])
		if err != nil {
			return physics.Orientation{}, &FormatError{Field: field, Index: i, Reason: "zero quaternion"}
		}
		return o, nil
	default:
		return physics.Orientation{}, &FormatError{Field: field, Index: i, Reason: fmt.Sprintf("expected 3 or 4 components, got %d", len(values))}
	}
}

// NewDocument converts a layout into its document form. Gate indices follow
// slice order and orientations are written as quaternions.
func NewDocument(layout Layout) Document {
	bounds := layout.Bounds
	if bounds.IsZero() {
		bounds = DefaultBounds()
	}
	doc := Document{
		Version:    DocumentVersion,
		Name:       layout.Name,
		Boundaries: &bounds,
		Gates:      make([]GateRecord, len(layout.Gates)),
		Obstacles:  make([]ObstacleRecord, len(layout.Obstacles)),
	}
	for i, gate := range layout.Gates {
		index, radius := i, gate.Radius
		doc.Gates[i] = GateRecord{
			Index:       &index,
			Position:    gate.Position.Slice(),
			Orientation: gate.Orientation.Slice(),
			Radius:      &radius,
		}
	}
	for i, obstacle := range layout.Obstacles {
		scale, model := obstacle.Scale, int(obstacle.Variant)
		doc.Obstacles[i] = ObstacleRecord{
			Position:        obstacle.Position.Slice(),
			Scale:           &scale,
			Model:           &model,
			Orientation:     obstacle.Orientation.Slice(),
			AngularVelocity: obstacle.AngularVelocity.Slice(),
		}
	}
	return doc
}

// Encode writes layout as a course document
func Encode(w io.Writer, layout Layout, format Format) error {
	doc := NewDocument(layout)
	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("course: encode yaml: %w", err)
		}
		return encoder.Close()
	default:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("course: encode json: %w", err)
		}
		return nil
	}
}

// LoadLayout reads a course document from disk without building a course
func LoadLayout(path string) (Layout, error) {
	file, err := os.Open(path)
	if err != nil {
		return Layout{}, fmt.Errorf("course: open %s: %w", path, err)
	}
	defer file.Close()

	layout, err := Decode(file, FormatFromPath(path))
	if err != nil {
		return Layout{}, fmt.Errorf("course: load %s: %w", path, err)
	}
	return layout, nil
}

// Load reads and validates a course from disk
func Load(path string) (*Course, error) {
	layout, err := LoadLayout(path)
	if err != nil {
		return nil, err
	}
	c, err := New(layout)
	if err != nil {
		return nil, fmt.Errorf("course: load %s: %w", path, err)
	}
	return c, nil
}

// Save writes a layout to disk, picking the encoding from the extension
func Save(path string, layout Layout) error {
	var buf bytes.Buffer
	if err := Encode(&buf, layout, FormatFromPath(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("course: save %s: %w", path, err)
	}
	return nil
}

// checksum hashes the canonical JSON form of the layout
func checksum(layout Layout) (uint64, error) {
	data, err := json.Marshal(NewDocument(layout))
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
