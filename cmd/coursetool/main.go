// cmd/coursetool/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/editor"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/physics"
)

const usage = `usage: coursetool <command> [flags] <course file>

commands:
  new           create an empty course
  add-gate      append a gate to the race order
  add-obstacle  add an obstacle
  generate      scatter a random obstacle field
  move          move a gate or obstacle
  delete        remove a gate or obstacle
  resize        grow or shrink the course bounds
  rename        rename the course
  validate      check that the course can be raced
  info          print a summary of the course
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "coursetool:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("no command given")
	}

	name, args := args[0], args[1:]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Log editor activity")

	var build func() (editor.Command, error)
	switch name {
	case "new":
		title := fs.String("name", "Untitled", "Course name")
		if err := parse(fs, args); err != nil {
			return err
		}
		return createCourse(fs.Arg(0), *title, stdout)

	case "add-gate":
		pos := fs.String("pos", "0,0,0", "Gate centre as x,y,z")
		rot := fs.String("rot", "0,0,0", "Gate yaw,pitch,roll in degrees")
		radius := fs.Float64("radius", editor.DefaultGateRadius, "Gate radius")
		build = func() (editor.Command, error) {
			p, err := parseVector(*pos)
			if err != nil {
				return nil, err
			}
			o, err := parseRotation(*rot)
			if err != nil {
				return nil, err
			}
			return editor.AddGate{Position: p, Orientation: o, Radius: *radius}, nil
		}

	case "add-obstacle":
		pos := fs.String("pos", "0,0,0", "Obstacle centre as x,y,z")
		rot := fs.String("rot", "0,0,0", "Obstacle yaw,pitch,roll in degrees")
		spin := fs.String("spin", "0,0,0", "Angular velocity in rad/s as x,y,z")
		scale := fs.Float64("scale", editor.DefaultObstacleScale, "Obstacle scale")
		model := fs.String("model", "jagged", "Model: cube, tetrahedron or jagged")
		build = func() (editor.Command, error) {
			p, err := parseVector(*pos)
			if err != nil {
				return nil, err
			}
			o, err := parseRotation(*rot)
			if err != nil {
				return nil, err
			}
			w, err := parseVector(*spin)
			if err != nil {
				return nil, err
			}
			v, err := parseVariant(*model)
			if err != nil {
				return nil, err
			}
			return editor.AddObstacle{Position: p, Orientation: o, AngularVelocity: w, Scale: *scale, Variant: v}, nil
		}

	case "generate":
		seed := fs.Int64("seed", 1, "Random seed")
		count := fs.Int("count", editor.DefaultFieldCount, "Number of obstacles")
		minScale := fs.Float64("min-scale", editor.DefaultFieldMinScale, "Smallest obstacle scale")
		maxScale := fs.Float64("max-scale", editor.DefaultFieldMaxScale, "Largest obstacle scale")
		build = func() (editor.Command, error) {
			return editor.GenerateField{Seed: *seed, Count: *count, MinScale: *minScale, MaxScale: *maxScale}, nil
		}

	case "move":
		target := fs.String("target", "", "Entity to move, e.g. gate:0 or obstacle:3")
		by := fs.String("by", "0,0,0", "Offset as x,y,z")
		build = func() (editor.Command, error) {
			s, err := parseSelection(*target)
			if err != nil {
				return nil, err
			}
			offset, err := parseVector(*by)
			if err != nil {
				return nil, err
			}
			return editor.Move{Target: s, Offset: offset}, nil
		}

	case "delete":
		target := fs.String("target", "", "Entity to delete, e.g. gate:0 or obstacle:3")
		build = func() (editor.Command, error) {
			s, err := parseSelection(*target)
			if err != nil {
				return nil, err
			}
			return editor.Delete{Target: s}, nil
		}

	case "resize":
		delta := fs.Float64("by", editor.BoundaryStep, "Change applied to every dimension")
		build = func() (editor.Command, error) {
			return editor.ResizeBounds{Delta: *delta}, nil
		}

	case "rename":
		title := fs.String("name", "", "New course name")
		build = func() (editor.Command, error) {
			return editor.Rename{To: *title}, nil
		}

	case "validate":
		if err := parse(fs, args); err != nil {
			return err
		}
		c, err := course.Load(fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: ok (%d gates, %d obstacles, checksum %016x)\n",
			fs.Arg(0), c.NumGates(), c.NumObstacles(), c.Checksum())
		return nil

	case "info":
		if err := parse(fs, args); err != nil {
			return err
		}
		return printInfo(fs.Arg(0), stdout)

	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil

	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", name)
	}

	if err := parse(fs, args); err != nil {
		return err
	}
	cmd, err := build()
	if err != nil {
		return err
	}

	logger := logging.NewNopLogger()
	if *verbose {
		logger = logging.NewLoggerWithWriter(stderr, logging.ParseLevel("DEBUG"))
	}
	return edit(fs.Arg(0), cmd, logger, stdout)
}

// parse reads the flags and requires exactly one course file argument
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s: expected one course file, got %d arguments", fs.Name(), fs.NArg())
	}
	return nil
}

func createCourse(path, name string, out io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	ed := editor.New(course.Layout{Bounds: course.DefaultBounds()}, nil)
	if err := ed.Apply(editor.Rename{To: name}); err != nil {
		return err
	}
	if err := ed.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s\n", path)
	return nil
}

// edit applies one command to the course file and writes it back
func edit(path string, cmd editor.Command, logger *logging.Logger, out io.Writer) error {
	ed, err := editor.Open(path, logger)
	if err != nil {
		return err
	}
	if err := ed.Apply(cmd); err != nil {
		return err
	}
	if err := ed.Save(path); err != nil {
		return err
	}

	layout := ed.Layout()
	if s, ok := ed.Selection(); ok {
		fmt.Fprintf(out, "%s: %s -> %s\n", path, cmd.Name(), s)
	} else {
		fmt.Fprintf(out, "%s: %s\n", path, cmd.Name())
	}
	fmt.Fprintf(out, "%d gates, %d obstacles\n", len(layout.Gates), len(layout.Obstacles))
	return nil
}

func printInfo(path string, out io.Writer) error {
	layout, err := course.LoadLayout(path)
	if err != nil {
		return err
	}
	bounds := layout.Bounds
	if bounds.IsZero() {
		bounds = course.DefaultBounds()
	}

	fmt.Fprintf(out, "name:      %s\n", layout.Name)
	fmt.Fprintf(out, "bounds:    %.0f x %.0f x %.0f\n", bounds.Width, bounds.Height, bounds.Depth)
	fmt.Fprintf(out, "gates:     %d\n", len(layout.Gates))
	for i, g := range layout.Gates {
		fmt.Fprintf(out, "  %2d  (%.1f, %.1f, %.1f)  r=%.1f\n", i, g.Position.X, g.Position.Y, g.Position.Z, g.Radius)
	}
	fmt.Fprintf(out, "obstacles: %d\n", len(layout.Obstacles))

	c, err := course.New(layout)
	if err != nil {
		fmt.Fprintf(out, "status:    not raceable: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "checksum:  %016x\n", c.Checksum())
	return nil
}

func parseVector(s string) (physics.Vector3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return physics.Vector3{}, fmt.Errorf("invalid vector %q: expected x,y,z", s)
	}
	values := make([]float64, 3)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return physics.Vector3{}, fmt.Errorf("invalid vector %q: %w", s, err)
		}
		values[i] = v
	}
	v, _ := physics.FromSlice(values)
	return v, nil
}

func parseRotation(s string) (physics.Orientation, error) {
	v, err := parseVector(s)
	if err != nil {
		return physics.Orientation{}, err
	}
	return physics.FromEuler(v.X, v.Y, v.Z), nil
}

func parseVariant(s string) (course.Variant, error) {
	for v := course.VariantCube; v <= course.VariantJagged; v++ {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown model %q", s)
}

// parseSelection reads kind:index, e.g. gate:2
func parseSelection(s string) (editor.Selection, error) {
	kind, index, ok := strings.Cut(s, ":")
	if !ok {
		return editor.Selection{}, fmt.Errorf("invalid target %q: expected kind:index", s)
	}
	k, err := editor.ParseKind(kind)
	if err != nil {
		return editor.Selection{}, err
	}
	i, err := strconv.Atoi(index)
	if err != nil {
		return editor.Selection{}, fmt.Errorf("invalid target %q: %w", s, err)
	}
	return editor.Selection{Kind: k, Index: i}, nil
}
