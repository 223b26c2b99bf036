// pkg/render/terminal.go
package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/physics"
	"github.com/opd-ai/go-spacerace/pkg/race"
)

// Map symbols
const (
	symbolEmpty      = ' '
	symbolTarget     = 'O'
	symbolGate       = 'o'
	symbolPassedGate = '.'
	symbolObstacle   = '*'
	symbolCollided   = 'X'
	clearScreen      = "\033[H\033[2J"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	defaultScale  = 20.0
)

// TerminalRenderer draws a top-down ASCII map of the X-Z plane, with +Z
// pointing up the screen, followed by a one-line HUD. The view follows the
// craft until SetCenter pins it.
type TerminalRenderer struct {
	out       io.Writer
	width     int
	height    int
	buffer    [][]rune
	scale     float64 // metres per character
	centerPos physics.Vector3
	follow    bool
	hud       string
	ansi      bool
}

// NewTerminalRenderer creates a new terminal renderer with the specified
// dimensions. Non-positive values fall back to an 80x24 map at 20 m per
// character.
func NewTerminalRenderer(out io.Writer, width, height int, scale float64) *TerminalRenderer {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	if !(scale > 0) {
		scale = defaultScale
	}

	buffer := make([][]rune, height)
	for i := range buffer {
		buffer[i] = make([]rune, width)
	}

	return &TerminalRenderer{
		out:    out,
		width:  width,
		height: height,
		buffer: buffer,
		scale:  scale,
		follow: true,
		ansi:   true,
	}
}

// SetANSI enables or disables the clear-screen escape before each frame
func (r *TerminalRenderer) SetANSI(enabled bool) {
	r.ansi = enabled
}

// SetCenter pins the center position of the view
func (r *TerminalRenderer) SetCenter(pos physics.Vector3) {
	r.centerPos = pos
	r.follow = false
}

// worldToScreen projects onto the X-Z plane
func (r *TerminalRenderer) worldToScreen(pos, center physics.Vector3) (int, int) {
	screenX := int(math.Floor((pos.X-center.X)/r.scale + float64(r.width)/2))
	screenY := int(math.Floor(float64(r.height)/2 - (pos.Z-center.Z)/r.scale))
	return screenX, screenY
}

func (r *TerminalRenderer) plot(pos physics.Vector3, snap engine.Snapshot, symbol rune) {
	center := r.centerPos
	if r.follow {
		center = snap.Body.Position
	}
	x, y := r.worldToScreen(pos, center)
	if x >= 0 && x < r.width && y >= 0 && y < r.height {
		r.buffer[y][x] = symbol
	}
}

// Clear implements Renderer
func (r *TerminalRenderer) Clear() {
	for y := range r.buffer {
		for x := range r.buffer[y] {
			r.buffer[y][x] = symbolEmpty
		}
	}
	r.hud = ""
}

// RenderObstacle implements Renderer
func (r *TerminalRenderer) RenderObstacle(index int, obstacle course.Obstacle, snap engine.Snapshot) {
	symbol := symbolObstacle
	if snap.Race.Collided && snap.Race.CollidedWith == index {
		symbol = symbolCollided
	}
	r.plot(obstacle.Position, snap, symbol)
}

// RenderGate implements Renderer
func (r *TerminalRenderer) RenderGate(index int, gate course.Gate, snap engine.Snapshot) {
	switch {
	case index < snap.Race.GatesPassed:
		r.plot(gate.Position, snap, symbolPassedGate)
	case index == snap.Race.TargetGate && snap.Race.Status == race.Racing:
		r.plot(gate.Position, snap, symbolTarget)
	default:
		r.plot(gate.Position, snap, symbolGate)
	}
}

// RenderCraft implements Renderer. The symbol shows the heading in the X-Z
// plane.
func (r *TerminalRenderer) RenderCraft(snap engine.Snapshot) {
	r.plot(snap.Body.Position, snap, headingSymbol(snap.Body.Orientation.Forward()))
}

// RenderHUD implements Renderer
func (r *TerminalRenderer) RenderHUD(snap engine.Snapshot) {
	r.hud = FormatHUD(snap)
}

// Present implements Renderer
func (r *TerminalRenderer) Present() error {
	w := bufio.NewWriter(r.out)
	if r.ansi {
		w.WriteString(clearScreen)
	}

	border := "+" + strings.Repeat("-", r.width) + "+\n"
	w.WriteString(border)
	for y := range r.buffer {
		w.WriteByte('|')
		w.WriteString(string(r.buffer[y]))
		w.WriteString("|\n")
	}
	w.WriteString(border)
	if r.hud != "" {
		w.WriteString(r.hud)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// FormatHUD summarises a snapshot on one line
func FormatHUD(snap engine.Snapshot) string {
	target := "-"
	if snap.Race.Status == race.Racing {
		target = fmt.Sprintf("%d", snap.Race.TargetGate+1)
	}
	return fmt.Sprintf("tick %d  t=%.2fs  speed %.1f m/s  gates %d/%d  next %s  %s",
		snap.Tick,
		snap.Time,
		snap.Body.Velocity.Length(),
		snap.Race.GatesPassed,
		snap.Race.TotalGates,
		target,
		snap.Race.Status,
	)
}

// headingSymbol picks an arrow for the dominant X-Z direction of forward
func headingSymbol(forward physics.Vector3) rune {
	if math.Abs(forward.X) < 1e-9 && math.Abs(forward.Z) < 1e-9 {
		return '+'
	}
	if math.Abs(forward.Z) >= math.Abs(forward.X) {
		if forward.Z >= 0 {
			return '^'
		}
		return 'v'
	}
	if forward.X >= 0 {
		return '>'
	}
	return '<'
}
