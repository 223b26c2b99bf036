// pkg/render/renderer.go
package render

import (
	"context"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/logging"
)

// Renderer draws frames from session snapshots. A frame is Clear, the
// Render calls, then Present.
type Renderer interface {
	Clear()
	RenderGate(index int, gate course.Gate, snap engine.Snapshot)
	RenderObstacle(index int, obstacle course.Obstacle, snap engine.Snapshot)
	RenderCraft(snap engine.Snapshot)
	RenderHUD(snap engine.Snapshot)
	Present() error
}

// DrawFrame renders one complete frame of c at snap
func DrawFrame(r Renderer, c *course.Course, snap engine.Snapshot) error {
	r.Clear()
	for i, obstacle := range c.Obstacles() {
		r.RenderObstacle(i, obstacle, snap)
	}
	for i, gate := range c.Gates() {
		r.RenderGate(i, gate, snap)
	}
	r.RenderCraft(snap)
	r.RenderHUD(snap)
	return r.Present()
}

// NullRenderer logs render calls at debug level and draws nothing
type NullRenderer struct {
	logger *logging.Logger
}

// NewNullRenderer creates a new NullRenderer. A nil logger discards output.
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NullRenderer{
		logger: logger.With("component", "render"),
	}
}

// Clear implements Renderer.
func (d *NullRenderer) Clear() {
	d.logger.Debug(context.Background(), "Clear called")
}

// Present implements Renderer.
func (d *NullRenderer) Present() error {
	d.logger.Debug(context.Background(), "Present called")
	return nil
}

// RenderGate implements Renderer.
func (d *NullRenderer) RenderGate(index int, gate course.Gate, snap engine.Snapshot) {
	d.logger.Debug(context.Background(), "RenderGate called",
		"gate", index,
		"target", index == snap.Race.TargetGate,
		"radius", gate.Radius,
	)
}

// RenderObstacle implements Renderer.
func (d *NullRenderer) RenderObstacle(index int, obstacle course.Obstacle, snap engine.Snapshot) {
	d.logger.Debug(context.Background(), "RenderObstacle called",
		"obstacle", index,
		"variant", obstacle.Variant.String(),
	)
}

// RenderCraft implements Renderer.
func (d *NullRenderer) RenderCraft(snap engine.Snapshot) {
	d.logger.Debug(context.Background(), "RenderCraft called",
		"tick", snap.Tick,
		"speed", snap.Body.Velocity.Length(),
	)
}

// RenderHUD implements Renderer.
func (d *NullRenderer) RenderHUD(snap engine.Snapshot) {
	d.logger.Debug(context.Background(), "RenderHUD called",
		"tick", snap.Tick,
		"status", snap.Race.Status.String(),
	)
}
