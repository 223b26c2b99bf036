// pkg/editor/editor.go
package editor

import (
	"context"
	"fmt"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/logging"
)

// maxHistory bounds the undo stack
const maxHistory = 100

// Editor holds the layout being edited, the current selection and the
// undo and redo stacks. It is not safe for concurrent use.
type Editor struct {
	layout    course.Layout
	undo      []course.Layout
	redo      []course.Layout
	selection *Selection
	dirty     bool
	logger    *logging.Logger
}

// New creates an editor for layout. A nil logger discards output.
func New(layout course.Layout, logger *logging.Logger) *Editor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Editor{
		layout: layout.Clone(),
		logger: logger.With("component", "editor"),
	}
}

// Open loads a course file into a new editor. Files without gates are
// accepted so unfinished courses can be edited.
func Open(path string, logger *logging.Logger) (*Editor, error) {
	layout, err := course.LoadLayout(path)
	if err != nil {
		return nil, err
	}
	return New(layout, logger), nil
}

// Layout returns a copy of the current layout
func (e *Editor) Layout() course.Layout {
	return e.layout.Clone()
}

// Course validates the current layout and builds a course from it
func (e *Editor) Course() (*course.Course, error) {
	return course.New(e.layout)
}

// Dirty reports whether there are changes since the last Save
func (e *Editor) Dirty() bool { return e.dirty }

// Save writes the current layout to path
func (e *Editor) Save(path string) error {
	if err := course.Save(path, e.layout); err != nil {
		return logging.WrapError(err, "editor: save %s", path)
	}
	e.dirty = false
	e.logger.Info(context.Background(), "course saved",
		"path", path,
		"gates", len(e.layout.Gates),
		"obstacles", len(e.layout.Obstacles),
	)
	return nil
}

// Select makes s the current selection
func (e *Editor) Select(s Selection) error {
	if err := s.check(e.layout); err != nil {
		return err
	}
	e.selection = &s
	return nil
}

// Deselect clears the current selection
func (e *Editor) Deselect() { e.selection = nil }

// Selection returns the current selection, if any
func (e *Editor) Selection() (Selection, bool) {
	if e.selection == nil {
		return Selection{}, false
	}
	return *e.selection, true
}

// Selected returns the current selection or ErrInvalidSelection
func (e *Editor) Selected() (Selection, error) {
	if e.selection == nil {
		return Selection{}, fmt.Errorf("%w: nothing selected", ErrInvalidSelection)
	}
	return *e.selection, nil
}

// Apply runs cmd on the current layout. On success the previous layout is
// pushed on the undo stack and the redo stack is cleared; on failure nothing
// changes.
func (e *Editor) Apply(cmd Command) error {
	next, err := cmd.Apply(e.layout)
	if err != nil {
		return err
	}

	e.undo = append(e.undo, e.layout)
	if len(e.undo) > maxHistory {
		e.undo = e.undo[len(e.undo)-maxHistory:]
	}
	e.redo = nil
	e.layout = next
	e.dirty = true
	e.updateSelection(cmd)

	e.logger.Debug(context.Background(), "command applied",
		"command", cmd.Name(),
		"gates", len(next.Gates),
		"obstacles", len(next.Obstacles),
	)
	return nil
}

// Undo restores the layout before the last applied command
func (e *Editor) Undo() bool {
	if len(e.undo) == 0 {
		return false
	}
	e.redo = append(e.redo, e.layout)
	e.layout = e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.dirty = true
	e.validateSelection()
	return true
}

// Redo reapplies the last undone command
func (e *Editor) Redo() bool {
	if len(e.redo) == 0 {
		return false
	}
	e.undo = append(e.undo, e.layout)
	e.layout = e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.dirty = true
	e.validateSelection()
	return true
}

// CanUndo reports whether Undo would change the layout
func (e *Editor) CanUndo() bool { return len(e.undo) > 0 }

// CanRedo reports whether Redo would change the layout
func (e *Editor) CanRedo() bool { return len(e.redo) > 0 }

// updateSelection selects newly added entities and keeps the selection
// pointing at the same entity across deletions
func (e *Editor) updateSelection(cmd Command) {
	switch c := cmd.(type) {
	case AddGate:
		s := Gate(len(e.layout.Gates) - 1)
		e.selection = &s
	case AddObstacle:
		s := Obstacle(len(e.layout.Obstacles) - 1)
		e.selection = &s
	case Delete:
		if e.selection == nil || e.selection.Kind != c.Target.Kind {
			return
		}
		switch {
		case e.selection.Index == c.Target.Index:
			e.selection = nil
		case e.selection.Index > c.Target.Index:
			s := Selection{Kind: e.selection.Kind, Index: e.selection.Index - 1}
			e.selection = &s
		}
	}
}

func (e *Editor) validateSelection() {
	if e.selection != nil && e.selection.check(e.layout) != nil {
		e.selection = nil
	}
}
