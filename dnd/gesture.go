// Package dnd maps a drag gesture onto a board move. The coordinator is a
// two-state machine: Idle until a card drag begins, Dragging until the
// pointer is released. A release over a column invokes MoveTask exactly
// once; a release anywhere else aborts the gesture with no mutation.
package dnd

import "errors"

var (
	// ErrGestureActive is returned when a drag begins while another is in
	// flight. The interaction model is single-pointer, one gesture at a time.
	ErrGestureActive = errors.New("drag gesture already in progress")
	// ErrNoPayload is returned when a drag begins without a task id.
	ErrNoPayload = errors.New("drag gesture requires a task id")
)

// Phase is the coordinator's gesture state.
type Phase int

const (
	Idle Phase = iota
	Dragging
)

// Mover is the board operation a completed gesture invokes.
type Mover interface {
	MoveTask(taskID, statusID string)
}

// Coordinator tracks one drag gesture and fires the move on drop. It is not
// safe for concurrent use: gestures come from a single pointer, so calls are
// inherently serialized by the input source.
type Coordinator struct {
	mover   Mover
	phase   Phase
	payload string
	hover   string
}

// NewCoordinator creates a coordinator dispatching drops to mover.
func NewCoordinator(mover Mover) *Coordinator {
	return &Coordinator{mover: mover}
}

// Phase returns the current gesture state.
func (c *Coordinator) Phase() Phase {
	return c.phase
}

// Payload returns the dragged task id, empty when idle.
func (c *Coordinator) Payload() string {
	if c.phase != Dragging {
		return ""
	}
	return c.payload
}

// Begin starts a gesture with the given task as payload.
func (c *Coordinator) Begin(taskID string) error {
	if taskID == "" {
		return ErrNoPayload
	}
	if c.phase == Dragging {
		return ErrGestureActive
	}
	c.phase = Dragging
	c.payload = taskID
	c.hover = ""
	return nil
}

// Enter records the pointer crossing into a column. Hover state feeds visual
// feedback only; board data does not change here.
func (c *Coordinator) Enter(statusID string) {
	if c.phase != Dragging {
		return
	}
	c.hover = statusID
}

// Leave clears hover state when the pointer exits the column it was over.
func (c *Coordinator) Leave(statusID string) {
	if c.phase != Dragging || c.hover != statusID {
		return
	}
	c.hover = ""
}

// Hovering returns the id of the column the payload is currently over,
// empty when none.
func (c *Coordinator) Hovering() string {
	if c.phase != Dragging {
		return ""
	}
	return c.hover
}

// Drop releases the payload over the given column and invokes the move.
// It reports whether a move was dispatched: a drop with no active gesture or
// no target column dispatches nothing.
func (c *Coordinator) Drop(statusID string) bool {
	if c.phase != Dragging {
		return false
	}
	taskID := c.payload
	c.reset()
	if statusID == "" {
		return false
	}
	c.mover.MoveTask(taskID, statusID)
	return true
}

// Cancel aborts the gesture without mutating the board. Safe to call when
// idle.
func (c *Coordinator) Cancel() {
	c.reset()
}

func (c *Coordinator) reset() {
	c.phase = Idle
	c.payload = ""
	c.hover = ""
}
