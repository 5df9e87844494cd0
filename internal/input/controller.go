// Package input turns pointer events into pan deltas.
//
// The controller is a small state machine over a single drag session. It
// does not know about any event source; callers feed it PointerEvent values,
// which makes it easy to drive from a websocket, an HTTP handler or a test.
package input

// Kind is the pointer event type.
type Kind string

const (
	Down   Kind = "down"
	Move   Kind = "move"
	Up     Kind = "up"
	Cancel Kind = "cancel"
)

// Rect is the canvas's on-screen bounding box in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PointerEvent carries device coordinates relative to the page, plus the
// canvas bounding box at the time of the event.
type PointerEvent struct {
	Kind      Kind    `json:"kind"`
	PointerID int     `json:"pointer_id"`
	ClientX   float64 `json:"client_x"`
	ClientY   float64 `json:"client_y"`
	Rect      Rect    `json:"rect"`
}

// DragSession exists only while one pointer is pressed on the canvas.
type DragSession struct {
	Active    bool
	PointerID int
	LastX     float64
	LastY     float64
}

// Controller maps events into the canvas's internal pixel space
// (InternalSize square) and tracks the drag.
type Controller struct {
	InternalSize float64

	drag DragSession
}

func NewController(internalSize int) *Controller {
	return &Controller{InternalSize: float64(internalSize)}
}

// Session returns a copy of the current drag state.
func (c *Controller) Session() DragSession { return c.drag }

// Dragging reports whether a pointer is captured.
func (c *Controller) Dragging() bool { return c.drag.Active }

// Map rescales client coordinates into canvas pixels, each axis on its own.
// A degenerate rect maps 1:1.
func (c *Controller) Map(ev PointerEvent) (x, y float64) {
	x = ev.ClientX - ev.Rect.Left
	y = ev.ClientY - ev.Rect.Top
	if ev.Rect.Width > 0 {
		x *= c.InternalSize / ev.Rect.Width
	}
	if ev.Rect.Height > 0 {
		y *= c.InternalSize / ev.Rect.Height
	}
	return x, y
}

// Handle applies ev. hasImage gates the start of a drag. The returned delta
// is the pan to add; moved is true only when the caller should re-render.
//
//	Idle     + down (image)        -> Dragging
//	Dragging + move (same id)      -> Dragging, delta
//	Dragging + up/cancel (same id) -> Idle
//	anything else                  -> ignored
func (c *Controller) Handle(ev PointerEvent, hasImage bool) (dx, dy float64, moved bool) {
	if !c.drag.Active {
		if ev.Kind == Down && hasImage {
			x, y := c.Map(ev)
			c.drag = DragSession{Active: true, PointerID: ev.PointerID, LastX: x, LastY: y}
		}
		return 0, 0, false
	}

	if ev.PointerID != c.drag.PointerID {
		return 0, 0, false
	}

	switch ev.Kind {
	case Move:
		x, y := c.Map(ev)
		dx, dy = x-c.drag.LastX, y-c.drag.LastY
		c.drag.LastX, c.drag.LastY = x, y
		return dx, dy, true
	case Up, Cancel:
		c.Release()
	}
	return 0, 0, false
}

// Release drops any captured pointer.
func (c *Controller) Release() {
	c.drag = DragSession{}
}
