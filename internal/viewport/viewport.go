// Package viewport holds the zoom/pan transform applied to the user image.
package viewport

import "fmt"

const (
	DefaultMinZoom = 1.0
	DefaultMaxZoom = 3.0
)

// State is the transform of the user image. PanX and PanY are in preview
// canvas pixels; the compositor rescales them for other output sizes.
type State struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"pan_x"`
	PanY float64 `json:"pan_y"`
}

// Default returns zoom 1 with no pan.
func Default() State {
	return State{Zoom: 1}
}

// ZoomText formats the zoom the way the zoom slider label shows it.
func (s State) ZoomText() string {
	return fmt.Sprintf("%.2fx", s.Zoom)
}

// Limits bounds the zoom factor. Pan is never bounded.
type Limits struct {
	Min float64
	Max float64
}

func DefaultLimits() Limits {
	return Limits{Min: DefaultMinZoom, Max: DefaultMaxZoom}
}

func (l Limits) Validate() error {
	if l.Min <= 0 {
		return fmt.Errorf("min zoom must be positive, got %v", l.Min)
	}
	if l.Max < l.Min {
		return fmt.Errorf("max zoom %v below min zoom %v", l.Max, l.Min)
	}
	if l.Min > 1 || l.Max < 1 {
		return fmt.Errorf("zoom range [%v, %v] must include 1", l.Min, l.Max)
	}
	return nil
}

func (l Limits) Clamp(zoom float64) float64 {
	if zoom < l.Min {
		return l.Min
	}
	if zoom > l.Max {
		return l.Max
	}
	return zoom
}

// Viewport is the mutable state owned by a session.
type Viewport struct {
	limits Limits
	state  State
}

func New(limits Limits) *Viewport {
	return &Viewport{limits: limits, state: Default()}
}

func (v *Viewport) State() State { return v.state }

func (v *Viewport) Limits() Limits { return v.limits }

// SetZoom stores the zoom, held inside the slider bounds.
func (v *Viewport) SetZoom(zoom float64) {
	v.state.Zoom = v.limits.Clamp(zoom)
}

// Pan adds a drag delta.
func (v *Viewport) Pan(dx, dy float64) {
	v.state.PanX += dx
	v.state.PanY += dy
}

func (v *Viewport) Reset() {
	v.state = Default()
}

// Recenter drops the pan and keeps the zoom.
func (v *Viewport) Recenter() {
	v.state.PanX = 0
	v.state.PanY = 0
}
