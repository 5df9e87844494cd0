package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 1:1 rect so client coords equal canvas coords.
var square = Rect{Left: 0, Top: 0, Width: 1000, Height: 1000}

func ev(kind Kind, id int, x, y float64) PointerEvent {
	return PointerEvent{Kind: kind, PointerID: id, ClientX: x, ClientY: y, Rect: square}
}

func TestDragProducesDelta(t *testing.T) {
	c := NewController(1000)

	_, _, moved := c.Handle(ev(Down, 1, 500, 500), true)
	assert.False(t, moved)
	assert.True(t, c.Dragging())

	dx, dy, moved := c.Handle(ev(Move, 1, 520, 480), true)
	assert.True(t, moved)
	assert.Equal(t, 20.0, dx)
	assert.Equal(t, -20.0, dy)

	_, _, moved = c.Handle(ev(Up, 1, 520, 480), true)
	assert.False(t, moved)
	assert.False(t, c.Dragging())
}

func TestDownWithoutImageStaysIdle(t *testing.T) {
	c := NewController(1000)
	c.Handle(ev(Down, 1, 10, 10), false)
	assert.False(t, c.Dragging())

	_, _, moved := c.Handle(ev(Move, 1, 20, 20), false)
	assert.False(t, moved)
}

func TestOtherPointerIgnored(t *testing.T) {
	c := NewController(1000)
	c.Handle(ev(Down, 7, 100, 100), true)

	_, _, moved := c.Handle(ev(Move, 8, 300, 300), true)
	assert.False(t, moved)

	c.Handle(ev(Up, 8, 300, 300), true)
	assert.True(t, c.Dragging(), "up from a different pointer must not end the drag")

	c.Handle(ev(Down, 8, 0, 0), true)
	assert.Equal(t, 7, c.Session().PointerID)

	dx, dy, moved := c.Handle(ev(Move, 7, 110, 95), true)
	assert.True(t, moved)
	assert.Equal(t, 10.0, dx)
	assert.Equal(t, -5.0, dy)
}

func TestCancelEndsDrag(t *testing.T) {
	c := NewController(1000)
	c.Handle(ev(Down, 3, 0, 0), true)
	c.Handle(ev(Cancel, 3, 0, 0), true)
	assert.False(t, c.Dragging())
	assert.Equal(t, DragSession{}, c.Session())
}

func TestMapScalesEachAxis(t *testing.T) {
	c := NewController(1000)
	// canvas shown at 500x250 CSS px, offset on the page
	e := PointerEvent{
		Kind: Down, PointerID: 1,
		ClientX: 150, ClientY: 75,
		Rect: Rect{Left: 50, Top: 25, Width: 500, Height: 250},
	}
	x, y := c.Map(e)
	assert.InDelta(t, 200, x, 1e-9)
	assert.InDelta(t, 200, y, 1e-9)
}

func TestDragUnderCSSScaling(t *testing.T) {
	c := NewController(1000)
	r := Rect{Width: 500, Height: 500}
	c.Handle(PointerEvent{Kind: Down, PointerID: 1, ClientX: 100, ClientY: 100, Rect: r}, true)
	dx, dy, moved := c.Handle(PointerEvent{Kind: Move, PointerID: 1, ClientX: 110, ClientY: 90, Rect: r}, true)
	assert.True(t, moved)
	assert.InDelta(t, 20, dx, 1e-9)
	assert.InDelta(t, -20, dy, 1e-9)
}
