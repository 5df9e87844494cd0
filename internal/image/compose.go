package imagepkg

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/youruser/dpframe/internal/viewport"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Mode selects which layers are drawn.
type Mode int

const (
	Preview Mode = iota
	Export
)

func (m Mode) String() string {
	if m == Export {
		return "export"
	}
	return "preview"
}

// DrawOrder decides whether the frame sits above or below the user image.
type DrawOrder int

const (
	// FrameOver draws the photo, then the frame; the frame's transparent
	// window shows the photo.
	FrameOver DrawOrder = iota
	// FrameUnder draws the frame, then the photo; meant for cutouts so the
	// frame shows around the subject.
	FrameUnder
)

func ParseDrawOrder(s string) (DrawOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "frame-over", "over":
		return FrameOver, nil
	case "frame-under", "under":
		return FrameUnder, nil
	}
	return FrameOver, fmt.Errorf("unknown draw order %q", s)
}

func (o DrawOrder) String() string {
	if o == FrameUnder {
		return "frame-under"
	}
	return "frame-over"
}

const (
	watermarkScale   = 0.14
	watermarkMargin  = 0.07
	watermarkOpacity = 0.95
)

var background = color.NRGBA{R: 0, G: 0, B: 0, A: 0xff}

var ErrBadTarget = errors.New("render target must be a non-empty square")

// Assets are the layers handed to the compositor.
type Assets struct {
	User      ImageAsset
	Frame     ImageAsset
	Watermark ImageAsset
}

// Compositor renders the square output. Pan values are in PreviewSize pixels.
type Compositor struct {
	PreviewSize int
	Order       DrawOrder
}

func NewTarget(size int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, size, size))
}

// Rect is a placement in output pixels.
type Rect struct {
	X, Y, W, H float64
}

// Placement computes where the user image lands: cover-fit, times zoom,
// centered, then shifted by the pan rescaled to size.
func Placement(size, previewSize, imgW, imgH int, vp viewport.State) Rect {
	s := float64(size)
	cover := math.Max(s/float64(imgW), s/float64(imgH))
	scale := cover * vp.Zoom
	w := float64(imgW) * scale
	h := float64(imgH) * scale

	panScale := 1.0
	if previewSize > 0 {
		panScale = s / float64(previewSize)
	}
	return Rect{
		X: (s-w)/2 + vp.PanX*panScale,
		Y: (s-h)/2 + vp.PanY*panScale,
		W: w,
		H: h,
	}
}

// WatermarkBounds returns the watermark rectangle for a size×size output
// and a watermark whose source is srcW×srcH.
func WatermarkBounds(size, srcW, srcH int) image.Rectangle {
	w := int(math.Round(float64(size) * watermarkScale))
	h := w
	if srcW > 0 && srcH > 0 {
		h = int(math.Round(float64(w) * float64(srcH) / float64(srcW)))
	}
	margin := int(math.Round(float64(size) * watermarkMargin))
	x := (size - w) / 2
	y := size - h - margin
	return image.Rect(x, y, x+w, y+h)
}

// Render draws everything into target. It always overwrites every pixel, so
// the same inputs give the same output.
func (c Compositor) Render(target *image.NRGBA, vp viewport.State, assets Assets, mode Mode) error {
	if target == nil {
		return ErrBadTarget
	}
	b := target.Bounds()
	size := b.Dx()
	if size <= 0 || b.Dy() != size || b.Min != (image.Point{}) {
		return fmt.Errorf("%w: got %dx%d", ErrBadTarget, b.Dx(), b.Dy())
	}

	xdraw.Draw(target, b, image.NewUniform(background), image.Point{}, xdraw.Src)

	switch c.Order {
	case FrameUnder:
		c.drawFrame(target, assets.Frame)
		c.drawUser(target, vp, assets.User)
	default:
		c.drawUser(target, vp, assets.User)
		c.drawFrame(target, assets.Frame)
	}

	if mode == Export {
		drawWatermark(target, assets.Watermark)
	}
	return nil
}

func (c Compositor) drawUser(target *image.NRGBA, vp viewport.State, user ImageAsset) {
	if !user.Usable() {
		return
	}
	size := target.Bounds().Dx()
	src := user.Image
	sb := src.Bounds()
	p := Placement(size, c.PreviewSize, sb.Dx(), sb.Dy(), vp)
	s := p.W / float64(sb.Dx())

	// maps source pixels onto the target
	m := f64.Aff3{
		s, 0, p.X - float64(sb.Min.X)*s,
		0, s, p.Y - float64(sb.Min.Y)*s,
	}
	xdraw.BiLinear.Transform(target, m, src, sb, xdraw.Over, nil)
}

func (c Compositor) drawFrame(target *image.NRGBA, frame ImageAsset) {
	if !frame.Usable() {
		return
	}
	// stretched to the full square
	xdraw.BiLinear.Scale(target, target.Bounds(), frame.Image, frame.Image.Bounds(), xdraw.Over, nil)
}

func drawWatermark(target *image.NRGBA, wm ImageAsset) {
	if !wm.Usable() {
		return
	}
	size := target.Bounds().Dx()
	r := WatermarkBounds(size, wm.Width(), wm.Height())
	scaled := imaging.Resize(wm.Image, r.Dx(), r.Dy(), imaging.Lanczos)
	overlay(target, scaled, r.Min, watermarkOpacity)
}

// overlay alpha-blends img onto target in place at the given opacity.
func overlay(target *image.NRGBA, img image.Image, at image.Point, opacity float64) {
	out := imaging.Overlay(target, img, at, opacity)
	copy(target.Pix, out.Pix)
}
