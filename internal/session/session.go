// Package session owns the editing state of one user: the viewport, the
// image slots, the drag controller and the live preview surface.
//
// Every mutator runs under the session lock and ends with a synchronous
// preview render, so renders never overlap and the preview always matches
// the state.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/export"
	"github.com/youruser/dpframe/internal/frames"
	imagepkg "github.com/youruser/dpframe/internal/image"
	"github.com/youruser/dpframe/internal/input"
	"github.com/youruser/dpframe/internal/segment"
	"github.com/youruser/dpframe/internal/viewport"
)

var (
	ErrSizeNotAllowed = errors.New("export size not allowed")
	ErrNoSegmenter    = errors.New("background removal is not configured")
)

// Options configure every session. MaxPixels bounds the declared dimensions
// of an upload; 0 means imagepkg.DefaultMaxPixels.
type Options struct {
	PreviewSize int
	Limits      viewport.Limits
	Order       imagepkg.DrawOrder
	ExportSizes export.Sizes
	MaxPixels   int
}

// Deps are collaborators shared between sessions.
type Deps struct {
	Loader    *imagepkg.Loader
	Segmenter segment.Segmenter
	Watermark imagepkg.ImageAsset
}

// Status is a snapshot returned to clients after each mutation.
type Status struct {
	ID         string         `json:"id"`
	Viewport   viewport.State `json:"viewport"`
	ZoomText   string         `json:"zoom_text"`
	HasImage   bool           `json:"has_image"`
	Frame      string         `json:"frame"`
	FrameReady bool           `json:"frame_ready"`
	Dragging   bool           `json:"dragging"`
}

type Session struct {
	ID string

	opts   Options
	comp   imagepkg.Compositor
	loader *imagepkg.Loader
	seg    segment.Segmenter
	log    *logrus.Entry

	mu         sync.Mutex
	vp         *viewport.Viewport
	input      *input.Controller
	user       imagepkg.ImageAsset
	frame      imagepkg.ImageAsset
	frameID    string
	watermark  imagepkg.ImageAsset
	preview    *image.NRGBA
	renders    int
	lastActive time.Time

	uploadGen    uint64
	cancelUpload context.CancelFunc
	frameGen     uint64
}

func New(id string, opts Options, deps Deps) *Session {
	if deps.Loader == nil {
		deps.Loader = imagepkg.NewLoader()
	}
	s := &Session{
		ID:        id,
		opts:      opts,
		comp:      imagepkg.Compositor{PreviewSize: opts.PreviewSize, Order: opts.Order},
		loader:    deps.Loader,
		seg:       deps.Segmenter,
		log:       logrus.WithField("session_id", id),
		vp:        viewport.New(opts.Limits),
		input:     input.NewController(opts.PreviewSize),
		watermark: deps.Watermark,
		preview:   imagepkg.NewTarget(opts.PreviewSize),
	}
	s.mu.Lock()
	s.render()
	s.mu.Unlock()
	return s
}

// render draws the preview. Callers hold s.mu.
func (s *Session) render() {
	assets := imagepkg.Assets{User: s.user, Frame: s.frame, Watermark: s.watermark}
	if err := s.comp.Render(s.preview, s.vp.State(), assets, imagepkg.Preview); err != nil {
		s.log.WithError(err).Error("preview render failed")
	}
	s.renders++
	s.lastActive = time.Now()
}

func (s *Session) status() Status {
	st := s.vp.State()
	return Status{
		ID:         s.ID,
		Viewport:   st,
		ZoomText:   st.ZoomText(),
		HasImage:   s.user.Usable(),
		Frame:      s.frameID,
		FrameReady: s.frame.Usable(),
		Dragging:   s.input.Dragging(),
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Session) SetZoom(zoom float64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp.SetZoom(zoom)
	s.render()
	return s.status()
}

// Reset restores zoom 1 and no pan.
func (s *Session) Reset() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp.Reset()
	s.render()
	return s.status()
}

// Recenter drops the pan and keeps the zoom.
func (s *Session) Recenter() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp.Recenter()
	s.render()
	return s.status()
}

// Pointer feeds a pointer event to the drag controller. rendered is true
// when the pan changed and the preview was redrawn.
func (s *Session) Pointer(ev input.PointerEvent) (st Status, rendered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	dx, dy, moved := s.input.Handle(ev, s.user.Usable())
	if moved {
		s.vp.Pan(dx, dy)
		s.render()
	}
	return s.status(), moved
}

// SetUserImage replaces the photo and resets the viewport.
func (s *Session) SetUserImage(asset imagepkg.ImageAsset) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setUser(asset)
	return s.status()
}

func (s *Session) setUser(asset imagepkg.ImageAsset) {
	s.user = asset
	s.input.Release()
	s.vp.Reset()
	s.render()
}

// Upload decodes data, optionally removes its background, and installs the
// result as the photo. A newer upload supersedes this one: its background
// removal is canceled and ErrSuperseded is returned. On any error the
// current photo is left untouched.
func (s *Session) Upload(ctx context.Context, data []byte, name string, removeBG bool) (Status, error) {
	asset, err := imagepkg.DecodeUpload(data, name, s.opts.MaxPixels)
	if err != nil {
		return s.Status(), err
	}

	s.mu.Lock()
	s.uploadGen++
	gen := s.uploadGen
	if s.cancelUpload != nil {
		s.cancelUpload()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelUpload = cancel
	s.mu.Unlock()
	defer cancel()

	log := s.log.WithFields(logrus.Fields{"upload": gen, "name": name, "remove_bg": removeBG})

	if removeBG {
		if s.seg == nil {
			return s.Status(), &imagepkg.SegmentationError{Err: ErrNoSegmenter}
		}
		cut, err := segment.RemoveBackground(ctx, s.seg, asset.Image)
		if err != nil {
			if s.stale(gen) {
				return s.Status(), imagepkg.ErrSuperseded
			}
			log.WithError(err).Warn("background removal failed")
			return s.Status(), err
		}
		asset = imagepkg.NewAsset(cut, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.uploadGen {
		log.Info("dropping superseded upload")
		return s.status(), imagepkg.ErrSuperseded
	}
	s.cancelUpload = nil
	s.setUser(asset)
	log.WithFields(logrus.Fields{"width": asset.Width(), "height": asset.Height()}).Info("photo set")
	return s.status(), nil
}

func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.uploadGen
}

// SwitchFrame starts loading f and swaps it in when ready. The previous
// frame stays on screen until then. A later switch supersedes this one.
// The channel yields one result.
func (s *Session) SwitchFrame(ctx context.Context, f frames.Frame) <-chan error {
	s.mu.Lock()
	s.frameGen++
	gen := s.frameGen
	s.mu.Unlock()

	done := make(chan error, 1)
	pending := s.loader.LoadAsync(ctx, f.Path)
	go func() {
		res := <-pending

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.frameGen {
			done <- imagepkg.ErrSuperseded
			return
		}
		if res.Err != nil {
			s.log.WithField("frame", f.ID).WithError(res.Err).Warn("frame unavailable")
			done <- res.Err
			return
		}
		s.frame = res.Asset
		s.frameID = f.ID
		s.render()
		s.log.WithField("frame", f.ID).Debug("frame switched")
		done <- nil
	}()
	return done
}

// SetWatermark replaces the export watermark. The preview never shows it.
func (s *Session) SetWatermark(asset imagepkg.ImageAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = asset
}

func (s *Session) snapshot() export.Snapshot {
	return export.Snapshot{
		Viewport: s.vp.State(),
		Assets:   imagepkg.Assets{User: s.user, Frame: s.frame, Watermark: s.watermark},
	}
}

// Export renders a fresh artifact at size. Rendering happens outside the
// lock on a private surface; the assets are never mutated in place.
func (s *Session) Export(size int) (*export.Artifact, error) {
	if len(s.opts.ExportSizes) > 0 && !s.opts.ExportSizes.Allowed(size) {
		return nil, fmt.Errorf("%w: %d", ErrSizeNotAllowed, size)
	}
	s.mu.Lock()
	snap := s.snapshot()
	s.lastActive = time.Now()
	s.mu.Unlock()

	art, err := export.Image(s.comp, size, snap)
	if err != nil {
		s.log.WithField("size", size).WithError(err).Warn("export failed")
		return nil, err
	}
	return art, nil
}

// PreviewPNG encodes the current preview surface.
func (s *Session) PreviewPNG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.preview); err != nil {
		return nil, &imagepkg.EncodingError{Err: err}
	}
	return buf.Bytes(), nil
}

// Renders counts preview renders since creation.
func (s *Session) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close cancels any upload still in flight.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelUpload != nil {
		s.cancelUpload()
		s.cancelUpload = nil
	}
	s.uploadGen++
}
