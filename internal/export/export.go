// Package export renders off-screen surfaces and encodes them as PNG artifacts.
package export

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/sirupsen/logrus"
	imagepkg "github.com/youruser/dpframe/internal/image"
	"github.com/youruser/dpframe/internal/viewport"
)

const ContentType = "image/png"

// Artifact is an encoded export.
type Artifact struct {
	Data        []byte
	Filename    string
	ContentType string
	Size        int
}

// Filename encodes the resolution, e.g. dp-1080.png.
func Filename(size int) string {
	return fmt.Sprintf("dp-%d.png", size)
}

// Snapshot is the session state an export is rendered from.
type Snapshot struct {
	Viewport viewport.State
	Assets   imagepkg.Assets
}

// Image renders snap into a fresh size×size surface in Export mode and
// encodes it. It returns ErrNoImage without rendering when there is no photo.
func Image(comp imagepkg.Compositor, size int, snap Snapshot) (*Artifact, error) {
	if !snap.Assets.User.Usable() {
		return nil, imagepkg.ErrNoImage
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid export size %d", size)
	}

	start := time.Now()
	target := imagepkg.NewTarget(size)
	if err := comp.Render(target, snap.Viewport, snap.Assets, imagepkg.Export); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, target); err != nil {
		return nil, &imagepkg.EncodingError{Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"size":    size,
		"bytes":   buf.Len(),
		"elapsed": time.Since(start).String(),
	}).Info("export rendered")

	return &Artifact{
		Data:        buf.Bytes(),
		Filename:    Filename(size),
		ContentType: ContentType,
		Size:        size,
	}, nil
}

// Sizes is the set of resolutions a deployment allows.
type Sizes []int

func (s Sizes) Allowed(size int) bool {
	for _, v := range s {
		if v == size {
			return true
		}
	}
	return false
}

// DefaultSize is used when no sizes are configured.
const DefaultSize = 1080

// Default is the first configured size.
func (s Sizes) Default() int {
	if len(s) == 0 {
		return DefaultSize
	}
	return s[0]
}
