package imagepkg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/util"

	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels is the decode budget when none is configured.
const DefaultMaxPixels = 40_000_000

// Decode sniffs and decodes an image within DefaultMaxPixels, applying EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with a pixel budget. The declared dimensions are
// read from the header first, so an oversized image is rejected before any
// pixel buffer is allocated. maxPixels <= 0 means DefaultMaxPixels.
func DecodeLimited(data []byte, maxPixels int) (image.Image, error) {
	if !filetype.IsImage(data) {
		return nil, ErrUnsupportedFormat
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// DownloadImage fetches an image over http(s) and decodes it.
func DownloadImage(ctx context.Context, url string) (image.Image, error) {
	body, err := util.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

// LoadResult is what an asynchronous load resolves to.
type LoadResult struct {
	Asset ImageAsset
	Err   error
}

// Loader reads frame and watermark images from disk or the network.
// Static assets are cached after the first successful load, so repeated
// frame switches are served locally.
type Loader struct {
	mu    sync.Mutex
	cache map[string]image.Image
}

func NewLoader() *Loader {
	return &Loader{cache: map[string]image.Image{}}
}

// Load returns the asset at source, a file path or an http(s) URL.
// Failures are wrapped in AssetLoadError.
func (l *Loader) Load(ctx context.Context, source string) (ImageAsset, error) {
	l.mu.Lock()
	img, ok := l.cache[source]
	l.mu.Unlock()
	if ok {
		return NewAsset(img, source), nil
	}

	img, err := l.fetch(ctx, source)
	if err != nil {
		logrus.WithField("source", source).WithError(err).Warn("asset load failed")
		return ImageAsset{Source: source}, &AssetLoadError{Source: source, Err: err}
	}

	l.mu.Lock()
	l.cache[source] = img
	l.mu.Unlock()
	return NewAsset(img, source), nil
}

// LoadAsync starts Load in the background. The channel yields exactly one result.
func (l *Loader) LoadAsync(ctx context.Context, source string) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	go func() {
		asset, err := l.Load(ctx, source)
		ch <- LoadResult{Asset: asset, Err: err}
	}()
	return ch
}

// Cached reports whether source is already decoded in memory.
func (l *Loader) Cached(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cache[source]
	return ok
}

func (l *Loader) fetch(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return DownloadImage(ctx, source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// DecodeUpload decodes user-supplied bytes into an asset within maxPixels.
// Uploads are never cached.
func DecodeUpload(data []byte, name string, maxPixels int) (ImageAsset, error) {
	img, err := DecodeLimited(data, maxPixels)
	if err != nil {
		return ImageAsset{Source: name}, &AssetLoadError{Source: name, Err: err}
	}
	return NewAsset(img, name), nil
}
