package imagepkg

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImage is returned when an export is requested before a photo was uploaded.
	ErrNoImage = errors.New("upload photo first")

	// ErrSuperseded is returned to a load whose result was replaced by a newer request.
	ErrSuperseded = errors.New("superseded by a newer request")

	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrTooLarge is returned for images whose declared dimensions exceed the pixel budget.
	ErrTooLarge = errors.New("image dimensions too large")
)

// AssetLoadError reports an image that could not be fetched or decoded.
// The layer it was meant for is skipped at render time.
type AssetLoadError struct {
	Source string
	Err    error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load image %q: %v", e.Source, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// SegmentationError wraps a failure of the background-removal service.
type SegmentationError struct {
	Err error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("background removal failed: %v", e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// EncodingError wraps a failure to serialize a rendered surface.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode image: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
