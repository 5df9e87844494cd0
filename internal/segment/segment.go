// Package segment talks to the background-removal service and cuts the
// subject out of a photo using the mask it returns.
package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	imagepkg "github.com/youruser/dpframe/internal/image"
)

// Segmenter produces a grayscale mask the size of src. Bright pixels are the subject.
type Segmenter interface {
	Mask(ctx context.Context, src image.Image) (image.Image, error)
}

// Client posts images to an HTTP segmentation service.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Mask sends src as a PNG in the multipart field "file" and decodes the PNG mask from the response.
func (c *Client) Mask(ctx context.Context, src image.Image) (image.Image, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, src); err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("segmentation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	mask, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	return mask, nil
}

// CheckHealth probes <url>/health.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("segmentation service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// ApplyMask keeps src only where mask is present: each output alpha is the
// source alpha times the mask coverage. The mask is stretched to src's size.
func ApplyMask(src, mask image.Image) *image.NRGBA {
	out := imaging.Clone(src)
	b := out.Bounds()
	if mask.Bounds().Dx() != b.Dx() || mask.Bounds().Dy() != b.Dy() {
		mask = imaging.Resize(mask, b.Dx(), b.Dy(), imaging.Linear)
	}
	mb := mask.Bounds()

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			cov := color.Gray16Model.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray16).Y
			i := out.PixOffset(x, y) + 3
			out.Pix[i] = uint8(uint32(out.Pix[i]) * uint32(cov) / 0xffff)
		}
	}
	return out
}

// RemoveBackground runs the segmenter and returns the cutout. Failures are
// returned as SegmentationError.
func RemoveBackground(ctx context.Context, seg Segmenter, src image.Image) (*image.NRGBA, error) {
	start := time.Now()
	mask, err := seg.Mask(ctx, src)
	if err != nil {
		return nil, &imagepkg.SegmentationError{Err: err}
	}
	out := ApplyMask(src, mask)
	logrus.WithFields(logrus.Fields{
		"width":   out.Bounds().Dx(),
		"height":  out.Bounds().Dy(),
		"elapsed": time.Since(start).String(),
	}).Debug("background removed")
	return out, nil
}
