package imagepkg

import (
	"bytes"
	"image"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

// GenerateQRPNG returns PNG bytes of a QR code for the given text.
func GenerateQRPNG(text string, size int) ([]byte, error) {
	return qrcode.Encode(text, qrcode.Medium, size)
}

// GenerateQRImage returns an image.Image for further composition.
func GenerateQRImage(text string, size int) (image.Image, error) {
	b, err := GenerateQRPNG(text, size)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(b))
}

// QRWatermark builds a watermark asset that encodes text, used when no
// watermark image is configured.
func QRWatermark(text string, size int) (ImageAsset, error) {
	img, err := GenerateQRImage(text, size)
	if err != nil {
		return ImageAsset{Source: "qr:" + text}, &AssetLoadError{Source: "qr:" + text, Err: err}
	}
	return NewAsset(img, "qr:"+text), nil
}
