package imagepkg

import "image"

// ImageAsset is a decoded bitmap. Ready is false until decoding finished.
type ImageAsset struct {
	Image  image.Image
	Ready  bool
	Source string
}

func NewAsset(img image.Image, source string) ImageAsset {
	return ImageAsset{Image: img, Ready: img != nil, Source: source}
}

func (a ImageAsset) Width() int {
	if a.Image == nil {
		return 0
	}
	return a.Image.Bounds().Dx()
}

func (a ImageAsset) Height() int {
	if a.Image == nil {
		return 0
	}
	return a.Image.Bounds().Dy()
}

// Usable reports whether the asset can be drawn.
func (a ImageAsset) Usable() bool {
	return a.Ready && a.Image != nil && a.Width() > 0 && a.Height() > 0
}
