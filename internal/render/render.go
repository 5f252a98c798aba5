package render

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

// Renderer rasterizes source bytes into JPEG thumbnail variants.
type Renderer struct {
	quality int
}

func NewRenderer(jpegQuality int) *Renderer {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 82
	}
	return &Renderer{quality: jpegQuality}
}

// Render decodes the source image and produces one variant, fitting the image
// within variant×variant pixels while preserving aspect ratio. Source formats
// are whatever the imaging decoders register (JPEG, PNG, GIF, TIFF, BMP).
func (r *Renderer) Render(source []byte, variant domain.Variant) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}

	size := int(variant)
	thumb := img
	bounds := img.Bounds()
	if bounds.Dx() > size || bounds.Dy() > size {
		thumb = imaging.Fit(img, size, size, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return nil, fmt.Errorf("encode %d variant: %w", size, err)
	}
	return buf.Bytes(), nil
}
