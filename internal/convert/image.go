package convert

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	"github.com/AndyChoi4495/fragments/internal/mediatype"
)

const jpegQuality = 90

// transcodeImage decodes any registered raster format and re-encodes it as
// target. Dimensions are kept; animated GIFs contribute their first frame.
// Importing avif and webp registers their decoders with package image.
func transcodeImage(payload []byte, target string) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	switch target {
	case mediatype.PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case mediatype.JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	case mediatype.GIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	case mediatype.WebP:
		err = webp.Encode(&buf, img)
	case mediatype.AVIF:
		err = avif.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("no encoder for %s", target)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", target, err)
	}
	return buf.Bytes(), nil
}
