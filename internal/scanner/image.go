package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/pkg/anthropic"
)

// ErrInvalidImage is wrapped by every image validation failure.
var ErrInvalidImage = eris.New("scanner: invalid image")

// IsInvalidImage reports whether err is an image validation failure.
func IsInvalidImage(err error) bool {
	return eris.Is(err, ErrInvalidImage)
}

// supportedMediaTypes are the image formats the vision model accepts.
var supportedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Image is one photo submitted for scanning.
type Image struct {
	Name      string
	MediaType string
	Data      []byte
}

// NewImage sniffs the media type of data and checks it against maxBytes.
// A declared media type is ignored in favour of the sniffed one.
func NewImage(name string, data []byte, maxBytes int64) (Image, error) {
	if len(data) == 0 {
		return Image{}, eris.Wrapf(ErrInvalidImage, "%s: empty", name)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Image{}, eris.Wrapf(ErrInvalidImage, "%s: %d bytes exceeds limit of %d", name, len(data), maxBytes)
	}
	mediaType := http.DetectContentType(data)
	if !supportedMediaTypes[mediaType] {
		return Image{}, eris.Wrapf(ErrInvalidImage, "%s: unsupported type %s", name, mediaType)
	}
	return Image{Name: name, MediaType: mediaType, Data: data}, nil
}

// FromStored converts a stored report image.
func FromStored(img model.Image) Image {
	return Image{Name: img.ID, MediaType: img.ContentType, Data: img.Data}
}

func (s *Service) checkImages(images []Image) error {
	if len(images) == 0 {
		return eris.Wrap(ErrInvalidImage, "no images")
	}
	if s.cfg.MaxImages > 0 && len(images) > s.cfg.MaxImages {
		return eris.Wrapf(ErrInvalidImage, "%d images exceeds limit of %d", len(images), s.cfg.MaxImages)
	}
	for _, img := range images {
		if len(img.Data) == 0 {
			return eris.Wrapf(ErrInvalidImage, "%s: empty", img.Name)
		}
		if s.cfg.MaxImageBytes > 0 && int64(len(img.Data)) > s.cfg.MaxImageBytes {
			return eris.Wrapf(ErrInvalidImage, "%s: %d bytes exceeds limit of %d", img.Name, len(img.Data), s.cfg.MaxImageBytes)
		}
		if !supportedMediaTypes[img.MediaType] {
			return eris.Wrapf(ErrInvalidImage, "%s: unsupported type %s", img.Name, img.MediaType)
		}
	}
	return nil
}

// fingerprint identifies an image set for duplicate detection.
func fingerprint(operation string, images []Image) string {
	h := sha256.New()
	h.Write([]byte(operation))
	for _, img := range images {
		h.Write([]byte{0})
		h.Write([]byte(img.MediaType))
		h.Write([]byte{0})
		h.Write(img.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toImageBlocks(images []Image) []anthropic.ImageBlock {
	out := make([]anthropic.ImageBlock, len(images))
	for i, img := range images {
		out[i] = anthropic.ImageBlock{MediaType: img.MediaType, Data: img.Data}
	}
	return out
}
