// Package imaging turns an uploaded picture into the bounded RGB JPEG the
// detection provider receives.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"InventoryLens/go-backend/internal/apperrors"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MaxDimension = 800
	JPEGQuality  = 90

	// maxPixels is the point where common imaging libraries refuse to decode
	// instead of only warning about a decompression bomb.
	maxPixels = 2 * 89_478_485
)

type NormalizedImage struct {
	Image      image.Image
	Format     string
	SourceMode string
}

func (n *NormalizedImage) Width() int {
	return n.Image.Bounds().Dx()
}

func (n *NormalizedImage) Height() int {
	return n.Image.Bounds().Dy()
}

// Mode is always RGB once normalized.
func (n *NormalizedImage) Mode() string {
	return "RGB"
}

func (n *NormalizedImage) Size() [2]int {
	return [2]int{n.Width(), n.Height()}
}

// IsImageContentType reports whether a declared content type names an image.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// Normalize validates and decodes raw, flattens it to RGB and downsizes it so
// that neither side exceeds MaxDimension.
func Normalize(raw []byte, contentType string) (*NormalizedImage, error) {
	if !IsImageContentType(contentType) {
		return nil, apperrors.Validationf("File must be an image")
	}
	if len(raw) == 0 {
		return nil, apperrors.Validationf("Empty image file")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "Invalid image file", err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "Invalid image file", err)
	}

	return &NormalizedImage{
		Image:      downscale(flatten(src)),
		Format:     format,
		SourceMode: sourceMode(src),
	}, nil
}

func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 || int64(w)*int64(h) > maxPixels {
		return apperrors.Validationf("Image dimensions %dx%d are not supported", w, h)
	}
	return nil
}

// Encode serializes the image as a JPEG and returns it base64 encoded.
func Encode(img *NormalizedImage) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.Image, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// flatten copies src into an opaque RGBA buffer. Alpha is dropped, not
// composited onto a background.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch s := src.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			srcRow := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			dstRow := dst.Pix[y*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				i := x * 4
				dstRow[i], dstRow[i+1], dstRow[i+2], dstRow[i+3] = srcRow[i], srcRow[i+1], srcRow[i+2], 0xff
			}
		}
	case *image.NYCbCrA:
		draw.Draw(dst, dst.Bounds(), &s.YCbCr, b.Min, draw.Src)
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			srcRow := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			dstRow := dst.Pix[y*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				i, j := x*8, x*4
				dstRow[j], dstRow[j+1], dstRow[j+2], dstRow[j+3] = srcRow[i], srcRow[i+2], srcRow[i+4], 0xff
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
				dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
			}
		}
	}

	return dst
}

func downscale(img image.Image) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	longest := max(w, h)
	if longest <= MaxDimension {
		return img
	}

	ratio := float64(MaxDimension) / float64(longest)
	newW := max(int(float64(w)*ratio), 1)
	newH := max(int(float64(h)*ratio), 1)

	return resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
}

func sourceMode(img image.Image) string {
	switch m := img.(type) {
	case *image.YCbCr:
		return "RGB"
	case *image.NYCbCrA:
		return "RGBA"
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "I;16"
	case *image.CMYK:
		return "CMYK"
	case *image.Paletted:
		return "P"
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		if opaque, ok := m.(interface{ Opaque() bool }); ok && opaque.Opaque() {
			return "RGB"
		}
		return "RGBA"
	default:
		return "RGB"
	}
}
