package pubforge

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const jpegQuality = 80

// processCover optionally downscales an acquired cover before it is
// committed. When maxWidth is 0, or the bytes do not decode as a supported
// raster format, or the image is already narrow enough, the input is returned
// untouched. Downscaled covers are re-encoded as JPEG, so the content type
// (and therefore the file extension) changes with them.
func processCover(img acquiredImage, maxWidth int) acquiredImage {
	if maxWidth <= 0 {
		return img
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.bytes))
	if err != nil {
		return img
	}
	bounds := decoded.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth {
		return img
	}

	newH := h * maxWidth / w
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), decoded, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return img
	}
	return acquiredImage{bytes: buf.Bytes(), contentType: "image/jpeg"}
}
