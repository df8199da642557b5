// Package derive produces the fixed ladder of resized derivative images
// plus the inline blur placeholder from a staged original.
package derive

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// FormatSpec is one output codec of the ladder with its quality and
// effort/speed setting.
type FormatSpec struct {
	Format  string
	Quality int
	Effort  int
}

// Ladder is the ordered width ladder. Widths above the source width are
// skipped; nothing is ever upscaled.
var Ladder = []int{300, 600, 1200, 2400}

// Formats is the fixed output format set.
var Formats = []FormatSpec{
	{Format: "webp", Quality: 82, Effort: 4},
	{Format: "avif", Quality: 50, Effort: 6},
}

const (
	blurWidth       = 10
	blurJpegQuality = 50
)

var contentTypes = map[string]string{
	".webp": "image/webp",
	".avif": "image/avif",
}

// ContentType returns the upload content type for a derivative filename,
// and false for anything that is not a recognized derivative.
func ContentType(filename string) (string, bool) {
	ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// LadderFor returns the ladder widths applicable to a source of the given
// width.
func LadderFor(sourceWidth int) []int {
	var widths []int
	for _, w := range Ladder {
		if w <= sourceWidth {
			widths = append(widths, w)
		}
	}
	return widths
}

// Encoder generates derivative files and blur placeholders.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Derivatives writes one file per applicable (width, format) pair into
// outDir, named {width}w.{format}. The returned dimensions are the
// orientation-corrected bounds of the source, which may differ from the
// container dimensions for rotated captures.
func (e *Encoder) Derivatives(ctx context.Context, srcPath, outDir string) ([]string, int, int, error) {
	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open source: %w", err)
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var outputs []string
	for _, w := range LadderFor(width) {
		resized := imaging.Resize(src, w, 0, imaging.Lanczos)

		// stage a lossless intermediate once per width, encode it per format
		stage := filepath.Join(outDir, fmt.Sprintf("stage-%dw.png", w))
		if err := imaging.Save(resized, stage); err != nil {
			return nil, 0, 0, fmt.Errorf("stage %dw: %w", w, err)
		}
		for _, f := range Formats {
			enc, ok := encoders[f.Format]
			if !ok {
				os.Remove(stage)
				return nil, 0, 0, fmt.Errorf("no encoder for format %q", f.Format)
			}
			out := filepath.Join(outDir, fmt.Sprintf("%dw.%s", w, f.Format))
			if err := enc(ctx, stage, out, EncodeOptions{Quality: f.Quality, Effort: f.Effort}); err != nil {
				os.Remove(stage)
				return nil, 0, 0, fmt.Errorf("encode %dw.%s: %w", w, f.Format, err)
			}
			outputs = append(outputs, out)
		}
		if err := os.Remove(stage); err != nil {
			return nil, 0, 0, fmt.Errorf("remove stage %dw: %w", w, err)
		}
	}
	return outputs, width, height, nil
}

// BlurPlaceholder renders a tiny, heavily compressed preview of the
// rotated source as an inline data URL. It is returned to the caller for
// persistence on the record, never written to storage.
func (e *Encoder) BlurPlaceholder(ctx context.Context, srcPath string) (string, error) {
	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	tiny := imaging.Resize(src, blurWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, tiny, imaging.JPEG, imaging.JPEGQuality(blurJpegQuality)); err != nil {
		return "", fmt.Errorf("encode placeholder: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
