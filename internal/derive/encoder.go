package derive

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// EncodeOptions carries the per-format quality and effort/speed tradeoff.
type EncodeOptions struct {
	Quality int
	Effort  int
}

// EncodeFunc encodes a staged still image into one target format.
type EncodeFunc func(ctx context.Context, in, out string, opts EncodeOptions) error

// encoders maps format name to its codec shell-out. Resizing and rotation
// happen before encoding, so the tools only transcode.
var encoders = map[string]EncodeFunc{
	"webp": encodeWebP,
	"avif": encodeAVIF,
}

func encodeWebP(ctx context.Context, in, out string, o EncodeOptions) error {
	args := []string{
		"-q", fmt.Sprint(o.Quality),
		"-m", fmt.Sprint(o.Effort),
		in, "-o", out,
	}
	return runEncoder(ctx, "cwebp", args)
}

func encodeAVIF(ctx context.Context, in, out string, o EncodeOptions) error {
	args := []string{
		"--min", fmt.Sprint(o.Quality),
		"--max", fmt.Sprint(o.Quality),
		"--speed", fmt.Sprint(o.Effort),
		in, out,
	}
	return runEncoder(ctx, "avifenc", args)
}

func runEncoder(ctx context.Context, name string, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
