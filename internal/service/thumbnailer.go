package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const thumbnailMime = "image/jpeg"

// Thumbnailer renders preview images for uploaded media. Images are scaled
// in-process; video frames are grabbed through ffmpeg when it is available.
type Thumbnailer struct {
	maxPx      int
	ffmpegPath string
	logger     *zap.Logger
}

// NewThumbnailer constructs a renderer. An empty ffmpegPath disables video
// previews.
func NewThumbnailer(maxPx int, ffmpegPath string, logger *zap.Logger) *Thumbnailer {
	if maxPx <= 0 {
		maxPx = 512
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Thumbnailer{maxPx: maxPx, ffmpegPath: ffmpegPath, logger: logger}
}

// Render produces a JPEG preview, or (nil, "", nil) for media types it does
// not handle.
func (t *Thumbnailer) Render(ctx context.Context, mimeType string, data []byte) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return t.renderImage(data)
	case strings.HasPrefix(mimeType, "video/"):
		if t.ffmpegPath == "" {
			return nil, "", nil
		}
		return t.renderVideoFrame(ctx, data)
	default:
		return nil, "", nil
	}
}

func (t *Thumbnailer) renderImage(data []byte) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, "", fmt.Errorf("empty image bounds")
	}
	if width > t.maxPx || height > t.maxPx {
		if width >= height {
			height = height * t.maxPx / width
			width = t.maxPx
		} else {
			width = width * t.maxPx / height
			height = t.maxPx
		}
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), thumbnailMime, nil
}

func (t *Thumbnailer) renderVideoFrame(ctx context.Context, data []byte) ([]byte, string, error) {
	tmp, err := os.CreateTemp("", "vault-video-*")
	if err != nil {
		return nil, "", fmt.Errorf("create temp video: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, "", fmt.Errorf("write temp video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, "", fmt.Errorf("close temp video: %w", err)
	}

	scale := fmt.Sprintf("scale='min(%d,iw)':-2", t.maxPx)
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-ss", "1",
		"-i", tmpPath,
		"-frames:v", "1",
		"-vf", scale,
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.logger.Debug("ffmpeg frame grab failed",
			zap.String("ffmpeg", filepath.Base(t.ffmpegPath)),
			zap.String("stderr", truncate(stderr.String(), 512)),
			zap.Error(err))
		return nil, "", fmt.Errorf("grab video frame: %w", err)
	}
	if out.Len() == 0 {
		return nil, "", fmt.Errorf("ffmpeg produced no frame")
	}
	return out.Bytes(), thumbnailMime, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
