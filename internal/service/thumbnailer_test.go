package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnailerScalesDownLargeImages(t *testing.T) {
	th := NewThumbnailer(64, "", zap.NewNop())

	data, mimeType, err := th.Render(context.Background(), "image/png", encodePNG(t, 640, 320))
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", mimeType)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 64, decoded.Bounds().Dx())
	require.Equal(t, 32, decoded.Bounds().Dy())
}

func TestThumbnailerKeepsSmallImages(t *testing.T) {
	th := NewThumbnailer(64, "", zap.NewNop())

	data, _, err := th.Render(context.Background(), "image/png", encodePNG(t, 20, 10))
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 20, decoded.Bounds().Dx())
}

func TestThumbnailerSkipsUnsupportedTypes(t *testing.T) {
	th := NewThumbnailer(64, "", zap.NewNop())

	data, mimeType, err := th.Render(context.Background(), "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Nil(t, data)
	require.Empty(t, mimeType)
}

func TestThumbnailerSkipsVideoWithoutFfmpeg(t *testing.T) {
	th := NewThumbnailer(64, "", zap.NewNop())

	data, _, err := th.Render(context.Background(), "video/mp4", []byte("mp4"))
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestThumbnailerRejectsCorruptImage(t *testing.T) {
	th := NewThumbnailer(64, "", zap.NewNop())

	_, _, err := th.Render(context.Background(), "image/png", []byte("not an image"))
	require.Error(t, err)
}
