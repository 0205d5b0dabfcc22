package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjbphoto/gallery/logging"
)

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressFitsSizeAndEdge(t *testing.T) {
	p := NewProcessor(DefaultCompressionPolicy, logging.Nop())
	out, err := p.Compress(bytes.NewReader(noisePNG(t, 2400, 1200)))
	require.NoError(t, err)

	assert.Equal(t, JPEGContentType, out.ContentType)
	assert.Equal(t, JPEGFileExtension, out.Extension)
	assert.LessOrEqual(t, len(out.Data), DefaultCompressionPolicy.MaxBytes)
	assert.LessOrEqual(t, out.Width, 1920)
	assert.LessOrEqual(t, out.Height, 1920)
	assert.InDelta(t, 2.0, float64(out.Width)/float64(out.Height), 0.02)

	decoded, err := imaging.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, out.Width, decoded.Bounds().Dx())
}

func TestCompressKeepsSmallImages(t *testing.T) {
	p := NewProcessor(DefaultCompressionPolicy, logging.Nop())
	out, err := p.Compress(bytes.NewReader(noisePNG(t, 64, 48)))
	require.NoError(t, err)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 48, out.Height)
	assert.Equal(t, DefaultCompressionPolicy.StartQuality, out.Quality)
}

func TestCompressReturnsSmallestWhenTargetUnreachable(t *testing.T) {
	policy := DefaultCompressionPolicy
	policy.MaxBytes = 1
	policy.MaxRounds = 1
	out, err := NewProcessor(policy, logging.Nop()).Compress(bytes.NewReader(noisePNG(t, 200, 200)))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Data)
	assert.Less(t, out.Width, 200)
}

func TestCompressRejectsNonImages(t *testing.T) {
	_, err := NewProcessor(DefaultCompressionPolicy, logging.Nop()).Compress(strings.NewReader("not an image"))
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestFitLongestEdge(t *testing.T) {
	w, h := fitLongestEdge(4000, 3000, 1920)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1440, h)

	w, h = fitLongestEdge(1000, 3000, 1920)
	assert.Equal(t, 640, w)
	assert.Equal(t, 1920, h)

	w, h = fitLongestEdge(800, 600, 1920)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestContentTypeChecks(t *testing.T) {
	assert.True(t, IsImageContentType("Image/HEIC"))
	assert.False(t, IsImageContentType("application/pdf"))
	assert.True(t, IsRasterImage("IMG_0001.JPG"))
	assert.False(t, IsRasterImage("notes.txt"))
}
