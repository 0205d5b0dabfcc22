package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// ErrUndecodable is returned when the upload cannot be decoded as an image.
var ErrUndecodable = errors.New("image could not be decoded")

// Processor re-encodes uploads under a CompressionPolicy before they are
// handed to the object store.
type Processor struct {
	policy CompressionPolicy
	log    *zap.SugaredLogger
}

func NewProcessor(policy CompressionPolicy, log *zap.SugaredLogger) *Processor {
	return &Processor{policy: policy, log: log}
}

// Compress decodes data (applying EXIF orientation), fits it inside the
// policy's longest edge and encodes it as JPEG, lowering quality and then
// dimensions until the result is at most MaxBytes. When the size target
// cannot be met within MaxRounds the smallest attempt is returned.
func (p *Processor) Compress(data io.Reader) (*Compressed, error) {
	img, err := imaging.Decode(data, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("invalid original image dimensions: %dx%d", b.Dx(), b.Dy())
	}

	newWidth, newHeight := fitLongestEdge(b.Dx(), b.Dy(), p.policy.MaxEdge)
	var current image.Image = img
	if newWidth != b.Dx() || newHeight != b.Dy() {
		current = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	var best *Compressed
	for round := 0; round <= p.policy.MaxRounds; round++ {
		for quality := p.policy.StartQuality; quality >= p.policy.MinQuality; quality -= p.policy.QualityStep {
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, current, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
				return nil, fmt.Errorf("jpeg encoding failed: %w", err)
			}

			cb := current.Bounds()
			attempt := &Compressed{
				Data:        buf.Bytes(),
				ContentType: JPEGContentType,
				Extension:   JPEGFileExtension,
				Width:       cb.Dx(),
				Height:      cb.Dy(),
				Quality:     quality,
			}
			if best == nil || len(attempt.Data) < len(best.Data) {
				best = attempt
			}
			if len(attempt.Data) <= p.policy.MaxBytes {
				p.log.Debugf("processor: compressed upload to %dx%d q%d (%d bytes)", attempt.Width, attempt.Height, quality, len(attempt.Data))
				return attempt, nil
			}
			if p.policy.QualityStep <= 0 {
				break
			}
		}

		cb := current.Bounds()
		w := int(float64(cb.Dx()) * p.policy.ScaleStep)
		h := int(float64(cb.Dy()) * p.policy.ScaleStep)
		if w < 1 || h < 1 || (w == cb.Dx() && h == cb.Dy()) {
			break
		}
		current = imaging.Resize(current, w, h, imaging.Lanczos)
	}

	p.log.Warnf("processor: could not reach %d bytes, using %d byte encoding", p.policy.MaxBytes, len(best.Data))
	return best, nil
}
