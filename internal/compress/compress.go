// Package compress wraps zstd for repository metadata objects.
package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultLevel is the zstd level used for repository metadata
const DefaultLevel = 3

// Compressor handles data compression and decompression
type Compressor struct {
	level   int
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a Compressor for a zstd level (1-19)
func New(level int) (*Compressor, error) {
	if level < 1 || level > 19 {
		return nil, fmt.Errorf("compression level %d out of range 1-19", level)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Compressor{level: level, encoder: encoder, decoder: decoder}, nil
}

// NewDefault creates a Compressor at DefaultLevel
func NewDefault() (*Compressor, error) {
	return New(DefaultLevel)
}

// Level returns the configured zstd level
func (c *Compressor) Level() int {
	return c.level
}

// Compress compresses data
func (c *Compressor) Compress(data []byte) []byte {
	return c.encoder.EncodeAll(data, nil)
}

// Decompress decompresses data
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// Ratio calculates the compression ratio
func Ratio(original, compressed []byte) float64 {
	if len(original) == 0 {
		return 1.0
	}
	return float64(len(compressed)) / float64(len(original))
}

// Close releases resources
func (c *Compressor) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	return nil
}
