package upload

import (
	"fmt"

	"github.com/r2d2/r2d2/internal/apperr"
)

const (
	// DefaultChunkSize is the part size used when none is configured
	DefaultChunkSize = 50 << 20
	// MinChunkSize is the smallest part S3-compatible stores accept
	MinChunkSize = 5 << 20
	// MaxChunks is the largest part count of a multipart upload
	MaxChunks = 10000
)

// Chunk is one part of a file
type Chunk struct {
	Index      int
	PartNumber int32 // Index + 1
	Offset     int64
	Length     int64
}

// ChunkPlan splits a file into parts of ChunkSize bytes; the last part
// holds the remainder.
type ChunkPlan struct {
	FileSize  int64
	ChunkSize int64
	Chunks    []Chunk
}

// NewChunkPlan computes the parts for a file. A maxChunks of 0 means
// MaxChunks.
func NewChunkPlan(fileSize, chunkSize int64, maxChunks int) (*ChunkPlan, error) {
	if fileSize <= 0 {
		return nil, apperr.User(fmt.Sprintf("Bad file size (%d).", fileSize))
	}
	if chunkSize <= 0 {
		return nil, apperr.Internal(fmt.Sprintf("invalid chunk size %d", chunkSize), nil)
	}
	if maxChunks <= 0 {
		maxChunks = MaxChunks
	}

	count := (fileSize + chunkSize - 1) / chunkSize
	if count > int64(maxChunks) {
		return nil, apperr.User("Too many chunks! Try increasing your chunk size.").
			With("chunks", count).With("max_chunks", maxChunks)
	}

	chunks := make([]Chunk, count)
	for i := range chunks {
		offset := int64(i) * chunkSize
		length := chunkSize
		if rest := fileSize - offset; rest < length {
			length = rest
		}
		chunks[i] = Chunk{
			Index:      i,
			PartNumber: int32(i + 1),
			Offset:     offset,
			Length:     length,
		}
	}

	return &ChunkPlan{FileSize: fileSize, ChunkSize: chunkSize, Chunks: chunks}, nil
}

// Count returns the number of parts
func (p *ChunkPlan) Count() int {
	return len(p.Chunks)
}
