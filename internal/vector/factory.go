package vector

import (
	"fmt"

	"go.uber.org/zap"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses an exact linear scan. Good for small corpora.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeIVF scans exactly below a threshold and switches to k-means partitions above it.
	IndexTypeIVF IndexType = "ivf"
	// IndexTypeFAISS uses FAISS. Requires the FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

type settings struct {
	ivfThreshold int
	ivfProbes    int
	logger       *zap.Logger
}

// Option configures NewVectorIndex.
type Option func(*settings)

// WithIVF sets the IVF partitioning threshold and probe count.
func WithIVF(threshold, probes int) Option {
	return func(s *settings) {
		s.ivfThreshold = threshold
		s.ivfProbes = probes
	}
}

// WithLogger sets a logger for index maintenance events.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default), "ivf", "faiss".
func NewVectorIndex(indexType string, dimensions int, opts ...Option) (VectorIndex, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeIVF:
		idx, err := NewIVFIndex(dimensions, s.ivfThreshold, s.ivfProbes)
		if err != nil {
			return nil, err
		}
		idx.logger = s.logger
		return idx, nil
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, ivf, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
