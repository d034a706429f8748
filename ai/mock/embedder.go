package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/poiesic/docsearch/ai"
)

// DefaultDimension matches the bge-small model used in production.
const DefaultDimension = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the size of generated vectors. Zero means DefaultDimension.
	Dimension int

	mu        sync.Mutex
	callCount int
	closed    bool
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.EmbedTextFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DeterministicVector(text, m.dim()), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = DeterministicVector(text, m.dim())
	}
	return embeddings, nil
}

// Close marks the embedder closed.
func (m *MockEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockEmbedder) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.closed = false
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

func (m *MockEmbedder) dim() int {
	if m.Dimension > 0 {
		return m.Dimension
	}
	return DefaultDimension
}

// DeterministicVector creates a unit-length embedding vector from text.
// It uses an FNV hash so the same text (ignoring case and surrounding space)
// always produces the same vector. Tests use it to seed stores with section
// embeddings that match a known query exactly.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := 1.0 / math.Sqrt(sumSquares)
		for i := range vector {
			vector[i] = float32(float64(vector[i]) * norm)
		}
	}

	return vector
}

// Loader returns an ai.Loader that hands out m and counts how often it ran.
func (m *MockEmbedder) Loader(loads *int32) ai.Loader {
	return func(ctx context.Context) (ai.Embedder, error) {
		if loads != nil {
			atomic.AddInt32(loads, 1)
		}
		return m, nil
	}
}

// FailingLoader returns an ai.Loader that always fails with err.
func FailingLoader(err error) ai.Loader {
	return func(ctx context.Context) (ai.Embedder, error) {
		return nil, err
	}
}
