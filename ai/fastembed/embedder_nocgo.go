//go:build !cgo

package fastembed

import (
	"context"

	"github.com/poiesic/docsearch/ai"
)

// NewLoader returns a loader that always fails: the ONNX runtime needs cgo.
func NewLoader(config *ai.Config) ai.Loader {
	return func(ctx context.Context) (ai.Embedder, error) {
		return nil, ErrNotAvailable
	}
}
