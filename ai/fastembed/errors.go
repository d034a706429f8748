package fastembed

import "errors"

var (
	// ErrNotAvailable is returned when the binary was built without cgo.
	ErrNotAvailable = errors.New("fastembed: not available (binary built without cgo, use the openai provider instead)")

	// ErrUnsupportedModel indicates a model fastembed cannot load.
	ErrUnsupportedModel = errors.New("fastembed: unsupported model")

	// ErrClosed indicates the embedder was used after Close.
	ErrClosed = errors.New("fastembed: embedder closed")
)
