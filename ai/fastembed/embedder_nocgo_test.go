//go:build !cgo

package fastembed

import (
	"context"
	"testing"

	"github.com/poiesic/docsearch/ai"
	"github.com/stretchr/testify/assert"
)

func TestNewLoader_WithoutCgo(t *testing.T) {
	_, err := NewLoader(ai.DefaultConfig())(context.Background())
	assert.ErrorIs(t, err, ErrNotAvailable)
}
