//go:build cgo

package fastembed

import (
	"context"
	"testing"

	"github.com/poiesic/docsearch/ai"
	"github.com/stretchr/testify/assert"
)

func TestNewLoader_UnsupportedModel(t *testing.T) {
	_, err := NewLoader(ai.NewConfig(ai.WithModel("acme/unknown")))(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNewLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(ai.DefaultConfig())(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
