// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"

	"github.com/poiesic/docsearch/ai"
)

// NewLoader returns an ai.Loader that builds an OpenAI-compatible embedder
// from config. token may be empty for local servers.
//
// Building the client performs no network I/O; a bad endpoint surfaces on
// the first Extract call rather than at load time.
func NewLoader(config *ai.Config, token string) ai.Loader {
	return func(ctx context.Context) (ai.Embedder, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return newEmbedder(config, token)
	}
}
