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

package docsearch

import (
	"fmt"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/ai/fastembed"
	"github.com/poiesic/docsearch/ai/openai"
)

// NewLoader returns the embedding loader for cfg.Provider. token is only
// used by the openai provider.
func NewLoader(cfg *ai.Config, token string) (ai.Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderFastEmbed:
		return fastembed.NewLoader(cfg), nil
	case ai.ProviderOpenAI:
		return openai.NewLoader(cfg, token), nil
	}
	return nil, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, cfg.Provider)
}
