// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder implements ai.Embedder without a model. By default it returns
// deterministic unit vectors derived from a hash of the input, so a section
// seeded with DeterministicVector("auth") scores 1.0 against the query "auth".
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	extractor, err := ai.NewExtractor(embedder.Loader(nil))
//
//	// Custom behavior injection
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("boom")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
