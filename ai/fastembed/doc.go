// Package fastembed runs embedding models locally through ONNX Runtime.
//
// The default model, BAAI/bge-small-en-v1.5, produces 384-dimension vectors.
// fastembed-go downloads the model and prepares ONNX Runtime; this package
// runs the model and mean-pools the token outputs over the attention mask.
// fastembed-go's Embed and QueryEmbed return the first token's vector
// instead, and QueryEmbed prepends "query: ", so neither is called.
// The model is downloaded to the configured cache directory the first time
// it is loaded.
// Builds without cgo get a loader that always fails with ErrNotAvailable.
package fastembed
