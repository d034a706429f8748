//go:build cgo

package fastembed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/poiesic/docsearch/ai"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// batchSize bounds the sequences fed to one ONNX run.
const batchSize = 64

// defaultCacheDir is where fastembed-go puts models when no directory is set.
const defaultCacheDir = "local_cache"

// modelMapping maps model identifiers to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// Embedder implements ai.Embedder on a local ONNX model. fastembed-go
// fetches the model and sets up ONNX Runtime; the embedder runs the model
// itself and mean-pools last_hidden_state over the attention mask. Texts
// are embedded as given, without query or passage prefixes.
type Embedder struct {
	flag      *fastembed.FlagEmbedding
	tokenizer *tokenizer.Tokenizer
	modelFile string
	dim       int
	mu        sync.RWMutex
	logger    *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	model, ok := modelMapping[config.Model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, config.Model)
	}
	dim, err := modelDimension(model)
	if err != nil {
		return nil, err
	}

	cacheDir := config.CacheDir
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            config.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	modelPath := filepath.Join(cacheDir, string(model))
	tk, err := loadTokenizer(modelPath, config.MaxLength)
	if err != nil {
		flag.Destroy()
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	return &Embedder{
		flag:      flag,
		tokenizer: tk,
		modelFile: filepath.Join(modelPath, "model_optimized.onnx"),
		dim:       dim,
		logger:    slog.Default().With("component", "fastembed-embedder", "model", config.Model),
	}, nil
}

func modelDimension(model fastembed.EmbeddingModel) (int, error) {
	for _, info := range fastembed.ListSupportedModels() {
		if info.Model == model {
			return info.Dim, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
}

// loadTokenizer reads tokenizer.json with truncation to maxLength and
// padding to the longest sequence of each batch.
func loadTokenizer(modelPath string, maxLength int) (*tokenizer.Tokenizer, error) {
	tk, err := pretrained.FromFile(filepath.Join(modelPath, "tokenizer.json"))
	if err != nil {
		return nil, err
	}

	var modelConfig struct {
		PadTokenID int `json:"pad_token_id"`
	}
	if err := readJSON(filepath.Join(modelPath, "config.json"), &modelConfig); err != nil {
		return nil, err
	}
	var tokenizerConfig struct {
		PadToken       string  `json:"pad_token"`
		ModelMaxLength float64 `json:"model_max_length"`
	}
	if err := readJSON(filepath.Join(modelPath, "tokenizer_config.json"), &tokenizerConfig); err != nil {
		return nil, err
	}
	if tokenizerConfig.PadToken == "" {
		tokenizerConfig.PadToken = "[PAD]"
	}
	if limit := tokenizerConfig.ModelMaxLength; limit > 0 && float64(maxLength) > limit {
		maxLength = int(limit)
	}

	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: maxLength,
		Strategy:  tokenizer.LongestFirst,
	})
	tk.WithPadding(&tokenizer.PaddingParams{
		Strategy:  *tokenizer.NewPaddingStrategy(),
		Direction: tokenizer.Right,
		PadId:     modelConfig.PadTokenID,
		PadToken:  tokenizerConfig.PadToken,
	})
	return tk, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// EmbedText embeds a search query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts in batches of batchSize.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.flag == nil {
		return nil, ErrClosed
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(texts))
		vecs, err := e.run(texts[start:end])
		if err != nil {
			e.logger.Error("failed to generate embeddings", "count", end-start, "err", err)
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// run embeds one batch.
func (e *Embedder) run(texts []string) ([][]float32, error) {
	inputs := make([]tokenizer.EncodeInput, len(texts))
	for i, text := range texts {
		inputs[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(text))
	}
	encodings, err := e.tokenizer.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}
	if len(encodings) == 0 {
		return nil, errors.New("tokenizer returned no encodings")
	}

	seq := encodings[0].Len()
	ids := make([]int64, 0, len(texts)*seq)
	mask := make([]int64, 0, len(texts)*seq)
	types := make([]int64, 0, len(texts)*seq)
	for _, enc := range encodings {
		ids = appendInt64(ids, enc.GetIds())
		mask = appendInt64(mask, enc.GetAttentionMask())
		types = appendInt64(types, enc.GetTypeIds())
	}

	shape := ort.NewShape(int64(len(texts)), int64(seq))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, err
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, err
	}
	defer maskTensor.Destroy()
	typesTensor, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, err
	}
	defer typesTensor.Destroy()

	hidden, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(len(texts)), int64(seq), int64(e.dim)))
	if err != nil {
		return nil, err
	}
	defer hidden.Destroy()

	session, err := ort.NewAdvancedSession(e.modelFile,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{idsTensor, maskTensor, typesTensor},
		[]ort.ArbitraryTensor{hidden},
		nil)
	if err != nil {
		return nil, fmt.Errorf("creating onnx session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return nil, fmt.Errorf("running model: %w", err)
	}
	return meanPool(hidden.GetData(), mask, len(texts), seq, e.dim), nil
}

func appendInt64(dst []int64, src []int) []int64 {
	for _, v := range src {
		dst = append(dst, int64(v))
	}
	return dst
}

// Close releases the ONNX environment.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.flag == nil {
		return nil
	}
	err := e.flag.Destroy()
	e.flag = nil
	return err
}

// NewLoader returns an ai.Loader that loads the configured local model,
// downloading it into config.CacheDir on first use.
func NewLoader(config *ai.Config) ai.Loader {
	return func(ctx context.Context) (ai.Embedder, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return newEmbedder(config)
	}
}
