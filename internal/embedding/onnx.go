//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Input and output names of sentence-transformers models exported to ONNX.
var (
	onnxInputs = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutput = "last_hidden_state"
)

func newONNXEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
}

// ONNXEmbedder runs a sentence-embedding model (all-MiniLM-L6-v2 by default) in-process
// with ONNX Runtime. Passage vectors are the attention-masked mean of the token states.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	modelPath  string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	mu      sync.Mutex
	session *ort.AdvancedSession
	ids     *ort.Tensor[int64]
	mask    *ort.Tensor[int64]
	types   *ort.Tensor[int64]
	hidden  *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath. Inference runs one text at a time on
// tensors allocated here.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (_ *ONNXEmbedder, err error) {
	if modelPath == "" {
		return nil, fmt.Errorf("embedding.model_path is required for the onnx provider")
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		modelPath:  modelPath,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &SimpleTokenizer{},
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, e.Close())
		}
	}()

	tokens := ort.NewShape(1, int64(maxTokens))
	if e.ids, err = ort.NewEmptyTensor[int64](tokens); err != nil {
		return nil, fmt.Errorf("allocate input_ids: %w", err)
	}
	if e.mask, err = ort.NewEmptyTensor[int64](tokens); err != nil {
		return nil, fmt.Errorf("allocate attention_mask: %w", err)
	}
	if e.types, err = ort.NewEmptyTensor[int64](tokens); err != nil {
		return nil, fmt.Errorf("allocate token_type_ids: %w", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(maxTokens), int64(dimensions))); err != nil {
		return nil, fmt.Errorf("allocate %s: %w", onnxOutput, err)
	}

	e.session, err = ort.NewAdvancedSession(
		modelPath,
		onnxInputs,
		[]string{onnxOutput},
		[]ort.ArbitraryTensor{e.ids, e.mask, e.types},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("load onnx model %s: %w", modelPath, err)
	}
	return e, nil
}

// Embed returns the normalized sentence embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.ids.GetData(), ids)
	copy(e.mask.GetData(), mask)
	copy(e.types.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}

	vec := meanPool(e.hidden.GetData(), mask, e.dimensions)
	utils.NormalizeL2(vec)
	return vec, nil
}

// meanPool averages the token states whose mask is set. states is laid out
// token-major: len(mask) rows of dims values.
func meanPool(states []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := states[t*dims : (t+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}

// EmbedBatch embeds texts in order, stopping at the first error.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Model identifies the loaded model file.
func (e *ONNXEmbedder) Model() string {
	return "onnx/" + filepath.Base(e.modelPath)
}

// Close releases the session and its tensors. It is safe to call more than once.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = multierr.Append(err, e.session.Destroy())
		e.session = nil
	}
	for _, t := range []interface{ Destroy() error }{e.ids, e.mask, e.types, e.hidden} {
		if t != nil && !isNilTensor(t) {
			err = multierr.Append(err, t.Destroy())
		}
	}
	e.ids, e.mask, e.types, e.hidden = nil, nil, nil, nil
	return err
}

func isNilTensor(t interface{ Destroy() error }) bool {
	switch v := t.(type) {
	case *ort.Tensor[int64]:
		return v == nil
	case *ort.Tensor[float32]:
		return v == nil
	}
	return false
}
