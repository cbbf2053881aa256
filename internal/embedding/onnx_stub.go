//go:build !cgo
// +build !cgo

package embedding

import (
	"errors"

	"github.com/hyperjump/kotae/internal/config"
)

func newONNXEmbedder(_ config.EmbeddingConfig) (Embedder, error) {
	return nil, errors.New("onnx embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
