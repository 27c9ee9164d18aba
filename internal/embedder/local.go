package embedder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/buckhx/gobert/tokenize"
	"github.com/buckhx/gobert/tokenize/vocab"
	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"

	"github.com/normgraph/normgraph/internal/types"
)

const (
	localModelRepo = "sentence-transformers/all-MiniLM-L6-v2"
	localModelName = "all-MiniLM-L6-v2"
	localDims      = 384
	localSeqLen    = 256
)

// The GoMLX backend must only be initialized once per process, so the
// local embedder is a shared singleton.
var (
	localInstance *LocalEmbedder
	localOnce     sync.Once
	localErr      error
)

// LocalEmbedder runs all-MiniLM-L6-v2 on-process via GoMLX and ONNX.
// The model and vocabulary are downloaded from HuggingFace on first use
// and cached under ~/.cache/huggingface/; after that it works offline.
// Output vectors are 384-dimensional, mean-pooled over non-padding
// tokens.
type LocalEmbedder struct {
	model     *onnx.Model
	ctx       *mlcontext.Context
	backend   backends.Backend
	tokenizer tokenize.FeatureFactory
	mu        sync.Mutex
}

// NewLocalEmbedder returns the process-wide local embedder, loading the
// model on first call.
func NewLocalEmbedder() (*LocalEmbedder, error) {
	localOnce.Do(func() {
		backend, err := backends.New()
		if err != nil {
			localErr = types.WrapError(types.EMBEDDING_FAILED,
				"failed to initialize GoMLX backend", err)
			return
		}

		repo := hub.New(localModelRepo)

		modelPath, err := repo.DownloadFile("onnx/model.onnx")
		if err != nil {
			localErr = types.WrapError(types.EMBEDDING_FAILED,
				fmt.Sprintf("failed to download %s model", localModelName), err)
			return
		}

		model, err := onnx.ReadFile(modelPath)
		if err != nil {
			localErr = types.WrapError(types.EMBEDDING_FAILED,
				fmt.Sprintf("failed to load ONNX model from %s", modelPath), err)
			return
		}

		mlCtx := mlcontext.New()
		if err := model.VariablesToContext(mlCtx); err != nil {
			localErr = types.WrapError(types.EMBEDDING_FAILED,
				"failed to load model weights", err)
			return
		}

		vocabPath, err := repo.DownloadFile("vocab.txt")
		if err != nil {
			localErr = types.WrapError(types.EMBEDDING_FAILED,
				"failed to download tokenizer vocabulary", err)
			return
		}
		vocabDict, err := vocab.FromFile(vocabPath)
		if err != nil {
			localErr = types.WrapError(types.EMBEDDING_FAILED,
				fmt.Sprintf("failed to load vocabulary from %s", vocabPath), err)
			return
		}

		bertTokenizer := tokenize.NewTokenizer(vocabDict,
			tokenize.WithLower(true),
			tokenize.WithUnknownToken("[UNK]"))

		localInstance = &LocalEmbedder{
			model:   model,
			ctx:     mlCtx,
			backend: backend,
			tokenizer: tokenize.FeatureFactory{
				Tokenizer: bertTokenizer,
				SeqLen:    localSeqLen,
			},
		}
	})

	if localErr != nil {
		return nil, localErr
	}
	return localInstance, nil
}

// Embed tokenizes the text, runs the transformer, and mean-pools the
// last hidden state into a single 384-dimensional vector.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "context canceled", err)
	}

	// Graph execution is not reentrant.
	e.mu.Lock()
	defer e.mu.Unlock()

	feature := e.tokenizer.Feature(text)
	if len(feature.TokenIDs) == 0 {
		return nil, types.NewError(types.EMBEDDING_FAILED, "tokenization produced no tokens")
	}

	// The tokenizer emits int32, the ONNX graph expects int64.
	inputIDs := make([]int64, len(feature.TokenIDs))
	attentionMask := make([]int64, len(feature.Mask))
	tokenTypeIDs := make([]int64, len(feature.TypeIDs))
	for i := range feature.TokenIDs {
		inputIDs[i] = int64(feature.TokenIDs[i])
		attentionMask[i] = int64(feature.Mask[i])
		tokenTypeIDs[i] = int64(feature.TypeIDs[i])
	}

	result, err := mlcontext.ExecOnce(e.backend, e.ctx,
		func(mlCtx *mlcontext.Context, inputs []*Node) *Node {
			g := inputs[0].Graph()
			ids, mask, typeIDs := inputs[0], inputs[1], inputs[2]

			outputs := e.model.CallGraph(mlCtx, g, map[string]*Node{
				"input_ids":      ids,
				"attention_mask": mask,
				"token_type_ids": typeIDs,
			}, "last_hidden_state")
			hidden := outputs[0] // [batch, seq_len, hidden]

			// Mean pooling over non-padding tokens.
			maskF := ConvertType(ExpandDims(mask, -1), hidden.DType())
			summed := ReduceSum(Mul(hidden, maskF), 1)
			counts := Add(ReduceSum(maskF, 1), Const(g, float32(1e-9)))
			return Div(summed, counts)
		},
		[][]int64{inputIDs}, [][]int64{attentionMask}, [][]int64{tokenTypeIDs})
	if err != nil {
		return nil, types.WrapError(types.EMBEDDING_FAILED, "model execution failed", err)
	}

	embedding, err := pooledTensorToSlice(result)
	if err != nil {
		return nil, err
	}
	if len(embedding) != localDims {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("unexpected embedding dimension: got %d, want %d", len(embedding), localDims))
	}
	return embedding, nil
}

// pooledTensorToSlice extracts the single row of a [1, N] tensor.
func pooledTensorToSlice(tensor *tensors.Tensor) ([]float64, error) {
	shape := tensor.Shape()
	if shape.Rank() != 2 || shape.Dimensions[0] != 1 {
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("expected tensor shape [1, N], got %v", shape))
	}
	dims := shape.Dimensions[1]
	out := make([]float64, dims)

	switch tensor.DType() {
	case dtypes.Float32:
		data, err := tensors.CopyFlatData[float32](tensor)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to copy tensor data", err)
		}
		for i := 0; i < dims; i++ {
			out[i] = float64(data[i])
		}
	case dtypes.Float64:
		data, err := tensors.CopyFlatData[float64](tensor)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED, "failed to copy tensor data", err)
		}
		copy(out, data)
	default:
		return nil, types.NewError(types.EMBEDDING_FAILED,
			fmt.Sprintf("unsupported tensor dtype: %v", tensor.DType()))
	}
	return out, nil
}

// EmbedBatch embeds texts sequentially, checking the context between
// items.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	results := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED,
				fmt.Sprintf("context canceled after %d/%d embeddings", i, len(texts)), err)
		}
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, types.WrapError(types.EMBEDDING_FAILED,
				fmt.Sprintf("failed to embed text %d/%d", i+1, len(texts)), err)
		}
		results[i] = embedding
	}
	return results, nil
}

// Dimensions returns 384 for all-MiniLM-L6-v2.
func (e *LocalEmbedder) Dimensions() int { return localDims }

// Model returns the embedding model name.
func (e *LocalEmbedder) Model() string { return localModelName }

// Health embeds a probe text to verify the model is operational.
func (e *LocalEmbedder) Health(ctx context.Context) types.HealthStatus {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := e.Embed(healthCtx, "health check"); err != nil {
		return types.Degraded(fmt.Sprintf("local embedder failed probe: %v", err))
	}
	return types.Healthy(fmt.Sprintf("local embedder operational (%s)", localModelName))
}
