// Package embed implements the embedding model singleton (spec.md §4.6): a
// multilingual sentence-embedding model served locally via Ollama. Adapted
// from the teacher's Ollama embedder pattern, including the documented
// mutex serializing concurrent requests (Ollama has been observed to crash
// under concurrent embedding calls).
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
)

// Multilingual model name constants, named rather than left as bare
// strings at call sites.
const (
	ModelParaphraseMultilingualMiniLM = "paraphrase-multilingual-minilm"
	ModelBGEM3                        = "bge-m3"
)

var embedMu sync.Mutex

// Embedder is the process-wide singleton wrapping the local embedding
// model. Deterministic for a given input; constructed once on first access
// by the caller (see New).
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
	maxRetries int
}

// New constructs an Embedder. Construction does not dial the model; the
// first Encode call is what proves reachability.
func New(baseURL, model string, dimension, maxRetries int) *Embedder {
	return &Embedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		maxRetries: maxRetries,
	}
}

func (e *Embedder) Dimension() int { return e.dimension }
func (e *Embedder) ModelName() string { return e.model }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EncodeSingle encodes one string to its dense vector.
func (e *Embedder) EncodeSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Encode encodes texts to dense vectors. Empty input is an error per
// spec.md §4.6. Requests are serialized process-wide via embedMu.
func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apierrors.New(apierrors.InvalidRequest, "embed: texts must not be empty")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.encodeWithRetry(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) encodeWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		vec, err := e.encodeOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if attempt < e.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	return nil, apierrors.Wrap(apierrors.ServiceUnavailable, "embed: exhausted retries", lastErr)
}

func (e *Embedder) encodeOnce(ctx context.Context, text string) ([]float32, error) {
	embedMu.Lock()
	defer embedMu.Unlock()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: ollama returned status %d", resp.StatusCode)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embeddings) == 0 {
		return nil, fmt.Errorf("embed: ollama returned no embeddings")
	}
	return parsed.Embeddings[0], nil
}
