package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOllama(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(i) / float32(dim)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{vec}})
	}))
}

func TestEncodeSingleReturnsDimensionedVector(t *testing.T) {
	srv := fakeOllama(t, 384)
	defer srv.Close()

	e := New(srv.URL, ModelParaphraseMultilingualMiniLM, 384, 1)
	vec, err := e.EncodeSingle(context.Background(), "질문입니다")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestEncodeEmptyInputIsError(t *testing.T) {
	e := New("http://localhost:11434", ModelParaphraseMultilingualMiniLM, 384, 1)
	_, err := e.Encode(context.Background(), nil)
	assert.Error(t, err)
}

func TestEncodeIsDeterministicForSameServer(t *testing.T) {
	srv := fakeOllama(t, 8)
	defer srv.Close()

	e := New(srv.URL, ModelParaphraseMultilingualMiniLM, 8, 1)
	v1, err := e.EncodeSingle(context.Background(), "same text")
	require.NoError(t, err)
	v2, err := e.EncodeSingle(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}
