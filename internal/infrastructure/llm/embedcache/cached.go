package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kirillkom/workspace-search/internal/core/ports"
)

const (
	DefaultSize = 1000
	DefaultTTL  = 30 * time.Minute
)

// Embedder caches vectors per input text. Entries expire so a model swap behind the same
// name eventually takes effect without a restart.
type Embedder struct {
	inner ports.Embedder
	model string
	cache *expirable.LRU[string, []float32]
}

func New(inner ports.Embedder, model string, size int, ttl time.Duration) *Embedder {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Embedder{
		inner: inner,
		model: model,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vec)
	return vec, nil
}

// Embed only sends cache misses to the inner embedder, in one batch.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if vec, ok := e.cache.Get(e.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embed cache: got %d embeddings for %d inputs", len(vectors), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		e.cache.Add(e.key(texts[i]), vectors[j])
	}
	return out, nil
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}
