package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/infrastructure/resilience"
)

// Client talks to a text-embeddings-inference style /rerank endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (c *Client) Rerank(ctx context.Context, query string, texts []string, topN int) ([]domain.RerankScore, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request := rerankRequest{Query: query, Texts: texts, Truncate: true}

	items, err := resilience.Call(ctx, c.executor, "crossencoder.rerank", func(ctx context.Context) ([]rerankItem, error) {
		return c.post(ctx, request)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("cross-encoder rerank", err, resilience.ClassifyHTTPError)
	}

	out := make([]domain.RerankScore, 0, len(items))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		out = append(out, domain.RerankScore{Index: item.Index, Score: item.Score})
	}
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, payload rerankRequest) ([]rerankItem, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("crossencoder", "rerank", resp)
	}

	var items []rerankItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return items, nil
}
