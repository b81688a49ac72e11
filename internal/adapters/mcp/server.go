// Package mcpadapter exposes workspace search as an MCP tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/workspace-search/internal/core/domain"
	"github.com/kirillkom/workspace-search/internal/core/ports"
)

const (
	ServerName     = "workspace-search"
	ServerVersion  = "1.0.0"
	SearchToolName = "search_workspace"
)

type Server struct {
	mcp      *server.MCPServer
	searcher ports.WorkspaceSearcher
}

func NewServer(searcher ports.WorkspaceSearcher) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		searcher: searcher,
	}
	s.mcp.AddTool(searchTool(), s.handleSearch)
	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func searchTool() mcp.Tool {
	return mcp.NewTool(SearchToolName,
		mcp.WithDescription("Search Slack conversations and workspace documents. Returns ranked results with thread and document context."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query"),
		),
		mcp.WithArray("sources",
			mcp.Description("Restrict to slack and/or document. Defaults to both."),
			mcp.Items(map[string]any{
				"type": "string",
				"enum": []string{string(domain.SourceSlack), string(domain.SourceDocument)},
			}),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (1-100)"),
			mcp.Min(1),
			mcp.Max(domain.MaxSearchLimit),
		),
		mcp.WithBoolean("rerank",
			mcp.Description("Rerank candidates with the configured reranker"),
		),
		mcp.WithBoolean("enable_context_expansion",
			mcp.Description("Attach whole documents, thread replies and surrounding messages"),
		),
	)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	opts := domain.DefaultSearchOptions()
	if raw := request.GetStringSlice("sources", nil); len(raw) > 0 {
		opts.Sources = make([]domain.Source, 0, len(raw))
		for _, name := range raw {
			source, ok := domain.ParseSource(name)
			if !ok {
				return mcp.NewToolResultError("unknown source: " + name), nil
			}
			opts.Sources = append(opts.Sources, source)
		}
	}
	limit := request.GetInt("limit", domain.DefaultSearchLimit)
	if limit < 1 || limit > domain.MaxSearchLimit {
		return mcp.NewToolResultError("limit must be between 1 and 100"), nil
	}
	opts.Limit = limit
	opts.Rerank = request.GetBool("rerank", opts.Rerank)
	opts.EnableContextExpansion = request.GetBool("enable_context_expansion", opts.EnableContextExpansion)

	results, err := s.searcher.Search(ctx, query, opts)
	if err != nil {
		slog.Error("mcp_search_failed", "error", err)
		if errors.Is(err, domain.ErrTemporary) {
			return mcp.NewToolResultError("search temporarily unavailable, retry later"), nil
		}
		return nil, err
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	payload, err := json.MarshalIndent(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
