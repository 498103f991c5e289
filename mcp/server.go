// Package mcp provides an MCP (Model Context Protocol) server for burrow.
// This allows AI agents to search indexed files and drive the indexer.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/store"
)

// Searcher answers a natural-language query with ranked files.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error)
}

// Reindexer starts an indexing run, either in a daemon or in-process.
type Reindexer interface {
	daemon.ProgressSource
	StartIndexer(ctx context.Context, full bool) (daemon.StartResponse, error)
}

type Deps struct {
	Store     store.VectorStore
	Searcher  Searcher
	Reindexer Reindexer
	Model     daemon.ModelInfo
}

// Server wraps the MCP server with burrow functionality.
type Server struct {
	mcpServer *server.MCPServer
	deps      Deps
}

// SearchResult is a lightweight struct for MCP output.
type SearchResult struct {
	Path    string  `json:"path"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"`
}

// SearchResultCompact is a minimal struct for compact output (no preview field).
type SearchResultCompact struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

// IndexStatus represents the current state of the index.
type IndexStatus struct {
	IndexedFiles int64             `json:"indexed_files"`
	LastIndexed  string            `json:"last_indexed"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	Progress     progress.Progress `json:"progress"`
}

// encodeOutput encodes data in the specified format (json or toon).
func encodeOutput(data any, format string) (string, error) {
	switch format {
	case "toon":
		return gotoon.Encode(data)
	default: // "json"
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(jsonBytes), nil
	}
}

func NewServer(version string, deps Deps) *Server {
	s := &Server{deps: deps}

	s.mcpServer = server.NewMCPServer(
		"burrow",
		version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	searchTool := mcp.NewTool("burrow_search",
		mcp.WithDescription("Semantic file search. Finds indexed documents and source files whose content matches a natural language query. Returns paths, similarity scores, and a short preview."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query (e.g., 'last year's tax return', 'notes about the trip to Lisbon')"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: configured top_k)"),
		),
		mcp.WithBoolean("compact",
			mcp.Description("Return minimal output without previews (default: false)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearch)

	statusTool := mcp.NewTool("burrow_index_status",
		mcp.WithDescription("Check the state of the burrow index. Returns the number of indexed files, the last index time, the embedding model, and the progress of any running indexer."),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(statusTool, s.handleIndexStatus)

	reindexTool := mcp.NewTool("burrow_reindex",
		mcp.WithDescription("Start an indexing run in the background. Incremental by default: only new or modified files are embedded and deleted files are removed."),
		mcp.WithBoolean("full",
			mcp.Description("Clear the index and re-embed every file (default: false)"),
		),
	)
	s.mcpServer.AddTool(reindexTool, s.handleReindex)
}

// handleSearch handles the burrow_search tool call.
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := request.GetInt("limit", 0)
	compact := request.GetBool("compact", false)
	format := request.GetString("format", "json")

	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	results, err := s.deps.Searcher.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var data any
	if compact {
		out := make([]SearchResultCompact, len(results))
		for i, r := range results {
			out[i] = SearchResultCompact{Path: r.Path, Score: r.Score}
		}
		data = out
	} else {
		out := make([]SearchResult, len(results))
		for i, r := range results {
			out[i] = SearchResult{Path: r.Path, Score: r.Score, Preview: r.Preview}
		}
		data = out
	}

	output, err := encodeOutput(data, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleIndexStatus handles the burrow_index_status tool call.
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	count, err := s.deps.Store.Count(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to count documents: %v", err)), nil
	}
	last, err := s.deps.Store.MaxIndexedAt(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read last index time: %v", err)), nil
	}

	status := IndexStatus{
		IndexedFiles: count,
		LastIndexed:  "never",
		Provider:     s.deps.Model.Provider,
		Model:        s.deps.Model.Name,
	}
	if last != nil {
		status.LastIndexed = last.UTC().Format(time.RFC3339)
	}
	if s.deps.Reindexer != nil {
		if p, err := s.deps.Reindexer.Progress(ctx); err == nil {
			status.Progress = p
		}
	}

	output, err := encodeOutput(status, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode status: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleReindex handles the burrow_reindex tool call.
func (s *Server) handleReindex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Reindexer == nil {
		return mcp.NewToolResultError("indexing is not available"), nil
	}

	full := request.GetBool("full", false)
	resp, err := s.deps.Reindexer.StartIndexer(ctx, full)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start indexer: %v", err)), nil
	}

	output, err := encodeOutput(resp, "json")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}
