package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/mcp"
	"github.com/burrowapp/burrow/progress"
	"github.com/burrowapp/burrow/search"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve",
	Short: "Start burrow as an MCP server",
	Long: `Start burrow as an MCP (Model Context Protocol) server.

This allows AI agents to use burrow as a native tool through the MCP protocol.
The server communicates via stdio and exposes the following tools:

  - burrow_search: Semantic file search with natural language
  - burrow_index_status: Indexed file count, last index time, and indexer progress
  - burrow_reindex: Start an incremental or full indexing run

Indexing requests go to the daemon when it is running, and run inside the
MCP server process otherwise.

Configuration for Cursor (.cursor/mcp.json):
  {
    "mcpServers": {
      "burrow": {
        "command": "burrow",
        "args": ["mcp-serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	rootCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := loadEnv()
	if err != nil {
		return err
	}

	st, err := initializeStore(ctx, e)
	if err != nil {
		return err
	}
	defer st.Close()

	// Ollama may come up after the MCP server; search reports the error per call.
	emb, err := embedder.NewFromConfig(e.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer emb.Close()

	var reindexer mcp.Reindexer
	client, err := e.daemonClient()
	if err != nil {
		return err
	}
	if client != nil {
		reindexer = client
	} else {
		tracker := progress.NewTracker()
		local := &localRunner{env: e, indexer: newIndexer(e, st, emb, tracker), tracker: tracker}
		defer local.Wait()
		reindexer = local
	}

	srv := mcp.NewServer(Version, mcp.Deps{
		Store:     st,
		Searcher:  search.NewSearcher(st, emb, e.cfg.VectorSearch),
		Reindexer: reindexer,
		Model:     e.modelInfo(),
	})
	return srv.Serve()
}
