package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/search"
	"github.com/burrowapp/burrow/store"
)

var (
	searchLimit   int
	searchJSON    bool
	searchTOON    bool
	searchCompact bool
)

// SearchResultJSON is a lightweight struct for JSON output
type SearchResultJSON struct {
	Path    string  `json:"path"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"`
}

// SearchResultCompactJSON is a minimal struct for compact JSON output (no preview field)
type SearchResultCompactJSON struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed files with natural language",
	Long: `Search your indexed files using natural language queries.

The search will:
- Vectorize your query using the configured embedding provider
- Calculate cosine similarity against every indexed file
- Return the most relevant files with their score and a short preview`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of results to return (default: vector_search.top_k)")
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output results in JSON format (for AI agents)")
	searchCmd.Flags().BoolVarP(&searchTOON, "toon", "t", false, "Output results in TOON format (token-efficient for AI agents)")
	searchCmd.Flags().BoolVarP(&searchCompact, "compact", "c", false, "Output minimal format without previews (requires --json or --toon)")
	searchCmd.MarkFlagsMutuallyExclusive("json", "toon")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := cmd.Context()

	if searchCompact && !searchJSON && !searchTOON {
		return fmt.Errorf("--compact flag requires --json or --toon flag")
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	if err := e.requireVectorSearch(); err != nil {
		return err
	}

	rt, err := e.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	searcher := search.NewSearcher(rt.store, rt.embedder, e.cfg.VectorSearch)
	results, err := searcher.Search(ctx, query, searchLimit)
	if err != nil {
		if searchJSON {
			return outputSearchErrorJSON(err)
		}
		if searchTOON {
			return outputSearchErrorTOON(err)
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON || searchTOON {
		return outputSearchResults(os.Stdout, results, searchCompact, searchTOON)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %q\n\n", len(results), query)
	for i, r := range results {
		fmt.Printf("─── Result %d (score: %.4f) ───\n", i+1, r.Score)
		fmt.Println(titleStyle.Render(r.Path))
		if preview := strings.TrimSpace(r.Preview); preview != "" {
			for _, line := range strings.Split(preview, "\n") {
				fmt.Printf("  │ %s\n", line)
			}
		}
		fmt.Println()
	}
	return nil
}

// outputSearchResults writes results as JSON or TOON, with or without previews.
func outputSearchResults(w io.Writer, results []store.SearchResult, compact, toon bool) error {
	var data any
	if compact {
		out := make([]SearchResultCompactJSON, len(results))
		for i, r := range results {
			out[i] = SearchResultCompactJSON{Path: r.Path, Score: r.Score}
		}
		data = out
	} else {
		out := make([]SearchResultJSON, len(results))
		for i, r := range results {
			out[i] = SearchResultJSON{Path: r.Path, Score: r.Score, Preview: r.Preview}
		}
		data = out
	}

	if toon {
		output, err := gotoon.Encode(data)
		if err != nil {
			return fmt.Errorf("failed to encode TOON: %w", err)
		}
		_, err = fmt.Fprintln(w, output)
		return err
	}
	return writeJSONOut(w, data)
}

// outputSearchErrorJSON outputs an error in JSON format
func outputSearchErrorJSON(err error) error {
	_ = printJSON(map[string]string{"error": err.Error()})
	return nil
}

// outputSearchErrorTOON outputs an error in TOON format
func outputSearchErrorTOON(err error) error {
	output, encErr := gotoon.Encode(map[string]string{"error": err.Error()})
	if encErr != nil {
		return fmt.Errorf("failed to encode TOON error: %w", encErr)
	}
	fmt.Println(output)
	return nil
}
