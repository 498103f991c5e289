package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/embedder"
	"github.com/burrowapp/burrow/health"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check Ollama, the vector database, and the API key",
	Long: `Report whether the services indexing depends on are usable. The daemon
answers when it is running; otherwise the checks run in this process.

Exits with status 1 unless both Ollama and the vector database are healthy.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output the report as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	report, err := healthReport(cmd, e)
	if err != nil {
		return err
	}

	if healthJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printHealth(report)
	}

	if !report.Healthy() {
		return fmt.Errorf("unhealthy: %s", strings.Join(report.Issues, "; "))
	}
	return nil
}

func healthReport(cmd *cobra.Command, e *env) (health.Report, error) {
	ctx := cmd.Context()

	client, err := e.daemonClient()
	if err != nil {
		return health.Report{}, err
	}
	if client != nil {
		if report, err := client.Health(ctx); err == nil {
			return report, nil
		}
	}

	st, err := initializeStore(ctx, e)
	if err != nil {
		// A store that cannot be opened is itself a health finding.
		return health.NewChecker(nil, nil, nil, e.cfg.HasAPIKey()).Check(ctx), nil
	}
	defer st.Close()

	emb, err := embedder.NewFromConfig(e.cfg)
	if err != nil {
		return health.Report{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer emb.Close()

	pinger, _ := emb.(embedder.Pinger)
	return health.NewChecker(pinger, st, nil, e.cfg.HasAPIKey()).Check(ctx), nil
}

func printHealth(r health.Report) {
	fmt.Println(titleStyle.Render("burrow health"))
	fmt.Printf("  Ollama:    %s\n", statusMark(r.Ollama))
	fmt.Printf("  Vector DB: %s\n", statusMark(r.VectorDB))
	fmt.Printf("  API key:   %s\n", statusMark(r.APIKey))
	if r.Indexing {
		fmt.Println("  Indexing:  in progress")
	}
	for _, issue := range r.Issues {
		fmt.Println("  " + failStyle.Render("• ") + issue)
	}
}
