package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/config"
	"github.com/burrowapp/burrow/history"
)

var (
	historyClear  bool
	historyJSON   bool
	historyRemove string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the launch history",
	Long: `Show launched items ranked by frecency (launch count decayed by age).

Use --remove to forget a single item or --clear to forget all of them.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete every history entry")
	historyCmd.Flags().StringVar(&historyRemove, "remove", "", "Delete the entry with this id")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output entries as JSON")
	historyCmd.MarkFlagsMutuallyExclusive("clear", "remove", "json")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := loadEnv()
	if err != nil {
		return err
	}

	hist, err := history.Open(ctx, config.GetHistoryDBPath(e.dataDir))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer hist.Close()

	switch {
	case historyClear:
		n, err := hist.Clear(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Removed %d entries\n", n)
		return nil
	case historyRemove != "":
		ok, err := hist.Remove(ctx, historyRemove)
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", historyRemove, err)
		}
		if !ok {
			return fmt.Errorf("no history entry with id %q", historyRemove)
		}
		fmt.Printf("Removed %s\n", historyRemove)
		return nil
	}

	entries, err := hist.Frecent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if historyJSON {
		if entries == nil {
			entries = []history.Entry{}
		}
		return printJSON(entries)
	}
	printHistory(os.Stdout, entries)
	return nil
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No launches recorded yet.")
		return
	}
	for i, en := range entries {
		fmt.Fprintf(w, "%2d. %-32s %s\n", i+1, en.Name, dimStyle.Render(fmt.Sprintf("%d launches, score %.2f", en.Count, en.Score)))
		fmt.Fprintf(w, "    %s\n", dimStyle.Render(en.Exec))
	}
}
