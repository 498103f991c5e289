package cli

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/config"
	"github.com/burrowapp/burrow/daemon"
	"github.com/burrowapp/burrow/history"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and launch statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := loadEnv()
	if err != nil {
		return err
	}

	var stats daemon.StatsResponse
	client, err := e.daemonClient()
	if err != nil {
		return err
	}
	if client != nil {
		stats, err = client.Stats(ctx)
	}
	if client == nil || err != nil {
		stats, err = localStats(cmd, e)
		if err != nil {
			return err
		}
	}

	if statsJSON {
		return printJSON(stats)
	}

	fmt.Println(titleStyle.Render("burrow stats"))
	fmt.Printf("  Indexed files: %d\n", stats.IndexedFiles)
	fmt.Printf("  Launches:      %d\n", stats.LaunchCount)
	if stats.LastIndexed == nil {
		fmt.Println("  Last indexed:  never")
		return nil
	}
	last := *stats.LastIndexed
	if t, err := time.Parse(time.RFC3339, last); err == nil {
		last = fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05"), formatAge(t))
	}
	fmt.Printf("  Last indexed:  %s\n", last)
	return nil
}

func localStats(cmd *cobra.Command, e *env) (daemon.StatsResponse, error) {
	ctx := cmd.Context()

	st, err := initializeStore(ctx, e)
	if err != nil {
		return daemon.StatsResponse{}, err
	}
	defer st.Close()

	var launches daemon.LaunchCounter
	hist, err := history.Open(ctx, config.GetHistoryDBPath(e.dataDir))
	if err != nil {
		log.Printf("Warning: launch history unavailable: %v", err)
	} else {
		defer hist.Close()
		launches = hist
	}

	return daemon.CollectStats(ctx, st, launches)
}
