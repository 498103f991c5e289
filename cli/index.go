package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/indexer"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a single file",
	Long: `Embed one file and store its vector. The file must live under one of the
configured index directories and pass the extension, size, and exclude
filters.

An unchanged file is skipped unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexFile,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "Re-embed even if the file is unchanged")
	rootCmd.AddCommand(indexCmd)
}

func runIndexFile(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	e, err := loadEnv()
	if err != nil {
		return err
	}
	if err := e.requireVectorSearch(); err != nil {
		return err
	}

	lock, err := acquireIndexerLock(e)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	rt, err := e.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	path := args[0]
	if rt.indexer.Scanner().Skipped(absPath(path), false) {
		return fmt.Errorf("%s is outside the index directories or excluded", path)
	}

	indexed, err := rt.indexer.IndexFile(ctx, path, indexForce)
	if err != nil {
		if errors.Is(err, indexer.ErrNotIndexable) {
			return fmt.Errorf("%s cannot be indexed (check extension, size, and hidden files)", path)
		}
		return fmt.Errorf("failed to index %s: %w", path, err)
	}

	if indexed {
		fmt.Println(okStyle.Render("✓ ") + "Indexed " + path)
	} else {
		fmt.Println("Unchanged, skipped " + path + dimStyle.Render(" (use --force to re-embed)"))
	}
	return nil
}
