package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/burrowapp/burrow/config"
)

var configPathOnly bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the configuration file",
	Long: `Print the configuration file. When none exists yet, one holding the
defaults is written first so it can be edited.

Environment overrides (BURROW_*) and .env values are applied at load time
and never written to the file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := config.GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		return showConfig(cmd.OutOrStdout(), configDir, configPathOnly)
	},
}

func init() {
	configCmd.Flags().BoolVar(&configPathOnly, "path", false, "Print the config file path only")
	rootCmd.AddCommand(configCmd)
}

func showConfig(w io.Writer, configDir string, pathOnly bool) error {
	path := config.GetConfigPath(configDir)
	if pathOnly {
		fmt.Fprintln(w, path)
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := config.DefaultConfig().Save(configDir); err != nil {
			return err
		}
		fmt.Fprintln(w, okStyle.Render("✓ ")+"Wrote default configuration")
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	fmt.Fprintln(w, dimStyle.Render("# "+path))
	_, err = w.Write(data)
	return err
}
