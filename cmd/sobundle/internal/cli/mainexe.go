package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sobundle/pkg/manifest"
)

var mainExeCmd = &cobra.Command{
	Use:   "main-exe DIR",
	Short: "Print the main executable of a tree",
	Long: `Probes the configured executable directories of DIR (by default
/usr/bin, /bin and /usr/local/bin, in that order) and prints the first
executable regular file found, as an install path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		exe, err := manifest.FindMainExecutable(root, cfg.Probe.ExecDirs)
		if err != nil {
			return fmt.Errorf("%s: %w", root, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), exe)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mainExeCmd)
}
