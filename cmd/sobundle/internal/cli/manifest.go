package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sobundle/pkg/config"
	"github.com/albertocavalcante/sobundle/pkg/manifest"
	"github.com/albertocavalcante/sobundle/pkg/stage"
)

var manifestFlags struct {
	source   string
	name     string
	noHashes bool
}

var manifestCmd = &cobra.Command{
	Use:   "manifest DIR",
	Short: "Regenerate the manifest of an existing tree",
	Long: `Lists every file under DIR and rewrites its manifest.

The source binary recorded in the header is taken from --source, or from
the existing manifest when the flag is omitted.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestFlags.source, "source", "", "Source binary recorded in the header")
	manifestCmd.Flags().StringVar(&manifestFlags.name, "manifest-name", "", "Manifest file name inside DIR")
	manifestCmd.Flags().BoolVar(&manifestFlags.noHashes, "no-hashes", false, "Omit content hashes")

	rootCmd.AddCommand(manifestCmd)
}

func applyManifestFlags(cfg *config.Config) {
	if manifestFlags.name != "" {
		cfg.Manifest.Name = manifestFlags.name
	}
	if manifestFlags.noHashes {
		off := false
		cfg.Manifest.Hashes = &off
	}
}

func runManifest(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(applyManifestFlags)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	source := manifestFlags.source
	if source == "" {
		prev, err := manifest.ReadFile(filepath.Join(root, cfg.Manifest.Name))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("no existing manifest in %s; pass --source", root)
		case err != nil:
			return err
		}
		source = prev.Source
	}

	lock, err := stage.Acquire(root)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	w := &manifest.Writer{
		Root:     root,
		Name:     cfg.Manifest.Name,
		Hashes:   cfg.HashesEnabled(),
		ExecDirs: cfg.Probe.ExecDirs,
	}
	m, err := w.Write(context.Background(), source)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d entries)\n", w.Path(), len(m.Entries))
	return nil
}
