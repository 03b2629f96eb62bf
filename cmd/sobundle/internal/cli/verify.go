package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sobundle/pkg/manifest"
)

var verifyFlags struct {
	name string
	json bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify DIR",
	Short: "Check a tree against its manifest",
	Long: `Compares the files under DIR with its manifest and reports files
added, modified or deleted since the manifest was written. Content is
compared only when the manifest recorded hashes.

Exits with status 1 when anything differs.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlags.name, "manifest-name", "", "Manifest file name inside DIR")
	verifyCmd.Flags().BoolVar(&verifyFlags.json, "json", false, "Output as JSON")

	rootCmd.AddCommand(verifyCmd)
}

// VerifyOutput is the JSON output format for sobundle verify.
type VerifyOutput struct {
	OK       bool     `json:"ok"`
	Source   string   `json:"source"`
	Added    []string `json:"added,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	name := cfg.Manifest.Name
	if verifyFlags.name != "" {
		name = verifyFlags.name
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	cs, m, err := manifest.Verify(context.Background(), root, name)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if verifyFlags.json {
		if err := outputJSON(w, VerifyOutput{
			OK:       cs.IsEmpty(),
			Source:   m.Source,
			Added:    cs.Added,
			Modified: cs.Modified,
			Deleted:  cs.Deleted,
		}); err != nil {
			return err
		}
	} else if cs.IsEmpty() {
		fmt.Fprintf(w, "%s matches its manifest (%d files)\n", root, len(m.Entries))
	} else {
		for _, f := range cs.Added {
			fmt.Fprintf(w, "  + %s\n", f)
		}
		for _, f := range cs.Modified {
			fmt.Fprintf(w, "  ~ %s\n", f)
		}
		for _, f := range cs.Deleted {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}

	if !cs.IsEmpty() {
		return fmt.Errorf("%d files differ from the manifest", cs.TotalChanges())
	}
	return nil
}
