package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sobundle/internal/log"
	"github.com/albertocavalcante/sobundle/internal/runner"
	"github.com/albertocavalcante/sobundle/pkg/closure"
	"github.com/albertocavalcante/sobundle/pkg/config"
	"github.com/albertocavalcante/sobundle/pkg/elfclass"
	"github.com/albertocavalcante/sobundle/pkg/ldd"
	"github.com/albertocavalcante/sobundle/pkg/manifest"
	"github.com/albertocavalcante/sobundle/pkg/pathres"
	"github.com/albertocavalcante/sobundle/pkg/stage"
)

var gatherFlags struct {
	output          string
	exclude         []string
	json            bool
	ldd             string
	objdump         string
	file            string
	toolsPath       string
	maxSymlinkDepth int
	manifestName    string
	noHashes        bool
	keepEnv         bool
}

var gatherCmd = &cobra.Command{
	Use:   "gather BINARY -o DIR",
	Short: "Copy a binary and its shared-library closure into DIR",
	Long: `Gathers BINARY and every shared library it transitively requires
into DIR, each at DIR concatenated with its absolute path. Symlinked
libraries are copied under both the link path and the target path.

Dependencies are listed with ldd. A dependency that ldd cannot list but
which declares NEEDED entries aborts the run; no manifest is written then.
Libraries reported but missing on disk are skipped with a warning.

Only one gather may target DIR at a time; a lock file DIR.lock enforces it.`,
	Args: cobra.ExactArgs(1),
	RunE: runGather,
}

func init() {
	f := gatherCmd.Flags()
	f.StringVarP(&gatherFlags.output, "output", "o", "", "Output directory (required)")
	f.StringSliceVar(&gatherFlags.exclude, "exclude", nil,
		"Glob of library paths to leave out (repeatable, ** allowed)")
	f.BoolVar(&gatherFlags.json, "json", false, "Print the summary as JSON")
	f.StringVar(&gatherFlags.ldd, "ldd", "", "ldd program to run")
	f.StringVar(&gatherFlags.objdump, "objdump", "", "objdump program for NEEDED checks (default: built-in ELF reader)")
	f.StringVar(&gatherFlags.file, "file", "", "file program for input validation (default: built-in ELF reader)")
	f.StringVar(&gatherFlags.toolsPath, "tools-path", "", "Search path for ldd/objdump/file instead of $PATH")
	f.IntVar(&gatherFlags.maxSymlinkDepth, "max-symlink-depth", 0, "Symlink hops allowed while resolving a path")
	f.StringVar(&gatherFlags.manifestName, "manifest-name", "", "Manifest file name inside DIR")
	f.BoolVar(&gatherFlags.noHashes, "no-hashes", false, "Omit content hashes from the manifest")
	f.BoolVar(&gatherFlags.keepEnv, "keep-env", false, "Run ldd with LD_PRELOAD and LD_LIBRARY_PATH intact")
	_ = gatherCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(gatherCmd)
}

// GatherOutput is the JSON output format for sobundle gather.
type GatherOutput struct {
	Input          string            `json:"input"`
	Output         string            `json:"output"`
	Manifest       string            `json:"manifest"`
	Files          int               `json:"files"`
	Copied         int               `json:"copied"`
	Unchanged      int               `json:"unchanged"`
	Bytes          int64             `json:"bytes"`
	MainExecutable string            `json:"main_executable,omitempty"`
	Static         []string          `json:"static,omitempty"`
	Excluded       []string          `json:"excluded,omitempty"`
	Missing        []closure.Missing `json:"missing,omitempty"`
}

func applyGatherFlags(cfg *config.Config) {
	if gatherFlags.ldd != "" {
		cfg.Tools.Ldd = gatherFlags.ldd
	}
	if gatherFlags.objdump != "" {
		cfg.Tools.Objdump = gatherFlags.objdump
	}
	if gatherFlags.file != "" {
		cfg.Tools.File = gatherFlags.file
	}
	if gatherFlags.toolsPath != "" {
		cfg.Tools.Path = gatherFlags.toolsPath
	}
	if gatherFlags.maxSymlinkDepth > 0 {
		cfg.Gather.MaxSymlinkDepth = gatherFlags.maxSymlinkDepth
	}
	cfg.Gather.Exclude = append(cfg.Gather.Exclude, gatherFlags.exclude...)
	if gatherFlags.manifestName != "" {
		cfg.Manifest.Name = gatherFlags.manifestName
	}
	if gatherFlags.noHashes {
		off := false
		cfg.Manifest.Hashes = &off
	}
	if gatherFlags.keepEnv {
		off := false
		cfg.Gather.CleanEnv = &off
	}
}

func runGather(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(applyGatherFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := Gather(ctx, cfg, args[0], gatherFlags.output)
	if err != nil {
		return err
	}

	if gatherFlags.json {
		return outputJSON(cmd.OutOrStdout(), out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Gathered %d files into %s (%d copied, %d unchanged, %d bytes)\n",
		out.Files, out.Output, out.Copied, out.Unchanged, out.Bytes)
	if len(out.Missing) > 0 {
		fmt.Fprintf(w, "Skipped %d missing libraries\n", len(out.Missing))
	}
	if out.MainExecutable != "" {
		fmt.Fprintf(w, "Main executable: %s\n", out.MainExecutable)
	}
	fmt.Fprintf(w, "Manifest: %s\n", out.Manifest)
	return nil
}

// Gather runs one closure walk of input into outDir and writes the
// manifest. The output directory is locked for the duration.
func Gather(ctx context.Context, cfg *config.Config, input, outDir string) (*GatherOutput, error) {
	logger := log.Component("gather")

	root, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}
	lock, err := stage.Acquire(root)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release lock", "path", stage.LockPath(root), "error", err)
		}
	}()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	// A manifest from an earlier run must not outlive a failed one.
	if err := os.Remove(filepath.Join(root, cfg.Manifest.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale manifest: %w", err)
	}

	run := runner.New(
		runner.WithSearchPath(cfg.Tools.Path),
		runner.WithCleanEnv(cfg.CleanEnvEnabled()),
	)
	inspector := elfclass.NewTools(run, cfg.Tools.File, cfg.Tools.Objdump)
	copier, err := stage.NewCopier(root)
	if err != nil {
		return nil, err
	}

	walker := &closure.Walker{
		Inspector: inspector,
		Extractor: ldd.NewExtractor(run, cfg.Tools.Ldd, inspector),
		Resolver:  pathres.New(cfg.Gather.MaxSymlinkDepth),
		Copier:    copier,
		Exclude:   cfg.Gather.Exclude,
	}
	report, err := walker.Run(ctx, input)
	if err != nil {
		return nil, err
	}

	mw := &manifest.Writer{
		Root:     root,
		Name:     cfg.Manifest.Name,
		Hashes:   cfg.HashesEnabled(),
		ExecDirs: cfg.Probe.ExecDirs,
	}
	m, err := mw.Write(ctx, report.Input)
	if err != nil {
		return nil, err
	}

	logger.Info("gather complete", "input", report.Input, "files", len(report.Files), "visited", len(report.Visited))
	return &GatherOutput{
		Input:          report.Input,
		Output:         root,
		Manifest:       mw.Path(),
		Files:          len(report.Files),
		Copied:         report.Copied,
		Unchanged:      report.Unchanged,
		Bytes:          copier.Stats().Bytes,
		MainExecutable: m.MainExecutable,
		Static:         report.Static,
		Excluded:       report.Excluded,
		Missing:        report.Missing,
	}, nil
}
