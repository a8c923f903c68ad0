package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/idelchi/sizehist/internal/config"
	"github.com/idelchi/sizehist/internal/registry"
	"github.com/idelchi/sizehist/internal/scan"
)

// newLogger returns the logger shared by all components.
func newLogger(out io.Writer, debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: !debug})
	log.SetLevel(logrus.WarnLevel)

	if debug {
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && isatty.IsTerminal(f.Fd())
}

func logic(cmd *cobra.Command, cfg config.Config, options Options) error {
	stderr := cmd.ErrOrStderr()
	log := newLogger(stderr, options.Debug)

	excludes, err := scan.CompileExcludes(cfg.Excludes)
	if err != nil {
		return err
	}

	walker := &scan.Walker{
		Excludes: excludes,
		Workers:  cfg.Workers,
		Log:      log,
	}

	enableProgress := options.Output != "json" && !options.Debug && isTerminal(stderr)

	if enableProgress {
		// Hide cursor for in-place updates; restore on exit.
		fmt.Fprint(stderr, "\033[?25l")
		defer fmt.Fprint(stderr, "\033[?25h")

		walker.Progress = func(files, bytes int64) {
			msg := fmt.Sprintf("Scanning… %d files, %s",
				files, humanize.IBytes(uint64(bytes))) //nolint:gosec // Bytes is always positive
			fmt.Fprintf(stderr, "\r\033[2K%s\r", msg)
		}
	}

	images := make([]registry.Image, 0, len(cfg.Images))
	for _, image := range cfg.Images {
		images = append(images, registry.Image{Name: image.Name, Root: image.Root})
	}

	reg := registry.New(walker, log)

	collection, err := reg.Initialize(cmd.Context(), registry.Options{
		CachePath: cfg.CachePath,
		Images:    images,
		Refresh:   cfg.Refresh,
		OnCorrupt: registry.CorruptPolicy(cfg.OnCorrupt),
	})

	// Clear the status line
	if enableProgress {
		fmt.Fprint(stderr, "\r\033[2K\r")
	}

	if err != nil {
		return err
	}

	report := BuildReport(collection, log)

	switch options.Output {
	case "json":
		return PrintJSON(report, cmd.OutOrStdout())
	case "table":
		return PrintTable(report, options.Dimension, cmd.OutOrStdout())
	default:
		return fmt.Errorf("unknown output format: %s", options.Output)
	}
}
