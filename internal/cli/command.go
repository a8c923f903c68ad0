package cli

import (
	"fmt"
	"slices"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idelchi/sizehist/internal/config"
)

// CLI represents the command-line interface.
type CLI struct {
	version string
}

// New creates a new CLI instance with the given version.
func New(version string) CLI {
	return CLI{version: version}
}

// Options holds presentation settings that are not part of the persisted configuration.
type Options struct {
	// ConfigPath is an explicit config file.
	ConfigPath string
	// Output represents output format (table or json).
	Output string
	// Dimension selects the table columns (count, size or both).
	Dimension string
	// Debug indicates whether debug output is enabled.
	Debug bool
	// Version indicates whether to show version and exit.
	Version bool
}

//nolint:gochecknoglobals // Config constant
var (
	allowedOutputs    = []string{"table", "json"}
	allowedDimensions = []string{"count", "size", "both"}
)

// Execute runs the CLI with the process arguments.
func (c CLI) Execute() error {
	return c.Command().Execute()
}

// Command builds the root command.
func (c CLI) Command() *cobra.Command {
	var options Options

	v := config.New()

	cmd := &cobra.Command{
		Use:   "sizehist [flags] [name=]dir...",
		Short: "Logarithmic histogram of file sizes",
		Long: heredoc.Doc(`
			sizehist counts the files below one or more directories ("images") per
			decade of file size (1 B-10 B, 10 B-100 B, ...) and reports per bucket the
			file count and total size together with cumulative and relative cumulative
			series.

			The result is cached as JSON. When the cache file exists it is loaded
			instead of scanning; use --refresh to rescan.

			Images are taken from the positional arguments, or from the 'images' list
			of the config file (sizehist.yaml in the working directory by default).
			Every flag can also be set through the environment, e.g. SIZEHIST_CACHE.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Version {
				fmt.Fprintln(cmd.OutOrStdout(), c.version)

				return nil
			}

			cfg, err := resolve(v, options, args)
			if err != nil {
				return err
			}

			return logic(cmd, *cfg, options)
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false

	flags.StringVar(&options.ConfigPath, "config", "", "Config file (default ./sizehist.yaml if present)")
	flags.String(config.KeyCache, config.DefaultCachePath, "Cache file to load from or write to")
	flags.StringSliceP(config.KeyExclude, "e", config.DefaultExcludes, "Regex patterns to exclude")
	flags.Bool(config.KeyRefresh, false, "Ignore an existing cache and rescan")
	flags.String(config.KeyOnCorrupt, "fail", "What to do with a corrupt cache: fail or rescan")
	flags.Int(config.KeyWorkers, 0, "Number of walker goroutines (0=default)")
	flags.StringVarP(&options.Output, "output", "o", "table", "Output format: json or table")
	flags.StringVarP(&options.Dimension, "dimension", "d", "both", "Table columns: count, size or both")
	flags.BoolVar(&options.Debug, "debug", false, "Enable debug output")
	flags.BoolVarP(&options.Version, "version", "v", false, "Show version and exit")

	for _, key := range []string{
		config.KeyCache,
		config.KeyExclude,
		config.KeyRefresh,
		config.KeyOnCorrupt,
		config.KeyWorkers,
	} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	return cmd
}

// resolve validates presentation options and merges configuration with positional images.
func resolve(v *viper.Viper, options Options, args []string) (*config.Config, error) {
	if !slices.Contains(allowedOutputs, options.Output) {
		return nil, fmt.Errorf("invalid output format %q: must be one of %v", options.Output, allowedOutputs)
	}

	if !slices.Contains(allowedDimensions, options.Dimension) {
		return nil, fmt.Errorf("invalid dimension %q: must be one of %v", options.Dimension, allowedDimensions)
	}

	cfg, err := config.Load(v, options.ConfigPath)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.Images = make([]config.Image, 0, len(args))

		for _, arg := range args {
			image, err := config.ParseImage(arg)
			if err != nil {
				return nil, err
			}

			cfg.Images = append(cfg.Images, image)
		}
	}

	return cfg, nil
}
