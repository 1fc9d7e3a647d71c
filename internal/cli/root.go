// Package cli implements the kerf command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/chazu/kerf/pkg/config"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/studio"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config  string
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the kerf CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kerf",
		Short: "kerf - parametric solid modeling",
		Long: `Build parts from modeling scripts: sketches solved under constraints,
turned into solids by a replayable feature history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to a TOML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewMeshCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewRevisionsCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// studio loads the configuration and returns a pipeline logging to errw.
// --verbose lowers the log level to debug whatever the config says.
func (o *RootOptions) studio(errw io.Writer) (*studio.Studio, *slog.Logger, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	log := cfg.Logger(errw)
	history.SetLogger(log)
	// Sequence identifiers make a script capture the same record on every
	// run, so saving unchanged source does not add a revision.
	seq := func() ident.Generator { return ident.NewSequence() }
	return studio.New(cfg, studio.WithLogger(log), studio.WithIDs(seq)), log, nil
}

func readScript(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read script", err)
	}
	return string(src), nil
}
