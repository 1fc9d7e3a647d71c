package cli

import (
	"github.com/spf13/cobra"

	"github.com/chazu/kerf/pkg/persist"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("kerf version %s (project format %d)\n", version, persist.Version)
		},
	}
}
