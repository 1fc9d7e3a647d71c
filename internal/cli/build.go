package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/studio"
	"github.com/chazu/kerf/pkg/tessellate"
)

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build <script>",
		Short: "Evaluate a modeling script and rebuild its history",
		Long: `Evaluate a modeling script, rebuild every feature and print the
rebuild report. The exit status is 1 when the script or any feature fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, args[0], cmd)
		},
	}
}

func runBuild(opts *RootOptions, path string, cmd *cobra.Command) error {
	src, err := readScript(path)
	if err != nil {
		return err
	}
	st, log, err := opts.studio(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	log.Debug("building", "script", path, "kernel", st.Config().Kernel.Backend)
	res := st.Evaluate(cmd.Context(), src, false)

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		writeResult(cmd.OutOrStdout(), res)
	}
	return resultError(res)
}

// MeshOptions holds flags for the mesh command.
type MeshOptions struct {
	*RootOptions
	Output string
}

// meshFile is the document written by the mesh command.
type meshFile struct {
	Stats  tessellate.Stats   `json:"stats"`
	Meshes []studio.MeshData `json:"meshes"`
}

// NewMeshCommand creates the mesh command.
func NewMeshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MeshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mesh <script>",
		Short: "Tessellate the bodies built by a modeling script",
		Long: `Evaluate and rebuild a modeling script, then write one triangle mesh
per visible body as JSON. Without --output the meshes go to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMesh(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runMesh(opts *MeshOptions, path string, cmd *cobra.Command) error {
	src, err := readScript(path)
	if err != nil {
		return err
	}
	st, log, err := opts.studio(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	res := st.Evaluate(cmd.Context(), src, true)
	if len(res.Errors) > 0 {
		writeResult(cmd.ErrOrStderr(), res)
		return resultError(res)
	}

	meshes := make([]*kernel.Mesh, len(res.Meshes))
	for i, m := range res.Meshes {
		meshes[i] = &kernel.Mesh{Vertices: m.Vertices, Normals: m.Normals, Indices: m.Indices, Feature: m.Feature}
	}
	stats := tessellate.Summarize(meshes)
	log.Debug("tessellated", "meshes", stats.Meshes, "triangles", stats.Triangles)

	out := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeJSON(out, meshFile{Stats: stats, Meshes: res.Meshes}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write meshes", err)
	}

	if opts.Output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d mesh(es), %d triangles to %s\n",
			stats.Meshes, stats.Triangles, opts.Output)
	}
	for _, p := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", p.Feature, p.Message)
	}
	return resultError(res)
}
