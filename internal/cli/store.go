package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chazu/kerf/pkg/persist"
	"github.com/chazu/kerf/pkg/store"
	"github.com/chazu/kerf/pkg/studio"
)

// StoreOptions holds the flags shared by commands that use the revision
// database.
type StoreOptions struct {
	*RootOptions
	Database string
	Project  string
}

func (o *StoreOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&o.Project, "name", "", "project name (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("name")
}

func (o *StoreOptions) open(log *slog.Logger) (*store.Store, error) {
	log.Debug("opening database", "path", o.Database)
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store, log *slog.Logger) {
	if err := st.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "not found", err)
	}
	return WrapExitError(ExitCommandError, "database error", err)
}

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	StoreOptions
	Message string
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "save <script>",
		Short: "Build a modeling script and store it as a new revision",
		Long: `Build a modeling script and store the resulting project as the next
revision of --name. Saving content identical to the latest revision is a
no-op. Scripts that fail to evaluate are not saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "revision message")

	return cmd
}

func runSave(opts *SaveOptions, path string, cmd *cobra.Command) error {
	src, err := readScript(path)
	if err != nil {
		return err
	}
	pipeline, log, err := opts.studio(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	res := pipeline.Evaluate(cmd.Context(), src, false)
	if res.Document == nil {
		writeResult(cmd.ErrOrStderr(), res)
		return resultError(res)
	}

	st, err := opts.open(log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	rev, err := st.Commit(cmd.Context(), opts.Project, opts.Message, studio.Capture(res.Document))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to save revision", err)
	}
	log.Info("revision saved", "project", rev.Project, "number", rev.Number, "digest", rev.Digest[:12])

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rev)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s revision %d (%d features)\n", rev.Project, rev.Number, rev.Features)
	for _, p := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", p.Feature, p.Message)
	}
	return nil
}

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	StoreOptions
	Revision int
	Export   string
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Restore a stored revision and rebuild it",
		Long: `Restore a revision of --name from the database and rebuild it with the
kernel it was saved with. --export also writes the project to a JSON or
YAML file, chosen by extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVar(&opts.Revision, "rev", 0, "revision number (0 for latest)")
	cmd.Flags().StringVar(&opts.Export, "export", "", "write the project to this file")

	return cmd
}

func runLoad(opts *LoadOptions, cmd *cobra.Command) error {
	pipeline, log, err := opts.studio(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	st, err := opts.open(log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	rec, rev, err := st.Get(cmd.Context(), opts.Project, opts.Revision)
	if err != nil {
		return notFound(err)
	}
	log.Debug("revision loaded", "project", rev.Project, "number", rev.Number, "version", rev.Version)

	if opts.Export != "" {
		if err := persist.Save(opts.Export, rec); err != nil {
			return WrapExitError(ExitCommandError, "failed to export project", err)
		}
	}

	res, err := pipeline.Restore(cmd.Context(), rec, false)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to restore revision", err)
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), struct {
			Revision store.Revision `json:"revision"`
			*studio.Result
		}{rev, res}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s revision %d\n", rev.Project, rev.Number)
		writeResult(cmd.OutOrStdout(), res)
	}
	return resultError(res)
}

// NewRevisionsCommand creates the revisions command.
func NewRevisionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "List the stored revisions of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevisions(opts, cmd)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runRevisions(opts *StoreOptions, cmd *cobra.Command) error {
	_, log, err := opts.studio(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	st, err := opts.open(log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	revs, err := st.List(cmd.Context(), opts.Project)
	if err != nil {
		return notFound(err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), revs)
	}
	writeRevisions(cmd.OutOrStdout(), revs)
	return nil
}
