package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/tfm/pkg/config"
	"github.com/sdejongh/tfm/pkg/events"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/output"
)

// conflictFlags are shared by the commands that write a destination
type conflictFlags struct {
	Overwrite  bool
	OnConflict string
}

func (f *conflictFlags) add(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.Overwrite, "overwrite", false, "replace an existing destination (the old entry goes to the trash)")
	cmd.Flags().StringVar(&f.OnConflict, "on-conflict", "fail", "when the destination exists: fail, overwrite, skip, keep-both")
}

func (f *conflictFlags) apply(req *models.OperationRequest) error {
	req.Overwrite = f.Overwrite
	req.OnConflict = models.ConflictResolution(f.OnConflict)
	if !req.OnConflict.Valid() {
		return fmt.Errorf("invalid conflict resolution: %s (valid: fail, overwrite, skip, keep-both)", f.OnConflict)
	}
	return nil
}

// NewCopyCommand creates the cp command
func NewCopyCommand() *cobra.Command {
	return newTransferCommand(models.KindCopy, "cp SOURCE DEST", "Copy a file or directory",
		`Copy a file or directory tree to DEST. Undo removes the copy.`)
}

// NewMoveCommand creates the mv command
func NewMoveCommand() *cobra.Command {
	return newTransferCommand(models.KindMove, "mv SOURCE DEST", "Move a file or directory",
		`Move a file or directory tree to DEST. Moves across volumes copy, verify
and then remove the source. Undo moves the entry back.`)
}

func newTransferCommand(kind models.OperationKind, use, short, long string) *cobra.Command {
	var flags conflictFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.OperationRequest{Kind: kind, Source: args[0], Dest: args[1]}
			if err := flags.apply(&req); err != nil {
				return err
			}
			return submit(cmd, nil, req)
		},
	}
	flags.add(cmd)

	return cmd
}

// NewRenameCommand creates the rename command
func NewRenameCommand() *cobra.Command {
	var flags conflictFlags

	cmd := &cobra.Command{
		Use:   "rename PATH NEW_NAME",
		Short: "Rename a file or directory in place",
		Long:  `Give PATH a new base name inside the same directory. NEW_NAME must not contain a path separator.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.OperationRequest{Kind: models.KindRename, Source: args[0], NewName: args[1]}
			if err := flags.apply(&req); err != nil {
				return err
			}
			return submit(cmd, nil, req)
		},
	}
	flags.add(cmd)

	return cmd
}

// NewDeleteCommand creates the rm command
func NewDeleteCommand() *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "rm PATH...",
		Short: "Move files or directories to the trash",
		Long: `Move each PATH into the trash so the delete can be undone.
With --permanent, entries that cannot be moved into the trash (for example
on another volume) are removed for good; such deletes cannot be undone.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]models.OperationRequest, len(args))
			for i, path := range args {
				reqs[i] = models.OperationRequest{Kind: models.KindDelete, Source: path, AllowPermanent: permanent}
			}
			return submit(cmd, nil, reqs...)
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "allow irreversible deletes when the trash cannot be used")

	return cmd
}

// NewMkdirCommand creates the mkdir command
func NewMkdirCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "mkdir PATH...",
		Short: "Create directories",
		Long: `Create each directory with its missing parents. An existing directory is
accepted and recorded as already existing unless --strict is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]models.OperationRequest, len(args))
			for i, path := range args {
				reqs[i] = models.OperationRequest{Kind: models.KindCreateDirectory, Source: path}
			}
			mutate := func(cfg *config.Config) {
				if cmd.Flags().Changed("strict") {
					cfg.Engine.StrictMkdir = strict
				}
			}
			return submit(cmd, mutate, reqs...)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when a directory already exists")

	return cmd
}

// submit runs requests in order and stops at the first failure. What was
// committed before the failure stays in the history.
func submit(cmd *cobra.Command, mutate func(cfg *config.Config), reqs ...models.OperationRequest) error {
	a, err := openApp(cmd, mutate)
	if err != nil {
		return err
	}
	defer a.Close()

	// an overwrite commits the replacement delete as a record of its own
	unsubscribe := a.engine.Subscribe(events.SubscriberFunc(func(ctx context.Context, ev events.Event) {
		if ev.Type == events.Committed {
			a.formatter.Record(output.ActionCommitted, ev.Record)
		}
	}))
	defer unsubscribe()

	for _, req := range reqs {
		if _, err := a.engine.Submit(cmd.Context(), req); err != nil {
			return err
		}
	}
	return nil
}
