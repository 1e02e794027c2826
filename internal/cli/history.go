package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/output"
)

// NewUndoCommand creates the undo command
func NewUndoCommand() *cobra.Command {
	return newStepCommand("undo", "Revert the most recent operations",
		`Revert the last N committed operations, newest first. A failed step leaves
the history where it was, so it can be retried after the cause is fixed.`,
		output.ActionUndone, models.ErrNothingToUndo, (*engine.Engine).UndoLast)
}

// NewRedoCommand creates the redo command
func NewRedoCommand() *cobra.Command {
	return newStepCommand("redo", "Re-apply undone operations",
		`Re-apply the last N undone operations, oldest first. Committing a new
operation discards everything that could be redone.`,
		output.ActionRedone, models.ErrNothingToRedo, (*engine.Engine).RedoLast)
}

func newStepCommand(use, short, long string, action output.Action, exhausted error, step func(e *engine.Engine, ctx context.Context) (models.OperationRecord, error)) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			for i := 0; i < count; i++ {
				rec, err := step(a.engine, cmd.Context())
				if err != nil {
					// running out after at least one step is not an error
					if i > 0 && errors.Is(err, exhausted) {
						return nil
					}
					return err
				}
				if err := a.formatter.Record(action, rec); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of operations")

	return cmd
}

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded operations",
		Long:  `List the recorded operations, oldest first. Undone operations are marked and can be redone.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			records, cursor := a.engine.History()
			if last > 0 && len(records) > last {
				skip := len(records) - last
				records = records[skip:]
				cursor = max(cursor-skip, 0)
			}
			return a.formatter.History(records, cursor)
		},
	}

	cmd.Flags().IntVar(&last, "last", 0, "only show the last N records")

	return cmd
}

// NewTrashCommand creates the trash command
func NewTrashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trash",
		Short: "List entries held in the trash",
		Long: `List the deleted entries kept in the trash with the path they were
deleted from. Entries are released when their record leaves the history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.engine.Trash()
			if err != nil {
				return err
			}
			return a.formatter.Trash(entries)
		},
	}
}
