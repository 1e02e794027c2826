package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the tfm command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tfm",
		Short: "Transactional file manager",
		Long: `tfm copies, moves, renames, deletes and creates files and directories
while recording every change, so each one can be undone and redone.
Deleted entries are kept in a trash until their record leaves the history.
It also finds duplicate files by content and organizes directories in bulk.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(NewCopyCommand())
	rootCmd.AddCommand(NewMoveCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewRenameCommand())
	rootCmd.AddCommand(NewMkdirCommand())
	rootCmd.AddCommand(NewUndoCommand())
	rootCmd.AddCommand(NewRedoCommand())
	rootCmd.AddCommand(NewHistoryCommand())
	rootCmd.AddCommand(NewTrashCommand())
	rootCmd.AddCommand(NewDupesCommand())
	rootCmd.AddCommand(NewBatchRenameCommand())
	rootCmd.AddCommand(NewOrganizeCommand())
	rootCmd.AddCommand(NewCleanupCommand())
	rootCmd.AddCommand(NewSearchCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
