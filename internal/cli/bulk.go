package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/tasks"
)

// NewBatchRenameCommand creates the batch-rename command
func NewBatchRenameCommand() *cobra.Command {
	var req engine.BatchRenameRequest

	cmd := &cobra.Command{
		Use:   "batch-rename DIR PATTERN REPLACEMENT",
		Short: "Rename many files by text replacement",
		Long: `Replace every occurrence of PATTERN in the names of the files in DIR.
Names that would collide or become invalid are skipped. Each rename is
recorded on its own and can be undone.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Dir, req.Pattern, req.Replacement = args[0], args[1], args[2]
			return runBulk(cmd, "renaming", func(a *app, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
				return a.engine.BatchRename(cmd.Context(), req, opts...)
			})
		},
	}

	cmd.Flags().BoolVarP(&req.Recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "show the renames without performing them")

	return cmd
}

// NewOrganizeCommand creates the organize command
func NewOrganizeCommand() *cobra.Command {
	var (
		req engine.OrganizeRequest
		by  string
	)

	cmd := &cobra.Command{
		Use:   "organize DIR",
		Short: "Sort files into folders by type or date",
		Long: `Sort the files directly inside DIR into sub-folders of --target.
--by type uses the extension categories of the configuration; --by date
uses the modification time formatted with --layout (Go time layout,
default "2006/01"). Files are copied unless --move is set. A file whose
name is taken in its folder gets a numbered name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Dir = args[0]
			var start func(a *app, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error)
			switch by {
			case "type":
				start = func(a *app, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
					return a.engine.OrganizeByType(cmd.Context(), req, opts...)
				}
			case "date":
				start = func(a *app, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
					return a.engine.OrganizeByDate(cmd.Context(), req, opts...)
				}
			default:
				return fmt.Errorf("invalid --by value: %s (valid: type, date)", by)
			}
			return runBulk(cmd, "organizing", start)
		},
	}

	cmd.Flags().StringVar(&by, "by", "type", "grouping: type, date")
	cmd.Flags().StringVarP(&req.Target, "target", "t", "", "directory receiving the folders (default: DIR)")
	cmd.Flags().BoolVar(&req.Move, "move", false, "move files instead of copying them")
	cmd.Flags().StringVar(&req.DateLayout, "layout", engine.DefaultDateLayout, "folder layout for --by date")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "show the plan without performing it")

	return cmd
}

// NewCleanupCommand creates the cleanup command
func NewCleanupCommand() *cobra.Command {
	var (
		req  engine.CleanupRequest
		days int
	)

	cmd := &cobra.Command{
		Use:   "cleanup DIR",
		Short: "Move old files to the trash",
		Long:  `Move the files in DIR that were not modified for --days days to the trash.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			req.Dir = args[0]
			req.OlderThan = time.Duration(days) * 24 * time.Hour
			return runBulk(cmd, "cleaning", func(a *app, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
				return a.engine.CleanupOlderThan(cmd.Context(), req, opts...)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "age in days")
	cmd.Flags().BoolVarP(&req.Recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "show the files without deleting them")

	return cmd
}

// runBulk opens the engine, starts a bulk task and reports it
func runBulk(cmd *cobra.Command, label string, start func(a *app, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error)) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, finish := a.progress(label)
	h, err := start(a, opts...)
	if err != nil {
		finish()
		return err
	}
	return a.awaitBulk(h, finish)
}
