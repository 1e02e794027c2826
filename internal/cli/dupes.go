package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sdejongh/tfm/pkg/config"
	"github.com/sdejongh/tfm/pkg/dedupe"
	"github.com/sdejongh/tfm/pkg/models"
)

// DupesFlags holds dupes command flags
type DupesFlags struct {
	Strategy  string
	Apply     bool
	Recursive bool
	Verify    bool
	Algorithm string
	MinSize   int64
	Exclude   []string
}

// NewDupesCommand creates the dupes command
func NewDupesCommand() *cobra.Command {
	var flags DupesFlags

	cmd := &cobra.Command{
		Use:   "dupes DIR",
		Short: "Find and remove duplicate files",
		Long: `Group the files under DIR by content. Files are compared by size first,
then by a digest of their first bytes, then by a digest of their whole
content, so most files are never read in full.

With --strategy every group gets a file to keep: newest, oldest or
interactive (asks on the terminal). Nothing is removed without --apply;
removed files go to the trash and each removal can be undone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDupes(cmd, args[0], &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Strategy, "strategy", "s", "", "keep strategy: newest, oldest, largest, smallest, interactive")
	cmd.Flags().BoolVar(&flags.Apply, "apply", false, "move the duplicates to the trash")
	cmd.Flags().BoolVarP(&flags.Recursive, "recursive", "r", true, "descend into subdirectories")
	cmd.Flags().BoolVar(&flags.Verify, "verify", true, "compare duplicates byte-by-byte with the kept file before removing them")
	cmd.Flags().StringVar(&flags.Algorithm, "algorithm", "", "digest algorithm: sha256, md5 (default from config)")
	cmd.Flags().Int64Var(&flags.MinSize, "min-size", 0, "ignore files smaller than this many bytes")
	cmd.Flags().StringSliceVar(&flags.Exclude, "exclude", nil, "glob patterns to exclude")

	return cmd
}

func runDupes(cmd *cobra.Command, root string, flags *DupesFlags) error {
	ctx := cmd.Context()

	var strategy models.Strategy
	if flags.Strategy != "" {
		s, err := models.ParseStrategy(flags.Strategy)
		if err != nil {
			return err
		}
		strategy = s
	} else if flags.Apply {
		return fmt.Errorf("--apply needs a --strategy")
	}
	if strategy == models.StrategyInteractive && !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("the interactive strategy needs a terminal")
	}

	a, err := openApp(cmd, func(cfg *config.Config) {
		if flags.Algorithm != "" {
			cfg.Scan.Algorithm = flags.Algorithm
		}
		if cmd.Flags().Changed("verify") {
			cfg.Scan.Verify = flags.Verify
		}
		if cmd.Flags().Changed("min-size") {
			cfg.Scan.MinSize = flags.MinSize
		}
		if len(flags.Exclude) > 0 {
			cfg.Scan.Exclude = append(cfg.Scan.Exclude, flags.Exclude...)
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	recursive := a.cfg.Scan.Recursive
	if cmd.Flags().Changed("recursive") {
		recursive = flags.Recursive
	}

	opts, finish := a.progress("scanning")
	res := a.engine.StartScan(ctx, root, recursive, opts...).Await(context.Background())
	finish()
	if res.Err != nil {
		return res.Err
	}
	report := res.Value
	if report == nil {
		report = &models.ScanReport{Root: root, Recursive: recursive, Incomplete: true}
	}

	if strategy == "" || report.Incomplete {
		if err := a.formatter.ScanReport(report, nil); err != nil {
			return err
		}
		return statusError(report.Status())
	}

	decisions := make([]*dedupe.Decision, 0, len(report.Groups))
	shown := make([]models.ResolutionDecision, 0, len(report.Groups))
	for i, group := range report.Groups {
		d, err := dedupe.Resolve(group, strategy)
		if err != nil {
			return err
		}
		if d.Pending {
			if err := chooseKeep(d, i+1, len(report.Groups)); err != nil {
				return err
			}
		}
		shown = append(shown, d.ResolutionDecision)
		if !d.Pending {
			decisions = append(decisions, d)
		}
	}

	if err := a.formatter.ScanReport(report, shown); err != nil {
		return err
	}
	if !flags.Apply {
		return statusError(report.Status())
	}

	opts, finish = a.progress("removing")
	return a.awaitBulk(a.engine.StartResolve(ctx, decisions, opts...), finish)
}

// skipGroup is the option value that leaves a group undecided
const skipGroup = ""

// chooseKeep asks on the terminal which member of d to keep. Skipping
// leaves d pending; aborting the prompt cancels the command.
func chooseKeep(d *dedupe.Decision, n, total int) error {
	keep := skipGroup
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Group %d of %d: keep which file?", n, total)).
				Description(fmt.Sprintf("%d identical files, %d bytes each; the others go to the trash", len(d.Group.Members), d.Group.Signature.Size)).
				Options(keepOptions(d.Group)...).
				Value(&keep),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return context.Canceled
		}
		return fmt.Errorf("prompt failed: %w", err)
	}
	if keep == skipGroup {
		return nil
	}
	return d.Choose(keep)
}

// keepOptions lists the members of group, then the skip choice
func keepOptions(group *models.DuplicateGroup) []huh.Option[string] {
	options := make([]huh.Option[string], 0, len(group.Members)+1)
	for _, m := range group.Members {
		label := m.ModTime.Local().Format("2006-01-02 15:04") + "  " + m.Path
		options = append(options, huh.NewOption(label, m.Path))
	}
	return append(options, huh.NewOption("Skip this group", skipGroup))
}
