package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/models"
)

// SearchFlags holds the flags of the search command
type SearchFlags struct {
	Name          string
	Content       string
	MinSize       string
	MaxSize       string
	CaseSensitive bool
	Recursive     bool
}

// NewSearchCommand creates the search command
func NewSearchCommand() *cobra.Command {
	flags := &SearchFlags{}

	cmd := &cobra.Command{
		Use:   "search DIR",
		Short: "Find files by name, content or size",
		Long: `Search DIR for entries matching every given criterion.

--name takes a glob ("*.log", "report-??.pdf"); a pattern holding a "/"
is matched against the path relative to DIR, so "**" spans directories.
--content looks for text inside files and skips binary files. Sizes
accept units such as 10K, 5MB or 1GiB. Matching is case-insensitive
unless --case-sensitive is set. The trash is never searched.`,
		Example: `  tfm search ~/docs --name '*.pdf' -r
  tfm search . --content TODO --name '**/*.go'
  tfm search /var/log --min-size 100MB -r`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.Name, "name", "", "glob the entry name must match")
	cmd.Flags().StringVar(&flags.Content, "content", "", "text the file must contain")
	cmd.Flags().StringVar(&flags.MinSize, "min-size", "", "smallest file size to match")
	cmd.Flags().StringVar(&flags.MaxSize, "max-size", "", "largest file size to match")
	cmd.Flags().BoolVar(&flags.CaseSensitive, "case-sensitive", false, "match names and content case-sensitively")
	cmd.Flags().BoolVarP(&flags.Recursive, "recursive", "r", false, "descend into subdirectories")

	return cmd
}

func runSearch(cmd *cobra.Command, dir string, flags *SearchFlags) error {
	req := engine.SearchRequest{
		Dir:           dir,
		Name:          flags.Name,
		Content:       flags.Content,
		CaseSensitive: flags.CaseSensitive,
		Recursive:     flags.Recursive,
	}
	var err error
	if req.MinSize, err = parseSize("min-size", flags.MinSize); err != nil {
		return err
	}
	if req.MaxSize, err = parseSize("max-size", flags.MaxSize); err != nil {
		return err
	}

	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, finish := a.progress("searching")
	h, err := a.engine.Search(cmd.Context(), req, opts...)
	if err != nil {
		finish()
		return err
	}
	res := h.Await(context.Background())
	finish()
	if res.Err != nil {
		return res.Err
	}

	report := res.Value
	if report == nil {
		report = &models.SearchReport{Root: dir, Matches: []models.FileEntry{}}
	}
	if res.Incomplete {
		report.Incomplete = true
	}
	if err := a.formatter.SearchReport(report); err != nil {
		return err
	}
	return statusError(report.Status())
}

// parseSize reads a size flag; empty means no bound
func parseSize(flag, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q: %w", flag, value, err)
	}
	return int64(n), nil
}
