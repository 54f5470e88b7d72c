package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stamzoek/stamzoek/internal/ingest"
)

type checkOptions struct {
	repair bool
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify index consistency",
		Long: `Check compares the metadata database against the lexical, vector
and phonetic indexes. Metadata is the source of truth: entries present
in an index but absent from metadata are orphans, chunks without their
computed signatures are missing. With --repair, orphans are removed and
missing lexical and phonetic signatures are rebuilt from the stored
chunk text; missing vectors are queued for the next ingest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.repair, "repair", false, "Repair the issues found")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *checkOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	meta, lexical, vector, paths, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores(meta, lexical, vector, logger)

	checker := ingest.NewChecker(meta, lexical, vector, logger)
	result, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	if result.Consistent() {
		fmt.Fprintf(out, "Consistent: %d chunks checked in %s\n",
			result.Checked, result.Duration.Round(time.Millisecond))
		return nil
	}

	fmt.Fprintf(out, "%d issues in %d chunks (%s):\n",
		len(result.Issues), result.Checked, result.Duration.Round(time.Millisecond))
	for _, issue := range result.Issues {
		fmt.Fprintf(out, "  %s: %s\n", issue.Kind, issue.ChunkID)
	}

	if !opts.repair {
		fmt.Fprintln(out, "Run `stamzoek check --repair` to fix.")
		return fmt.Errorf("index inconsistent: %d issues", len(result.Issues))
	}

	if err := checker.Repair(ctx, result.Issues); err != nil {
		return err
	}
	if err := vector.Save(paths.vectors); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}

	after, err := checker.Check(ctx)
	if err != nil {
		return err
	}
	if !after.Consistent() {
		fmt.Fprintf(out, "Repaired, %d issues remain (vector rebuilds need a re-ingest)\n", len(after.Issues))
		return nil
	}
	fmt.Fprintln(out, "Repaired.")
	return nil
}
