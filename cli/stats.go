package cli

import (
	"fmt"

	"github.com/korjavin/medcasebot/stats"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <case-id>",
	Short: "Show how users answered a case",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.close()

	ctx := cmd.Context()
	cs, err := env.catalog().CaseByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("case %s: %w", args[0], err)
	}
	dist, err := stats.New(env.db).Distribution(ctx, cs.ID)
	if err != nil {
		return fmt.Errorf("loading distribution: %w", err)
	}

	total := 0
	for _, n := range dist {
		total += n
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Case %s (source %s), %d answers\n", cs.ID, cs.Source, total)
	fmt.Fprintln(out, stats.FormatDistribution(dist, cs.Correct, ""))
	return nil
}
