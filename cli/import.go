package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load cases from a YAML seed file into the catalog",
	Long: `Reads a YAML file of the form

  cases:
    - id: C1
      source: "-1001234567890:42"
      answer: B

and upserts every valid entry. Re-importing a retired case makes it available again.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.close()

	n, err := env.catalog().Import(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cases from %s\n", n, args[0])
	return nil
}
