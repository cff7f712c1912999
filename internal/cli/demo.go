package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/smsledger/internal/source"
	"github.com/jask/smsledger/internal/testdata"
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntP("count", "n", 200, "Number of messages to generate")
	demoCmd.Flags().Uint64("seed", 1, "Generator seed; the same seed gives the same messages")
	demoCmd.Flags().StringP("out", "o", "", "Write the messages as JSONL to this file")
	demoCmd.Flags().Bool("ingest", false, "Run the messages through the ledger")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Generate synthetic bank SMS traffic",
	Long: `Generate a realistic mix of transaction alerts, marketing, OTPs,
personal messages and duplicates. The output can be fed to 'scan --file'.`,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetUint64("seed")
	out, _ := cmd.Flags().GetString("out")
	ingest, _ := cmd.Flags().GetBool("ingest")
	if count <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	start := time.Now().UTC().Truncate(time.Minute).AddDate(0, 0, -30)
	msgs := testdata.Raw(testdata.NewGenerator(seed, start).Generate(count))

	switch {
	case out != "":
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := source.WriteJSONL(f, msgs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d messages to %s\n", len(msgs), out)
	case !ingest:
		return source.WriteJSONL(cmd.OutOrStdout(), msgs)
	}

	if !ingest {
		return nil
	}
	return withApp(cmd, func(a *app) error {
		sum, err := a.engine.ReprocessBatch(cmd.Context(), msgs, nil)
		if werr := printSummary(cmd.OutOrStdout(), sum); werr != nil {
			return werr
		}
		return err
	})
}
