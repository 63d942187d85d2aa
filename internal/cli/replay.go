package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/replay"
)

func init() {
	var fixturePath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded metric fixture through the engines",
		Long: "Feeds a JSON fixture of metric batches through a fresh assessment\n" +
			"and decision pipeline, one batch per simulated tick, and prints the\n" +
			"per-batch outcomes.",
		Run: func(cmd *cobra.Command, args []string) {
			fixture, err := replay.LoadFixture(fixturePath)
			if err != nil {
				exitErr("load fixture", err)
			}

			cfg := loadConfig()
			log := newLogger(cfg)
			defer log.Sync()
			store := openStore(cfg)
			defer store.Close()

			results, summary, err := replay.Run(fixture, store, replay.DefaultConfig(), log)
			if err != nil {
				exitErr("replay", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BATCH\tMETRICS\tCONFIDENCE\tUNCERTAINTY\tSTRATEGY\tDECISIONS\tEXECUTED\tFAILED")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\t%.3f\t%.3f\t%s\t%d\t%d\t%d\n",
					r.Label, r.Metrics,
					r.Assessment.ConfidenceScore, r.Assessment.UncertaintyEstimate,
					r.Assessment.RecommendedStrategy,
					r.Synthesized, r.Executed, r.Failed)
			}
			w.Flush()

			fmt.Println()
			printJSON(summary)
		},
	}

	cmd.Flags().StringVar(&fixturePath, "fixture", "", "JSON fixture file")
	cmd.MarkFlagRequired("fixture")

	RootCmd.AddCommand(cmd)
}
