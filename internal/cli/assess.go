package cli

import (
	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/assess"
)

func init() {
	assessCmd := &cobra.Command{
		Use:   "assess",
		Short: "Run one self-assessment over the recent metric window",
		Run: func(cmd *cobra.Command, args []string) {
			withAssessor(func(a *assess.Engine) {
				result, err := a.Assess()
				if err != nil {
					exitErr("assess", err)
				}
				printJSON(result)
			})
		},
	}

	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Scan historical metrics for trends, cycles, and anomalies",
		Run: func(cmd *cobra.Command, args []string) {
			withAssessor(func(a *assess.Engine) {
				patterns, err := a.DetectPatterns()
				if err != nil {
					exitErr("detect patterns", err)
				}
				printJSON(patterns)
			})
		},
	}

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Derive tuning recommendations from a fresh assessment",
		Run: func(cmd *cobra.Command, args []string) {
			withAssessor(func(a *assess.Engine) {
				assessment, err := a.Assess()
				if err != nil {
					exitErr("assess", err)
				}
				printJSON(a.Recommend(assessment))
			})
		},
	}

	RootCmd.AddCommand(assessCmd, patternsCmd, recommendCmd)
}

// withAssessor runs fn against an assessment engine wired to the
// configured store.
func withAssessor(fn func(*assess.Engine)) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()
	store := openStore(cfg)
	defer store.Close()
	assessor, _ := buildEngines(cfg, store, log)
	fn(assessor)
}
