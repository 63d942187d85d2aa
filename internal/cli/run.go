package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/monitor"
)

func init() {
	var (
		interval   time.Duration
		autonomous bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor daemon",
		Long: "Runs the periodic assessment and decision loop until interrupted.\n" +
			"Each tick assesses the recent metric window, scans for patterns,\n" +
			"and, when autonomy is on, synthesizes and executes decisions.",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if cmd.Flags().Changed("interval") {
				cfg.Assess.Interval = interval
			}

			log := newLogger(cfg)
			defer log.Sync()

			store := openStore(cfg)
			defer store.Close()

			assessor, decider := buildEngines(cfg, store, log)
			if err := seedGoals(cfg, decider); err != nil {
				exitErr("seed goals", err)
			}
			// An explicit flag beats whatever autonomy state rehydrated
			// from the journal.
			if cmd.Flags().Changed("autonomous") {
				decider.SetAutonomy(autonomous)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			monitor.New(cfg.Assess.Interval, assessor, decider, log).Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Tick interval")
	cmd.Flags().BoolVar(&autonomous, "autonomous", false, "Enable autonomous decision cycles")

	RootCmd.AddCommand(cmd)
}
