package cli

import (
	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/decide"
)

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		Run: func(cmd *cobra.Command, args []string) {
			withDecider(func(d *decide.Engine) {
				printJSON(d.Status())
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show journal store statistics",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			store := openStore(cfg)
			defer store.Close()

			stats, err := store.Stats()
			if err != nil {
				exitErr("stats", err)
			}
			printJSON(stats)
		},
	}

	RootCmd.AddCommand(statusCmd, statsCmd)
}
