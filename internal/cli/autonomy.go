package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/decide"
)

func init() {
	cmd := &cobra.Command{
		Use:   "autonomy <on|off>",
		Short: "Toggle autonomous decision making",
		Long: "Flips the autonomy flag and journals the change. The setting is\n" +
			"durable: later commands and daemon runs rehydrate it from the journal.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		Run: func(cmd *cobra.Command, args []string) {
			if args[0] != "on" && args[0] != "off" {
				exitErr("autonomy", fmt.Errorf("want on or off, got %q", args[0]))
			}
			withDecider(func(d *decide.Engine) {
				d.SetAutonomy(args[0] == "on")
				fmt.Printf("autonomy %s\n", args[0])
			})
		},
	}

	RootCmd.AddCommand(cmd)
}
