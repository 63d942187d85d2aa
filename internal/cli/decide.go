package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/decide"
)

func init() {
	decideCmd := &cobra.Command{
		Use:   "decide",
		Short: "Inspect and drive the decision engine",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one autonomous decision cycle",
		Long: "Assesses the recent metric window, synthesizes decision candidates,\n" +
			"and executes the eligible ones. A no-op when autonomy is off.",
		Run: func(cmd *cobra.Command, args []string) {
			withDecider(func(d *decide.Engine) {
				decisions, err := d.RunCycle()
				if err != nil {
					exitErr("decision cycle", err)
				}
				printJSON(decisions)
			})
		},
	}

	var (
		kindName string
		params   []string
	)
	makeCmd := &cobra.Command{
		Use:   "make",
		Short: "Execute a single decision immediately",
		Run: func(cmd *cobra.Command, args []string) {
			parsed, err := parseParams(params)
			if err != nil {
				exitErr("parse params", err)
			}
			withDecider(func(d *decide.Engine) {
				decision, err := d.MakeDecision(decide.DecisionKind(kindName), parsed)
				if err != nil {
					exitErr("make decision", err)
				}
				printJSON(decision)
			})
		},
	}
	makeCmd.Flags().StringVar(&kindName, "type", "", "Decision kind, e.g. parameter_adjustment")
	makeCmd.Flags().StringSliceVar(&params, "params", nil, "Decision parameters as key=value pairs")
	makeCmd.MarkFlagRequired("type")

	var (
		limit      int
		days       int
		filterKind string
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List executed decisions, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			withDecider(func(d *decide.Engine) {
				if days > 0 || filterKind != "" {
					printJSON(d.HistoryFiltered(days, decide.DecisionKind(filterKind)))
					return
				}
				printJSON(d.History(limit))
			})
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Max decisions to return (0 for all)")
	historyCmd.Flags().IntVar(&days, "days", 0, "Only decisions created within this many days")
	historyCmd.Flags().StringVar(&filterKind, "type", "", "Only decisions of this kind")

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List queued decisions in execution order",
		Run: func(cmd *cobra.Command, args []string) {
			withDecider(func(d *decide.Engine) {
				printJSON(d.Pending())
			})
		},
	}

	decideCmd.AddCommand(runCmd, makeCmd, historyCmd, pendingCmd)
	RootCmd.AddCommand(decideCmd)
}

// parseParams turns key=value pairs into a parameter map. Values that
// parse as numbers or booleans keep their type; the rest stay strings.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q: want key=value", pair)
		}
		switch {
		case value == "true" || value == "false":
			out[key] = value == "true"
		default:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				out[key] = f
			} else {
				out[key] = value
			}
		}
	}
	return out, nil
}
