package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/journal"
)

func init() {
	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Record and inspect performance metrics",
	}

	var (
		name    string
		value   float64
		context []string
	)
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record one metric observation",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			store := openStore(cfg)
			defer store.Close()

			m := journal.Metric{Name: name, Value: value}
			if len(context) > 0 {
				parsed, err := parseParams(context)
				if err != nil {
					exitErr("parse context", err)
				}
				m.Context = make(map[string]string, len(parsed))
				for k, v := range parsed {
					m.Context[k] = fmt.Sprint(v)
				}
			}
			if err := store.RecordMetric(m); err != nil {
				exitErr("record metric", err)
			}
		},
	}
	recordCmd.Flags().StringVar(&name, "name", "", "Metric name")
	recordCmd.Flags().Float64Var(&value, "value", 0, "Metric value")
	recordCmd.Flags().StringSliceVar(&context, "context", nil, "Context as key=value pairs")
	recordCmd.MarkFlagRequired("name")
	recordCmd.MarkFlagRequired("value")

	var (
		window     time.Duration
		filterName string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List metrics in the trailing window",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			store := openStore(cfg)
			defer store.Close()

			var (
				metrics []journal.Metric
				err     error
			)
			if filterName != "" {
				metrics, err = store.QueryMetricsNamed(filterName, window)
			} else {
				metrics, err = store.QueryMetrics(window)
			}
			if err != nil {
				exitErr("query metrics", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tNAME\tVALUE")
			for _, m := range metrics {
				fmt.Fprintf(w, "%s\t%s\t%.4f\n", m.Timestamp.Format(time.RFC3339), m.Name, m.Value)
			}
			w.Flush()
		},
	}
	listCmd.Flags().DurationVar(&window, "window", 24*time.Hour, "Trailing window")
	listCmd.Flags().StringVar(&filterName, "name", "", "Filter by metric name")

	metricsCmd.AddCommand(recordCmd, listCmd)
	RootCmd.AddCommand(metricsCmd)
}
