// Package cli implements the metis command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metislabs/metis/internal/assess"
	"github.com/metislabs/metis/internal/config"
	"github.com/metislabs/metis/internal/decide"
	"github.com/metislabs/metis/internal/journal"
	"github.com/metislabs/metis/internal/logging"
)

// #region root

var (
	configPath string
	dbOverride string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "metis",
	Short: "Self-monitoring assessment and decision engine",
	Long: "metis watches a stream of performance metrics, assesses confidence and\n" +
		"uncertainty, and autonomously issues corrective decisions: parameter\n" +
		"adjustments, strategy changes, resource re-allocation, and goal\n" +
		"re-prioritization. SQLite-backed, single binary.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: ./metis.yaml or ~/.metis/metis.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbOverride, "db", "d", "", "Database path (overrides config)")
}

// #endregion root

// #region helpers

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}
	return cfg
}

func newLogger(cfg config.Config) *zap.Logger {
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		exitErr("build logger", err)
	}
	return log
}

func openStore(cfg config.Config) *journal.Store {
	store, err := journal.Open(cfg.DBPath)
	if err != nil {
		exitErr("open journal", err)
	}
	return store
}

// buildEngines wires the store into a fresh assessment and decision
// engine pair, rehydrating goal and autonomy state from the journal.
func buildEngines(cfg config.Config, store *journal.Store, log *zap.Logger) (*assess.Engine, *decide.Engine) {
	acfg := assess.DefaultConfig()
	acfg.MetricWindow = cfg.Assess.MetricWindow

	dcfg := decide.DefaultConfig()
	dcfg.Autonomous = cfg.Decide.Autonomous
	dcfg.MaxConcurrent = cfg.Decide.MaxConcurrent
	dcfg.Workers = cfg.Decide.Workers
	dcfg.ConfidenceThreshold = cfg.Decide.ConfidenceThreshold

	assessor := assess.New(acfg, store, store, log)
	decider := decide.New(dcfg, assessor, store, store, log)
	if err := rehydrate(store, decider); err != nil {
		exitErr("rehydrate state", err)
	}
	return assessor, decider
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// #endregion helpers
