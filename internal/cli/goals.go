package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/metislabs/metis/internal/config"
	"github.com/metislabs/metis/internal/decide"
)

func init() {
	goalsCmd := &cobra.Command{
		Use:   "goals",
		Short: "Manage learning goals",
	}

	var (
		description  string
		priorityName string
		targetMetric string
		targetValue  float64
		initialValue float64
		deadlineStr  string
		dependencies []string
		seedFile     string
	)

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a goal (or seed several from a YAML file)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			log := newLogger(cfg)
			defer log.Sync()
			store := openStore(cfg)
			defer store.Close()
			_, decider := buildEngines(cfg, store, log)

			if seedFile != "" {
				cfg.Goals.SeedFile = seedFile
				if err := seedGoals(cfg, decider); err != nil {
					exitErr("seed goals", err)
				}
				printJSON(decider.Goals())
				return
			}

			priority, ok := decide.ParsePriority(priorityName)
			if !ok {
				exitErr("parse priority", fmt.Errorf("unknown priority %q", priorityName))
			}
			spec := decide.GoalSpec{
				Description:  description,
				Priority:     priority,
				TargetMetric: targetMetric,
				TargetValue:  targetValue,
				InitialValue: initialValue,
				Dependencies: dependencies,
			}
			if deadlineStr != "" {
				deadline, err := parseDeadline(deadlineStr)
				if err != nil {
					exitErr("parse deadline", err)
				}
				spec.Deadline = &deadline
			}
			id, ok := decider.AddGoal(spec)
			if !ok {
				exitErr("add goal", fmt.Errorf("invalid goal spec"))
			}
			fmt.Println(id)
		},
	}
	addCmd.Flags().StringVar(&description, "description", "", "Goal description")
	addCmd.Flags().StringVar(&priorityName, "priority", "medium", "Priority: critical, high, medium, low")
	addCmd.Flags().StringVar(&targetMetric, "metric", "", "Metric the goal tracks")
	addCmd.Flags().Float64Var(&targetValue, "target", 1.0, "Target metric value")
	addCmd.Flags().Float64Var(&initialValue, "initial", 0, "Starting metric value")
	addCmd.Flags().StringVar(&deadlineStr, "deadline", "", "Deadline: YYYY-MM-DD or days from now")
	addCmd.Flags().StringSliceVar(&dependencies, "depends-on", nil, "Goal ids promoted when this goal completes")
	addCmd.Flags().StringVar(&seedFile, "seed", "", "YAML seed file of goals")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		Run: func(cmd *cobra.Command, args []string) {
			withDecider(func(d *decide.Engine) {
				printJSON(d.Goals())
			})
		},
	}

	progressCmd := &cobra.Command{
		Use:   "progress <goal-id> <current-value>",
		Short: "Update a goal's current value",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				exitErr("parse value", err)
			}
			withDecider(func(d *decide.Engine) {
				if !d.UpdateGoalProgress(args[0], value) {
					exitErr("update goal", fmt.Errorf("goal %s is unknown or inactive", args[0]))
				}
				printJSON(d.Goals())
			})
		},
	}

	goalsCmd.AddCommand(addCmd, listCmd, progressCmd)
	RootCmd.AddCommand(goalsCmd)
}

// withDecider runs fn against a decision engine wired to the configured
// store, handling setup and teardown.
func withDecider(fn func(*decide.Engine)) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()
	store := openStore(cfg)
	defer store.Close()
	_, decider := buildEngines(cfg, store, log)
	fn(decider)
}

// seedGoals loads the configured YAML seed file, if any, and registers
// its goals. Seed dependencies reference earlier entries by index and
// are resolved to the generated goal ids.
func seedGoals(cfg config.Config, decider *decide.Engine) error {
	if cfg.Goals.SeedFile == "" {
		return nil
	}
	seeds, err := config.LoadSeedGoals(cfg.Goals.SeedFile)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(seeds))
	for i, seed := range seeds {
		priority, ok := decide.ParsePriority(seed.Priority)
		if !ok {
			return fmt.Errorf("goal %d (%s): unknown priority %q", i, seed.Description, seed.Priority)
		}
		spec := decide.GoalSpec{
			Description:  seed.Description,
			Priority:     priority,
			TargetMetric: seed.TargetMetric,
			TargetValue:  seed.TargetValue,
			InitialValue: seed.InitialValue,
		}
		if seed.Deadline != "" {
			deadline, err := parseDeadline(seed.Deadline)
			if err != nil {
				return fmt.Errorf("goal %d (%s): %w", i, seed.Description, err)
			}
			spec.Deadline = &deadline
		}
		for _, dep := range seed.Dependencies {
			idx, err := strconv.Atoi(dep)
			if err != nil || idx < 0 || idx >= i {
				return fmt.Errorf("goal %d (%s): dependency %q must be the index of an earlier goal", i, seed.Description, dep)
			}
			spec.Dependencies = append(spec.Dependencies, ids[idx])
		}
		id, ok := decider.AddGoal(spec)
		if !ok {
			return fmt.Errorf("goal %d (%s): invalid spec", i, seed.Description)
		}
		ids = append(ids, id)
	}
	return nil
}

// parseDeadline accepts either a calendar date or a number of days from
// now.
func parseDeadline(s string) (time.Time, error) {
	if days, err := strconv.Atoi(s); err == nil {
		if days < 0 {
			return time.Time{}, fmt.Errorf("deadline days must not be negative, got %d", days)
		}
		return time.Now().UTC().AddDate(0, 0, days), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q: want YYYY-MM-DD or days from now", s)
	}
	return t.UTC(), nil
}
