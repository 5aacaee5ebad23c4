package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odrift/odrift/pkg/apply"
	"github.com/odrift/odrift/pkg/plan"
	"github.com/odrift/odrift/pkg/policy"
	"github.com/odrift/odrift/pkg/rpc"
	"github.com/odrift/odrift/pkg/session"
	"github.com/odrift/odrift/pkg/stores"
	"github.com/odrift/odrift/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		planFile        string
		dryRun          bool
		continueOnError bool
		noHistory       bool
		historyPath     string
		policyPaths     []string
		metricsListen   string
	)

	cmd := &cobra.Command{
		Use:   "apply [state files...]",
		Short: "Apply the declared state to the server",
		Long: `Build or load an execution plan and execute it against the server.

Before anything is written the plan is checked against the loaded policies;
a blocking violation aborts the apply. Execution is sequential in plan
order, and temporary identifiers from creates are resolved into later
operations as their records come into existence.

Each run is recorded in the local history database unless --no-history is
given.`,
		Example: `  # Apply a state file directly
  odrift apply state.yaml

  # Execute a previously saved plan
  odrift apply --plan plan.json

  # Rehearse without writing anything
  odrift apply state.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if planFile == "" && len(args) == 0 {
				return fmt.Errorf("provide state files or --plan")
			}

			metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:       metricsListen != "",
				Namespace:     "odrift",
				ListenAddress: metricsListen,
			})
			metrics.StartServer()

			sess, err := openSession(ctx, rpc.WithRecorder(metrics))
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			var p *plan.ExecutionPlan
			if planFile != "" {
				p, err = loadPlanFile(planFile)
				if err != nil {
					return &ExitError{Code: 1, Err: err}
				}
			} else {
				st, err := loadState(args)
				if err != nil {
					return &ExitError{Code: 1, Err: err}
				}
				diffs, err := computeDiffs(ctx, sess, st)
				if err != nil {
					return &ExitError{Code: 1, Err: err}
				}
				p = plan.Generate(diffs, nil)
			}

			if p.Summary.HasErrors {
				fmt.Print(plan.Render(p, plan.RenderOptions{}))
				return &ExitError{Code: 1}
			}
			if p.Summary.IsEmpty {
				fmt.Println("No changes. State is up to date.")
				return nil
			}

			if err := checkPolicies(ctx, p, policyPaths); err != nil {
				return err
			}

			client, err := sess.Client()
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			opts := apply.DefaultOptions()
			opts.DryRun = dryRun
			opts.StopOnError = !continueOnError
			opts.OnProgress = func(current, total int, operationID string) {
				logger := cliLogger()
				logger.Debug().
					Int("current", current).
					Int("total", total).
					Str("operation", operationID).
					Msg("applying")
			}
			opts.OnOperationComplete = func(res apply.OperationResult) {
				metrics.RecordOperation(string(res.Operation.Type), res.Operation.Model, res.Success, res.Duration)
			}

			result := apply.NewApplier(apply.WithLogger(cliLogger())).Apply(ctx, p, client, &opts)
			metrics.RecordApplyRun(result.Success)

			if !noHistory && !dryRun {
				if err := recordHistory(ctx, historyPath, sess, p, result, dryRun); err != nil {
					logger := cliLogger()
					logger.Warn().Err(err).Msg("failed to record run history")
				}
			}

			printApplyResult(result)
			if !result.Success {
				return &ExitError{Code: 2}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "execute a saved plan file instead of state files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and rehearse without writing to the server")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep executing after a failed operation")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record this run in the history database")
	cmd.Flags().StringVar(&historyPath, "history-path", defaultHistoryPath(), "history database path")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional .rego policy files or directories")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address during the run")

	return cmd
}

// loadPlanFile reads a plan saved by `odrift plan --out`.
func loadPlanFile(path string) (*plan.ExecutionPlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read plan file: %w", err)
	}
	var p plan.ExecutionPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("malformed plan file %s: %w", path, err)
	}
	return &p, nil
}

// checkPolicies evaluates builtin plus user policies against the plan.
func checkPolicies(ctx context.Context, p *plan.ExecutionPlan, extraPaths []string) error {
	engine, err := policy.NewEngine(cliLogger())
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if len(extraPaths) > 0 {
		if err := engine.LoadPolicies(ctx, extraPaths); err != nil {
			return &ExitError{Code: 1, Err: err}
		}
	}

	result, err := engine.EvaluatePlan(ctx, p)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	for _, w := range result.Warnings {
		logger := cliLogger()
		logger.Warn().Str("policy", w.Policy).Msg(w.Message)
	}
	if !result.Allowed {
		for _, v := range result.Violations {
			fmt.Fprintf(os.Stderr, "policy %s: %s\n", v.Policy, v.Message)
		}
		return &ExitError{Code: 1, Err: fmt.Errorf("plan blocked by policy")}
	}
	return nil
}

// recordHistory persists the run, its operations, and a completion event.
func recordHistory(ctx context.Context, path string, sess *session.Session, p *plan.ExecutionPlan, result *apply.Result, dryRun bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	status := sess.Status()
	summary, _ := json.Marshal(result)
	now := time.Now()

	run := &stores.Run{
		ID:        uuid.New().String(),
		PlanID:    p.ID,
		ServerURL: status.URL,
		Database:  status.Database,
		DryRun:    dryRun,
		Status:    stores.RunStatusRunning,
		StartedAt: now.Add(-result.Duration),
		Summary:   string(summary),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return err
	}

	for _, opRes := range result.Operations {
		values, _ := json.Marshal(opRes.Operation.Values)
		rec := &stores.OperationRecord{
			ID:         uuid.New().String(),
			RunID:      run.ID,
			Model:      opRes.Operation.Model,
			Type:       string(opRes.Operation.Type),
			RecordID:   opRes.Operation.ID,
			Status:     stores.OperationStatusCompleted,
			Values:     string(values),
			DurationMS: opRes.Duration.Milliseconds(),
			CreatedAt:  time.Now(),
		}
		if opRes.ActualID != 0 {
			id := opRes.ActualID
			rec.ActualID = &id
		}
		if !opRes.Success {
			rec.Status = stores.OperationStatusFailed
			msg := opRes.ErrorMessage
			rec.Error = &msg
		}
		if err := store.CreateOperation(ctx, rec); err != nil {
			return err
		}
	}

	finalStatus := stores.RunStatusCompleted
	var runErr *string
	if !result.Success {
		finalStatus = stores.RunStatusFailed
		msg := fmt.Sprintf("%d of %d operations failed", result.Failed, result.Total)
		runErr = &msg
	}
	if err := store.UpdateRunStatus(ctx, run.ID, finalStatus, runErr); err != nil {
		return err
	}

	msg := fmt.Sprintf("applied %d of %d operations", result.Applied, result.Total)
	return store.AppendEvent(ctx, &stores.Event{
		RunID:   &run.ID,
		Level:   stores.EventLevelInfo,
		Message: msg,
	})
}

func printApplyResult(result *apply.Result) {
	if jsonOutput {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			fmt.Println(string(raw))
		}
		return
	}

	for _, opRes := range result.Operations {
		if opRes.Success {
			if opRes.ActualID != 0 {
				fmt.Printf("%s: done (id %d)\n", opRes.Operation.ID, opRes.ActualID)
			} else {
				fmt.Printf("%s: done\n", opRes.Operation.ID)
			}
			continue
		}
		fmt.Printf("%s: failed: %s\n", opRes.Operation.ID, opRes.ErrorMessage)
	}
	fmt.Printf("Apply complete. %d applied, %d failed, %d total (%.2fs).\n",
		result.Applied, result.Failed, result.Total, result.Duration.Seconds())
}

// defaultHistoryPath is ~/.odrift/history.db, falling back to the working
// directory when the home directory is unknown.
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "odrift-history.db"
	}
	return filepath.Join(home, ".odrift", "history.db")
}
