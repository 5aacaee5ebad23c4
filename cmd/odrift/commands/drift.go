package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/odrift/odrift/pkg/plan"
	"github.com/odrift/odrift/pkg/session"
)

func newDriftCommand() *cobra.Command {
	var (
		watch   bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "drift [state files...]",
		Short: "Report divergence between declared and live state",
		Long: `Compare the declared state against the live server and report every
field that differs. Nothing is written to the server.

With --watch the comparison re-runs whenever a state file changes.`,
		Example: `  # One-shot drift check
  odrift drift state.yaml

  # Keep watching the state directory
  odrift drift ./state/ --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := openSession(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			drifted, err := checkDrift(ctx, sess, args, !noColor)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			if !watch {
				if drifted {
					return &ExitError{Code: 1}
				}
				return nil
			}
			return watchDrift(ctx, sess, args, !noColor)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-check whenever a state file changes")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

// checkDrift runs one compare pass and prints the result. The bool reports
// whether any record diverged.
func checkDrift(ctx context.Context, sess *session.Session, sources []string, color bool) (bool, error) {
	st, err := loadState(sources)
	if err != nil {
		return false, err
	}

	diffs, err := computeDiffs(ctx, sess, st)
	if err != nil {
		return false, err
	}

	if jsonOutput {
		raw, err := json.MarshalIndent(diffs, "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Println(string(raw))
	} else {
		fmt.Print(plan.RenderDiffs(diffs, plan.RenderOptions{Color: color}))
	}
	return len(diffs) > 0, nil
}

// watchDrift re-runs the compare on every state file change until the
// context is cancelled. Events are debounced so editors that write in
// several steps trigger a single re-check.
func watchDrift(ctx context.Context, sess *session.Session, sources []string, color bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("cannot create watcher: %w", err)}
	}
	defer func() { _ = watcher.Close() }()

	for _, source := range sources {
		// Watch the directory so renames and atomic saves are seen.
		if err := watcher.Add(filepath.Dir(filepath.Clean(source))); err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("cannot watch %s: %w", source, err)}
		}
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger := cliLogger()
			logger.Warn().Err(err).Msg("watch error")
		case <-pending:
			logger := cliLogger()
			logger.Info().Msg("state files changed, re-checking drift")
			if _, err := checkDrift(ctx, sess, sources, color); err != nil {
				logger.Error().Err(err).Msg("drift check failed")
			}
		}
	}
}
