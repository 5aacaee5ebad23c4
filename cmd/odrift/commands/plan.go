package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odrift/odrift/pkg/plan"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "plan [state files...]",
		Short: "Show what an apply would change",
		Long: `Compare the declared state against the live server and build an
execution plan.

The plan lists every create, update, and delete an apply would perform, in
execution order. Nothing is written to the server.`,
		Example: `  # Plan a single state file
  odrift plan state.yaml

  # Plan a directory of state files and save the plan
  odrift plan ./state/ --out plan.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := loadState(args)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			sess, err := openSession(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			diffs, err := computeDiffs(ctx, sess, st)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			p := plan.Generate(diffs, nil)

			if outFile != "" {
				raw, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outFile, raw, 0600); err != nil {
					return fmt.Errorf("cannot write plan file: %w", err)
				}
			}

			if jsonOutput {
				raw, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
			} else {
				fmt.Print(plan.Render(p, plan.RenderOptions{Color: !noColor}))
			}

			if p.Summary.HasErrors {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON to this file")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}
