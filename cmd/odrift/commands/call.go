package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odrift/odrift/pkg/rpc"
)

func newCallCommand() *cobra.Command {
	var (
		argsJSON   string
		kwargsJSON string
	)

	cmd := &cobra.Command{
		Use:   "call <model> <method>",
		Short: "Invoke an arbitrary model method",
		Long: `Invoke any public method of a model over JSON-RPC and print the raw
result. Positional arguments and keyword arguments are given as JSON.`,
		Example: `  # Read two partners
  odrift call res.partner read --args '[[1, 2], ["name", "email"]]'

  # Run a server action with a context
  odrift call res.partner name_search --args '["Acme"]' --kwargs '{"limit": 5}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			model, method := args[0], args[1]

			var callArgs []interface{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &callArgs); err != nil {
					return fmt.Errorf("--args must be a JSON array: %w", err)
				}
			}
			var kwargs rpc.ValueMap
			if kwargsJSON != "" {
				if err := json.Unmarshal([]byte(kwargsJSON), &kwargs); err != nil {
					return fmt.Errorf("--kwargs must be a JSON object: %w", err)
				}
			}

			sess, err := openSession(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			client, err := sess.Client()
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			result, err := client.Call(ctx, model, method, callArgs, kwargs)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			raw, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "positional arguments as a JSON array")
	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", "keyword arguments as a JSON object")

	return cmd
}
