package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials against the server",
		Long: `Authenticate against the configured server and report the session.

Credentials come from --config, or from the ODRIFT_URL, ODRIFT_DB,
ODRIFT_USER, and ODRIFT_PASSWORD environment variables.`,
		Example: `  # Verify the environment credentials
  odrift login

  # Verify a config file
  odrift login --config ./odrift.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := openSession(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			status := sess.Status()
			if jsonOutput {
				out, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Authenticated against %s (database %s) as uid %d.\n",
				status.URL, status.Database, status.UID)
			return nil
		},
	}
	return cmd
}
