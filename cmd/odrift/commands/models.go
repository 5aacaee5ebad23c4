package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odrift/odrift/pkg/schema"
)

func newModelsCommand() *cobra.Command {
	var (
		includeTransient bool
		modules          []string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models defined on the server",
		Example: `  # List persistent models
  odrift models

  # Include transient (wizard) models from specific modules
  odrift models --transient --module sale --module crm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := openSession(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			intr, err := sess.Introspector()
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			models, err := intr.GetModels(ctx, schema.GetModelsOptions{
				IncludeTransient: includeTransient,
				Modules:          modules,
			})
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			if jsonOutput {
				raw, err := json.MarshalIndent(models, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tNAME\tTRANSIENT\tMODULES")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", m.Model, m.Name, m.Transient, strings.Join(m.Modules, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&includeTransient, "transient", false, "include transient models")
	cmd.Flags().StringSliceVar(&modules, "module", nil, "only models provided by these modules")

	return cmd
}
