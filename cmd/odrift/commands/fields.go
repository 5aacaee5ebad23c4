package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odrift/odrift/pkg/schema"
)

func newFieldsCommand() *cobra.Command {
	var bypassCache bool

	cmd := &cobra.Command{
		Use:   "fields <model>",
		Short: "Describe the fields of a model",
		Long: `Fetch the field definitions of a model, merged with the engine's
base-schema annotations for well-known system models.`,
		Example: `  # Describe res.partner
  odrift fields res.partner

  # Force a fresh fetch past the metadata cache
  odrift fields res.partner --no-cache`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			model := args[0]

			sess, err := openSession(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() { _ = sess.Logout(ctx) }()

			intr, err := sess.Introspector()
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			meta, err := intr.GetModelMetadata(ctx, model, schema.GetFieldsOptions{
				BypassCache: bypassCache,
			})
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			if jsonOutput {
				raw, err := json.MarshalIndent(meta, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
				return nil
			}

			fields := make([]schema.Field, 0, len(meta.Fields))
			for _, f := range meta.Fields {
				fields = append(fields, f)
			}
			sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tTYPE\tREQUIRED\tREADONLY\tRELATION")
			for _, f := range fields {
				fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n", f.Name, f.Type, f.Required, f.ReadOnly, f.Relation)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&bypassCache, "no-cache", false, "bypass the metadata cache")

	return cmd
}
