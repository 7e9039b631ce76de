// File: cmd/validate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scenarist/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [files or directories...]",
		Short: "Check scenario files without starting a browser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := scenario.LoadAll(args)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return &exitError{code: 1, msg: "scenario validation failed"}
			}

			out := cmd.OutOrStdout()
			for _, sc := range scenarios {
				fmt.Fprintf(out, "ok  %s (%s: %d steps, %d assertions)\n",
					sc.Name, sc.Source, len(sc.Steps), len(sc.Assertions))
			}
			fmt.Fprintf(out, "%d scenarios valid\n", len(scenarios))
			return nil
		},
	}
}
