package main

import (
	"fmt"
	"github.com/spboyer/textplay/internal/policy"
	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the available decision policies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			names := policy.Names()
			width := 0
			for _, n := range names {
				width = max(width, len(n))
			}
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", padRight(n, width), policy.Describe(n))
			}
		},
	}
}
