package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sharedBlobNames are the runtime blobs in the order they are printed.
var sharedBlobNames = []string{
	"deopt_blob",
	"safepoint_handler_blob",
	"slow_subtype_check",
	"resolve_static_call",
	"resolve_virtual_call",
}

func getDeoptCmd(c *rootCommand) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "deopt",
		Short: "Print the deoptimization blob",
		Long: `Print the deoptimization blob and its entries: deopt, reexecute, exception
and exception_in_tls. With --all the other runtime blobs are printed too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := sharedBlobNames[:1]
			if all {
				names = sharedBlobNames
			}
			for _, name := range names {
				blob, ok := c.stubs.Shared(name)
				if !ok {
					return fmt.Errorf("%s was not generated", name)
				}
				c.printBlob(blob)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "print every runtime blob")
	return cmd
}
