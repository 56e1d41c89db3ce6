package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

func getAdaptersCmd(c *rootCommand) *cobra.Command {
	var (
		file   string
		static bool
	)
	cmd := &cobra.Command{
		Use:   "adapters [descriptor...]",
		Short: "Generate the i2c and c2i adapters of methods",
		Long: `Generate the adapters between the interpreter and compiled code for each
method. Methods whose signatures have the same fingerprint share adapters.`,
		Example: `  c1gen adapters "(IJ)V" "(Ljava/lang/String;D)I"
  c1gen adapters --file methods.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			methods, err := collectMethods(args, file, static)
			if err != nil {
				return err
			}
			blobs := make([]*riscv64.CodeBlob, len(methods))
			var g errgroup.Group
			for i, m := range methods {
				i, m := i, m
				g.Go(func() error {
					blob, err := c.stubs.Adapters(m.sig)
					if err != nil {
						return fmt.Errorf("%s: %w", m, err)
					}
					blobs[i] = blob
					return nil
				})
			}
			if err = g.Wait(); err != nil {
				return err
			}

			printed := map[*riscv64.CodeBlob]*methodSpec{}
			for i, m := range methods {
				c.header("%s, fingerprint %s", m, m.sig.Fingerprint())
				if first, ok := printed[blobs[i]]; ok {
					fmt.Fprintf(c.stdout, "  shares the adapters of %s\n", first)
					continue
				}
				printed[blobs[i]] = m
				c.printBlob(blobs[i])
			}
			fmt.Fprintf(c.stdout, "%d methods, %d adapters\n", len(methods), c.stubs.AdapterCount())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file listing methods")
	cmd.Flags().BoolVar(&static, "static", false, "the descriptors on the command line are static methods")
	return cmd
}
