package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

func getConventionsCmd(c *rootCommand) *cobra.Command {
	var (
		file     string
		static   bool
		native   bool
		incoming bool
	)
	cmd := &cobra.Command{
		Use:   "conventions [descriptor...]",
		Short: "Print where the calling conventions pass arguments",
		Example: `  c1gen conventions --static "(IJFD)V"
  c1gen conventions --native --incoming "(Ljava/lang/Object;D)J"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			methods, err := collectMethods(args, file, static)
			if err != nil {
				return err
			}
			cc, dir, base := riscv64.JavaConvention, backend.DirectionOutgoing, "sp"
			if native {
				cc = riscv64.NativeConvention
			}
			if incoming {
				dir, base = backend.DirectionIncoming, "fp"
			}
			for _, m := range methods {
				c.header("%s, %s convention, %s", m, cc.Name, dir)
				locs, slots := backend.Map(m.sig, cc, dir)
				for i, k := range m.sig.Expanded() {
					l := locs[i]
					if l.IsStack() {
						fmt.Fprintf(c.stdout, "  %2d %-10s %-12s %s%+d\n", i, k, l, base, cc.StackByteOffset(l, dir))
						continue
					}
					fmt.Fprintf(c.stdout, "  %2d %-10s %s\n", i, k, l)
				}
				fmt.Fprintf(c.stdout, "  result %s, %d stack slots\n", cc.ResultLocation(m.sig.Ret), slots)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file listing methods")
	cmd.Flags().BoolVar(&static, "static", false, "the descriptors on the command line are static methods")
	cmd.Flags().BoolVar(&native, "native", false, "use the native instead of the managed convention")
	cmd.Flags().BoolVar(&incoming, "incoming", false, "print the locations as seen by the callee")
	return cmd
}
