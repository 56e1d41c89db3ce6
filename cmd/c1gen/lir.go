package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/codecache"
)

func getLIRCmd(c *rootCommand) *cobra.Command {
	var printLIR bool
	cmd := &cobra.Command{
		Use:     "lir file...",
		Short:   "Compile methods written as LIR",
		Example: `  c1gen lir --print-lir testdata/max.yaml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				prog, err := readProgram(path)
				if err != nil {
					return err
				}
				if printLIR {
					fmt.Fprint(c.stdout, prog.String())
				}
				cm, err := c.compile(prog)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				c.printBlob(cm.CodeBlob)
				for _, site := range cm.DebugSites {
					fmt.Fprintf(c.stdout, "  debug site %#x\n", cm.Base+uint64(site.Offset))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printLIR, "print-lir", false, "print the parsed program before its code")
	return cmd
}

// compile installs the code of prog into the code cache. Malformed programs
// are reported as errors.
func (c *rootCommand) compile(prog *backend.Program) (cm *riscv64.CompiledMethod, err error) {
	defer c1api.RecoverPrecondition(&err)
	return codecache.Generate(c.cache, c.be.Options().CodeBufferSize, func(base uint64) (*riscv64.CompiledMethod, error) {
		return c.be.Compile(prog, base)
	})
}
