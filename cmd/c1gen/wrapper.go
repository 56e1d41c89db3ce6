package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

const defaultNativeEntry = 0x60_2000

func getWrapperCmd(c *rootCommand) *cobra.Command {
	var (
		file string
		spec methodSpec
	)
	cmd := &cobra.Command{
		Use:   "wrapper [name descriptor]",
		Short: "Generate the wrappers of native methods",
		Example: `  c1gen wrapper java.lang.Object.hashCode "()I"
  c1gen wrapper --static --synchronized java.lang.System.identityHashCode "(Ljava/lang/Object;)I"
  c1gen wrapper --file natives.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected a name and a descriptor, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var methods []*methodSpec
			if len(args) == 2 {
				m := spec
				m.Name, m.Descriptor = args[0], args[1]
				if err := m.parse(); err != nil {
					return err
				}
				methods = append(methods, &m)
			}
			if file != "" {
				fromFile, err := readMethods(file)
				if err != nil {
					return err
				}
				methods = append(methods, fromFile...)
			}
			if len(methods) == 0 {
				return fmt.Errorf("no native method given")
			}

			for _, m := range methods {
				if m.Name == "" {
					return fmt.Errorf("native method %s has no name", m)
				}
				nm := &riscv64.NativeMethod{
					Name:         m.Name,
					Sig:          m.sig,
					IsStatic:     m.Static,
					Synchronized: m.Synchronized,
					NativeEntry:  m.Entry,
					Mirror:       m.Mirror,
				}
				if nm.NativeEntry == 0 {
					nm.NativeEntry = defaultNativeEntry
				}
				if !nm.IsStatic && (len(nm.Sig.Args) == 0 || !nm.Sig.Args[0].IsReference()) {
					return fmt.Errorf("%s: instance method without receiver", m)
				}
				w, err := c.stubs.NativeWrapper(nm)
				if err != nil {
					return fmt.Errorf("%s: %w", m, err)
				}
				c.header("%s, native signature %s", m, w.NativeSig)
				fmt.Fprint(c.stdout, w.Layout.String())
				c.printBlob(w.CodeBlob)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file listing native methods")
	cmd.Flags().BoolVar(&spec.Static, "static", false, "the method is static")
	cmd.Flags().BoolVar(&spec.Synchronized, "synchronized", false, "the method is synchronized")
	cmd.Flags().Uint64Var(&spec.Entry, "entry", defaultNativeEntry, "address of the native function")
	cmd.Flags().Uint64Var(&spec.Mirror, "mirror", 0, "class mirror passed to static methods")
	return cmd
}
