package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/codecache"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/config"
)

const (
	defaultCacheBase   = 0x10_0000
	defaultRuntimeBase = 0x70_0000
)

// rootCommand keeps the state shared by the subcommands: the loaded
// configuration and the back end generating into a private code cache.
type rootCommand struct {
	cmd            *cobra.Command
	stdout, stderr io.Writer
	lookupEnv      func(string) (string, bool)

	configPath  string
	syntax      string
	noColor     bool
	cacheBase   uint64
	runtimeBase uint64

	logger *logrus.Logger
	be     *riscv64.Backend
	mem    *codecache.Memory
	cache  *codecache.CodeCache
	stubs  *codecache.Stubs
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) int {
	c := newRootCommand(stdout, stderr, lookupEnv)
	c.cmd.SetArgs(args)
	err := c.cmd.Execute()
	c.close()
	if err != nil {
		c.color(errorColor).Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) *rootCommand {
	c := &rootCommand{stdout: stdout, stderr: stderr, lookupEnv: lookupEnv}
	c.cmd = &cobra.Command{
		Use:               "c1gen",
		Short:             "generate and print riscv64 client compiler code",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.SetOut(stdout)
	c.cmd.SetErr(stderr)
	c.cmd.PersistentFlags().AddFlagSet(c.persistentFlagSet())
	c.cmd.AddCommand(
		getAdaptersCmd(c),
		getWrapperCmd(c),
		getDeoptCmd(c),
		getConventionsCmd(c),
		getLIRCmd(c),
	)
	return c
}

func (c *rootCommand) persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML configuration file, overridden by the C1_* environment variables")
	flags.StringVar(&c.syntax, "syntax", "gnu", "listing syntax: gnu or go")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	flags.Uint64Var(&c.cacheBase, "base", defaultCacheBase, "address of the code cache")
	flags.Uint64Var(&c.runtimeBase, "runtime-base", defaultRuntimeBase, "address of the first runtime entry")
	return flags
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	if c.syntax != "gnu" && c.syntax != "go" {
		return fmt.Errorf("invalid syntax %q, expected gnu or go", c.syntax)
	}
	if _, ok := c.lookupEnv("NO_COLOR"); ok {
		c.noColor = true
	}
	cfg, err := config.Load(c.configPath, c.lookupEnv)
	if err != nil {
		return err
	}
	c.logger = cfg.Logger()
	c.logger.SetOutput(c.stderr)

	rt := backend.SyntheticRuntimeEntries(c.runtimeBase)
	if c.be, err = riscv64.NewBackend(cfg.Options(), rt, c.logger); err != nil {
		return err
	}
	size := int(cfg.CodeCacheSize.Int64)
	if c.mem, err = codecache.NewMemory(c.cacheBase, size); err != nil {
		return err
	}
	if c.cache, err = codecache.New(c.cacheBase, size, c.mem, c.logger); err != nil {
		return err
	}
	c.stubs = codecache.NewStubs(c.be, c.cache)
	if err = c.stubs.GenerateShared(); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"command": cmd.Name(), "base": fmt.Sprintf("%#x", c.cacheBase)}).Debug("code cache ready")
	return nil
}

func (c *rootCommand) close() {
	if c.mem == nil {
		return
	}
	if err := c.mem.Close(); err != nil {
		c.logger.WithError(err).Warn("could not release the code cache")
	}
}
