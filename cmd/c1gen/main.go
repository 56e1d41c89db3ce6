// c1gen generates the code of the riscv64 client compiler back end outside
// of a running VM and prints it: adapters, native wrappers, the runtime
// blobs, calling conventions and methods given as LIR.
package main

import (
	"bufio"
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	stdout := bufio.NewWriter(os.Stdout)
	atexit.Register(func() { _ = stdout.Flush() })
	atexit.Exit(doMain(os.Args[1:], stdout, os.Stderr, os.LookupEnv))
}
