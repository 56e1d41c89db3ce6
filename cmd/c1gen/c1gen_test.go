package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// testEnv keeps the code cache of each run small.
var testEnv = map[string]string{"C1_CODE_CACHE_SIZE": "1048576"}

func runMain(t *testing.T, env map[string]string, args ...string) (int, string, string) {
	t.Helper()
	if env == nil {
		env = testEnv
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := doMain(append([]string{"--no-color"}, args...), stdout, stderr, lookup)
	return code, stdout.String(), stderr.String()
}

func TestHelp(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, nil, "--help")
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "generate and print riscv64 client compiler code")
	for _, cmd := range []string{"adapters", "wrapper", "deopt", "conventions", "lir"} {
		require.Contains(t, stdOut, cmd)
	}
}

func TestAdapters(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, nil, "adapters", "--static", "(IJ)V", "(ZJ)V", "(D)I")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "static (IJ)V, fingerprint")
	require.Contains(t, stdOut, "shares the adapters of static (IJ)V")
	require.Contains(t, stdOut, "entry i2c")
	require.Contains(t, stdOut, "entry c2i_unverified")
	require.Contains(t, stdOut, "3 methods, 2 adapters")
	require.NotContains(t, stdOut, "(IJ)V(IJ)V", "unnamed methods print their descriptor once")

	exitCode, stdOut, stdErr = runMain(t, nil, "adapters", "--file", "testdata/methods.yaml")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "static java.lang.Math.max(II)I")
	require.Contains(t, stdOut, "java.lang.String.charAt(I)C")
	require.Contains(t, stdOut, "3 methods, 3 adapters")
}

func TestAdapters_GoSyntax(t *testing.T) {
	exitCode, gnu, stdErr := runMain(t, nil, "adapters", "(J)V")
	require.Equal(t, 0, exitCode, stdErr)
	exitCode, goSyntax, stdErr := runMain(t, nil, "--syntax=go", "adapters", "(J)V")
	require.Equal(t, 0, exitCode, stdErr)
	require.NotEqual(t, gnu, goSyntax)
}

func TestWrapper(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, nil, "wrapper", "java.lang.Object.hashCode", "()I")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "java.lang.Object.hashCode()I, native signature")
	require.Contains(t, stdOut, "frame size=")
	require.Contains(t, stdOut, "native_wrapper:java.lang.Object.hashCode at")

	exitCode, stdOut, stdErr = runMain(t, nil, "wrapper", "--file", "testdata/methods.yaml")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "native_wrapper:java.lang.Math.max at")
	require.Contains(t, stdOut, "native_wrapper:java.lang.Object.hashCode at")
}

func TestDeopt(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, nil, "deopt")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "deopt_blob at")
	for _, e := range []string{"deopt", "reexecute", "exception", "exception_in_tls"} {
		require.Contains(t, stdOut, "entry "+e)
	}
	require.NotContains(t, stdOut, "resolve_static_call")

	exitCode, stdOut, stdErr = runMain(t, nil, "deopt", "--all")
	require.Equal(t, 0, exitCode, stdErr)
	for _, name := range sharedBlobNames {
		require.Contains(t, stdOut, name+" at")
	}
}

func TestConventions(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, nil, "conventions", "--static", "(IJ)V", "(IIIIIIIII)D")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "static (IJ)V, java convention, outgoing")
	require.NotContains(t, stdOut, "(IJ)V(IJ)V")
	require.Contains(t, stdOut, "   0 int        x11\n")
	require.Contains(t, stdOut, "   1 long       x12\n")
	require.Contains(t, stdOut, "   2 void       -\n")
	require.Contains(t, stdOut, "  result -, 0 stack slots\n")
	require.Contains(t, stdOut, "   7 int        x10\n")
	require.Contains(t, stdOut, "   8 int        stack[0]")
	require.Contains(t, stdOut, "sp+0\n")
	require.Contains(t, stdOut, "  result f10,")

	exitCode, stdOut, stdErr = runMain(t, nil, "conventions", "--native", "--static", "(IJ)V")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "native convention")
	require.Contains(t, stdOut, "   0 int        x10\n")
}

func TestLIR(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, nil, "lir", "--print-lir", "testdata/max.yaml")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "program max (frame 32)")
	require.Contains(t, stdOut, "  cmp_branch [ge] int:x11 int:x12 L1\n")
	require.Contains(t, stdOut, "max at 0x")
	require.Contains(t, stdOut, "entry verified_entry")
	require.Contains(t, stdOut, "debug site 0x")
}

func TestParseProgram_RoundTrip(t *testing.T) {
	prog, err := readProgram("testdata/max.yaml")
	require.NoError(t, err)
	require.Equal(t, 1, prog.NumLabels())
	for _, ins := range prog.Instructions {
		for _, in := range ins.In {
			again, err := parseOperand(in.String())
			require.NoError(t, err)
			require.Equal(t, in, again)
		}
	}
}

func TestErrors(t *testing.T) {
	for _, tc := range []struct {
		message string
		env     map[string]string
		args    []string
	}{
		{message: "no method descriptor given", args: []string{"adapters"}},
		{message: `invalid descriptor "(Q)V": unexpected 'Q' at 1`, args: []string{"adapters", "(Q)V"}},
		{message: "reading methods", args: []string{"adapters", "-f", "testdata/missing.yaml"}},
		{message: "no native method given", args: []string{"wrapper"}},
		{message: "expected a name and a descriptor, got 1 arguments", args: []string{"wrapper", "foo"}},
		{message: "native method ()I has no name", args: []string{"wrapper", "", "()I"}},
		{message: "precondition violated: frame size 24 of bad is not aligned", args: []string{"lir", "testdata/bad_frame.yaml"}},
		{message: `jump: instruction 0: unknown opcode "jump"`, args: []string{"lir", "testdata/unknown_op.yaml"}},
		{message: `invalid syntax "intel", expected gnu or go`, args: []string{"--syntax=intel", "deopt"}},
		{message: "invalid log level", env: map[string]string{"C1_LOG_LEVEL": "loud"}, args: []string{"deopt"}},
	} {
		tc := tc
		t.Run(tc.message, func(t *testing.T) {
			exitCode, _, stdErr := runMain(t, tc.env, tc.args...)
			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, "error: ")
			require.Contains(t, stdErr, tc.message)
		})
	}
}

func TestParseOperand(t *testing.T) {
	for _, tc := range []struct {
		in     string
		exp    backend.Operand
		expErr string
	}{
		{in: "int:x10", exp: backend.RegisterOperand(backend.IntReg(10), backend.KindInt)},
		{in: "double:f11", exp: backend.FloatRegisterOperand(backend.FloatReg(11), backend.KindDouble)},
		{in: "long:stack[12]", exp: backend.StackOperand(3, backend.KindLong)},
		{in: "int:-7", exp: backend.IntConst(-7)},
		{in: "long:0x10", exp: backend.LongConst(16)},
		{in: "float:1.5", exp: backend.FloatConst(1.5)},
		{in: "object:0x0", exp: backend.ObjectConst(0)},
		{in: "int:[x11+16]", exp: backend.AddressOperand(backend.BaseDisp(backend.IntReg(11), 16), backend.KindInt)},
		{in: "object:[x2-8]", exp: backend.AddressOperand(backend.BaseDisp(backend.IntReg(2), -8), backend.KindObject)},
		{in: "byte:[x5]", exp: backend.AddressOperand(backend.BaseDisp(backend.IntReg(5), 0), backend.KindByte)},
		{in: "x10", expErr: `operand "x10" has no kind`},
		{in: "word:x10", expErr: `operand "word:x10": unknown kind "word"`},
		{in: "int:", expErr: `operand "int:" has no value`},
		{in: "int:x32", expErr: `invalid register "x32"`},
		{in: "int:f1", expErr: "f1 cannot hold int"},
		{in: "int:1.5", expErr: `invalid int constant "1.5"`},
		{in: "short:1", expErr: "no short constants"},
		{in: "int:stack[6]", expErr: `invalid stack offset "stack[6]"`},
	} {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			o, err := parseOperand(tc.in)
			if tc.expErr != "" {
				require.EqualError(t, err, tc.expErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, o)
		})
	}
}
