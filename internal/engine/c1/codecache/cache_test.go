package codecache

//go:generate mockgen -write_package_comment=false -package=$GOPACKAGE -destination=mock_installer_test.go github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/codecache Installer

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testBase = 0x10_0000

type installerFunc func(addr uint64, code []byte) error

func (f installerFunc) Install(addr uint64, code []byte) error { return f(addr, code) }

var nopInstaller = installerFunc(func(uint64, []byte) error { return nil })

func testBlob(name string, base uint64, size int) *riscv64.CodeBlob {
	code := make([]byte, size)
	for i := range code {
		code[i] = byte(i + 1)
	}
	return &riscv64.CodeBlob{Name: name, Base: base, Code: code}
}

func newTestCache(t *testing.T, size int) (*CodeCache, *Memory) {
	mem, err := NewMemory(testBase, size)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mem.Close()) })
	c, err := New(testBase, size, mem, nil)
	require.NoError(t, err)
	return c, mem
}

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		name      string
		base      uint64
		size      int
		installer Installer
		expErr    string
	}{
		{name: "misaligned", base: testBase + 8, size: 1024, installer: nopInstaller, expErr: "code cache base 0x100008 is not aligned to 64"},
		{name: "empty", base: testBase, size: 0, installer: nopInstaller, expErr: "invalid code cache size 0"},
		{name: "no installer", base: testBase, size: 1024, expErr: "code cache needs an installer"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.base, tc.size, tc.installer, nil)
			require.EqualError(t, err, tc.expErr)
		})
	}
}

func TestCodeCache_Commit(t *testing.T) {
	c, mem := newTestCache(t, 4096)

	r, err := c.Reserve(200)
	require.NoError(t, err)
	require.Equal(t, Region{Base: testBase, Size: 256}, r)
	require.Equal(t, Stats{Capacity: 4096, Reserved: 256, Pending: 1}, c.Stats())

	blob := testBlob("m", r.Base, 70)
	in, err := c.Commit(r, blob)
	require.NoError(t, err)
	require.Equal(t, Installed{Name: "m", Region: Region{Base: testBase, Size: 128}, Used: 70}, in)
	require.Equal(t, Stats{Capacity: 4096, Reserved: 128, Blobs: 1}, c.Stats(), "the unused tail is given back")

	code, err := mem.Read(testBase, 70)
	require.NoError(t, err)
	require.Equal(t, blob.Code, code)

	next, err := c.Reserve(1)
	require.NoError(t, err)
	require.Equal(t, Region{Base: testBase + 128, Size: 64}, next)
}

func TestCodeCache_Release(t *testing.T) {
	c, _ := newTestCache(t, 4096)

	first, err := c.Reserve(256)
	require.NoError(t, err)
	second, err := c.Reserve(64)
	require.NoError(t, err)
	require.Equal(t, uint64(testBase+256), second.Base)

	// The tail of the first region is not at the top anymore.
	_, err = c.Commit(first, testBlob("first", first.Base, 70))
	require.NoError(t, err)
	require.Equal(t, Stats{Capacity: 4096, Reserved: 320, Wasted: 128, Pending: 1, Blobs: 1}, c.Stats())

	c.Release(second)
	require.Equal(t, Stats{Capacity: 4096, Reserved: 256, Wasted: 128, Blobs: 1}, c.Stats())

	again, err := c.Reserve(64)
	require.NoError(t, err)
	require.Equal(t, second, again)

	c.Release(again)
	require.Panics(t, func() { c.Release(again) }, "released twice")
	require.Panics(t, func() { _, _ = c.Commit(again, testBlob("late", again.Base, 8)) })
}

func TestCodeCache_Full(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c, err := New(testBase, 256, nopInstaller, logger)
	require.NoError(t, err)

	_, err = c.Reserve(200)
	require.NoError(t, err)
	_, err = c.Reserve(1)
	require.ErrorIs(t, err, ErrFull)
	require.EqualError(t, err, "reserving 64 bytes: code cache is full")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, "code cache is full", entry.Message)
	require.Equal(t, 64, entry.Data["size"])
	require.Equal(t, 256, entry.Data["used"])
	require.Equal(t, "codecache", entry.Data["component"])
}

func TestCodeCache_CommitErrors(t *testing.T) {
	t.Run("install failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inst := NewMockInstaller(ctrl)
		c, err := New(testBase, 1024, inst, nil)
		require.NoError(t, err)

		r, err := c.Reserve(64)
		require.NoError(t, err)
		blob := testBlob("m", r.Base, 16)
		inst.EXPECT().Install(uint64(testBase), blob.Code).Return(errors.New("read-only segment"))

		_, err = c.Commit(r, blob)
		require.EqualError(t, err, "installing m: read-only segment")
		require.Equal(t, 1, c.Stats().Pending, "the region stays reserved until released")
		c.Release(r)
		require.Equal(t, Stats{Capacity: 1024}, c.Stats())
	})
	t.Run("wrong base", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		c, err := New(testBase, 1024, NewMockInstaller(ctrl), nil)
		require.NoError(t, err)

		r, err := c.Reserve(64)
		require.NoError(t, err)
		_, err = c.Commit(r, testBlob("m", r.Base+64, 16))
		require.EqualError(t, err, "m was generated for 0x100040, not for region 0x100000")
	})
	t.Run("too big", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		c, err := New(testBase, 1024, NewMockInstaller(ctrl), nil)
		require.NoError(t, err)

		r, err := c.Reserve(64)
		require.NoError(t, err)
		_, err = c.Commit(r, testBlob("m", r.Base, 65))
		require.EqualError(t, err, "m takes 65 bytes, region 0x100000 holds 64")
	})
}

func TestCodeCache_Lookup(t *testing.T) {
	c, _ := newTestCache(t, 4096)
	var blobs []Installed
	for _, name := range []string{"a", "b", "c"} {
		r, err := c.Reserve(128)
		require.NoError(t, err)
		in, err := c.Commit(r, testBlob(name, r.Base, 100))
		require.NoError(t, err)
		blobs = append(blobs, in)
	}
	require.Equal(t, blobs, c.Installed())

	for _, tc := range []struct {
		pc  uint64
		exp string
	}{
		{pc: testBase, exp: "a"},
		{pc: testBase + 99, exp: "a"},
		{pc: testBase + 100},
		{pc: testBase + 128, exp: "b"},
		{pc: testBase + 256 + 50, exp: "c"},
		{pc: testBase - 4},
		{pc: testBase + 4096},
	} {
		in, ok := c.Lookup(tc.pc)
		require.Equal(t, tc.exp != "", ok, "%#x", tc.pc)
		require.Equal(t, tc.exp, in.Name, "%#x", tc.pc)
	}
}

func TestCodeCache_Concurrent(t *testing.T) {
	const n = 32
	c, mem := newTestCache(t, n*64)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r, err := c.Reserve(64)
			if err != nil {
				return err
			}
			if i%2 == 0 {
				c.Release(r)
				return nil
			}
			_, err = c.Commit(r, testBlob("m", r.Base, 64))
			return err
		})
	}
	require.NoError(t, g.Wait())

	installed := c.Installed()
	require.Len(t, installed, n/2)
	for i := 1; i < len(installed); i++ {
		require.Less(t, installed[i-1].Base, installed[i].Base)
	}
	for _, in := range installed {
		code, err := mem.Read(in.Base, in.Used)
		require.NoError(t, err)
		require.Equal(t, testBlob("m", in.Base, 64).Code, code)
	}
	st := c.Stats()
	require.Zero(t, st.Pending)
	require.Equal(t, n/2*64, st.Reserved-st.Wasted)
}

func TestMemory(t *testing.T) {
	mem, err := NewMemory(testBase, 256)
	require.NoError(t, err)

	require.NoError(t, mem.Install(testBase+16, []byte{1, 2, 3}))
	code, err := mem.Read(testBase+15, 5)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2, 3, 0}, code)

	require.EqualError(t, mem.Install(testBase+250, make([]byte, 8)), "range 0x1000fa+8 is outside of the code cache")
	_, err = mem.Read(testBase-8, 4)
	require.EqualError(t, err, "range 0xffff8+4 is outside of the code cache")

	require.NoError(t, mem.Close())
	require.NoError(t, mem.Close())
	require.EqualError(t, mem.Install(testBase, []byte{1}), "code cache memory is closed")
}
