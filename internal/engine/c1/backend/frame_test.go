package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameBuilder(t *testing.T) {
	var b FrameBuilder
	require.Equal(t, 0, b.Reserve(RegionOutgoingArgs, 12, 4))
	require.Equal(t, 16, b.Reserve(RegionOopHandles, 64, 8))
	require.Equal(t, 80, b.Reserve(RegionLock, 8, 8))
	l := b.Finish(RegionLinkage, 16)

	require.Equal(t, 112, l.Size)
	require.Equal(t, []FrameRegion{
		{Name: RegionOutgoingArgs, Offset: 0, Size: 12},
		{Name: "padding", Offset: 12, Size: 4},
		{Name: RegionOopHandles, Offset: 16, Size: 64},
		{Name: RegionLock, Offset: 80, Size: 8},
		{Name: "padding", Offset: 88, Size: 8},
		{Name: RegionLinkage, Offset: 96, Size: 16},
	}, l.Regions)

	r, ok := l.Region(RegionLock)
	require.True(t, ok)
	require.Equal(t, 80, r.Offset)
	_, ok = l.Region(RegionKlassHandle)
	require.False(t, ok)
	require.Panics(t, func() { l.MustRegion(RegionKlassHandle) })
	require.Equal(t, 28, l.Slots())
}

func TestFrameLayout_alignment(t *testing.T) {
	for args := 0; args < 40; args += 2 {
		for _, static := range []bool{false, true} {
			for _, sync := range []bool{false, true} {
				var b FrameBuilder
				b.Reserve(RegionOutgoingArgs, args*StackSlotSize, StackSlotSize)
				b.Reserve(RegionOopHandles, 8*8, 8)
				if static {
					b.Reserve(RegionKlassHandle, 8, 8)
				}
				if sync {
					b.Reserve(RegionLock, 8, 8)
				}
				b.Reserve(RegionResultTemp, 8, 8)
				l := b.Finish(RegionLinkage, 16)
				require.Zero(t, l.Size%StackAlignment)

				// Regions are contiguous and do not overlap.
				end := 0
				for _, r := range l.Regions {
					require.Equal(t, end, r.Offset, l.String())
					end = r.Offset + r.Size
				}
				require.Equal(t, l.Size, end)
			}
		}
	}
}
