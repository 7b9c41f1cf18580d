package enhance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventcam/internal/events"
)

func makeFrame(t *testing.T, w, h int32, pixel func(i int32) uint16) events.FrameEvent {
	t.Helper()
	fp, err := events.AllocateFramePacket(1, 1, 0, w, h, 1)
	require.NoError(t, err)
	ev, ok := fp.Event(0)
	require.True(t, ok)
	ev.SetROI(w, h, 1)
	for i := int32(0); i < w*h; i++ {
		ev.SetPixel(i%w, i/w, 0, pixel(i))
	}
	return ev
}

func TestAutoExposureDarkFrameRaisesExposure(t *testing.T) {
	ae := NewAutoExposure(4000, nil)
	ev := makeFrame(t, 16, 16, func(int32) uint16 { return 0 })

	next := ae.Calculate(ev, 4000)
	assert.Greater(t, next, int32(4000), "dark frame should raise exposure")
}

func TestAutoExposureBrightFrameLowersExposure(t *testing.T) {
	ae := NewAutoExposure(4000, nil)
	ev := makeFrame(t, 16, 16, func(int32) uint16 { return 0xFFFF })

	next := ae.Calculate(ev, 4000)
	assert.Less(t, next, int32(4000))
	assert.GreaterOrEqual(t, next, int32(minExposureMicros))
}

func TestAutoExposureBalancedFrameIsOptimal(t *testing.T) {
	ae := NewAutoExposure(4000, nil)
	// Half the pixels in the second sample bin, half in the third: the
	// mean sample value lands exactly on target.
	ev := makeFrame(t, 16, 16, func(i int32) uint16 {
		if i%2 == 0 {
			return 64 << 8
		}
		return 128 << 8
	})

	assert.Equal(t, int32(-1), ae.Calculate(ev, 4000))
}

func TestAutoExposureAppliesThroughSetter(t *testing.T) {
	var applied []uint32
	ae := NewAutoExposure(4000, func(v uint32) error {
		applied = append(applied, v)
		return nil
	})
	dark := makeFrame(t, 16, 16, func(int32) uint16 { return 0 })

	ae.EnhanceFrame(dark)
	require.Len(t, applied, 1)
	first := applied[0]
	assert.Greater(t, first, uint32(4000))

	// The next frame corrects from the newly applied value.
	ae.EnhanceFrame(dark)
	require.Len(t, applied, 2)
	assert.Greater(t, applied[1], first)
}

func TestAutoExposureExposureClamped(t *testing.T) {
	ae := NewAutoExposure(maxExposureMicros, nil)
	dark := makeFrame(t, 16, 16, func(int32) uint16 { return 0 })
	assert.Equal(t, int32(maxExposureMicros), ae.Calculate(dark, maxExposureMicros))
}

func TestContrastStretchExpandsRange(t *testing.T) {
	cs := NewContrastStretch()
	// Ramp confined to a narrow band of the 16-bit range.
	ev := makeFrame(t, 16, 16, func(i int32) uint16 { return uint16(1000 + i*30) })

	cs.EnhanceFrame(ev)

	var lo, hi uint16 = 0xFFFF, 0
	for i := int32(0); i < 256; i++ {
		v := ev.Pixel(i%16, i/16, 0)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	assert.Equal(t, uint16(0), lo, "bottom of ramp should clamp to black")
	assert.Equal(t, uint16(0xFFFF), hi, "top of ramp should clamp to white")

	// Ordering of distinct input values survives the remap.
	assert.LessOrEqual(t, ev.Pixel(0, 0, 0), ev.Pixel(1, 0, 0))
}

func TestContrastStretchFlatFrameUnchanged(t *testing.T) {
	cs := NewContrastStretch()
	ev := makeFrame(t, 8, 8, func(int32) uint16 { return 5000 })

	cs.EnhanceFrame(ev)
	for i := int32(0); i < 64; i++ {
		require.Equal(t, uint16(5000), ev.Pixel(i%8, i/8, 0))
	}
}

func TestChainRunsAllEnhancers(t *testing.T) {
	var order []string
	a := enhancerFunc(func(events.FrameEvent) { order = append(order, "a") })
	b := enhancerFunc(func(events.FrameEvent) { order = append(order, "b") })
	ev := makeFrame(t, 2, 2, func(int32) uint16 { return 0 })

	Chain{a, b}.EnhanceFrame(ev)
	assert.Equal(t, []string{"a", "b"}, order)
}

type enhancerFunc func(events.FrameEvent)

func (f enhancerFunc) EnhanceFrame(ev events.FrameEvent) { f(ev) }
