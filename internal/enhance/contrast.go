package enhance

import (
	"encoding/binary"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/eventcam/internal/events"
)

const (
	contrastLowQuantile  = 0.02
	contrastHighQuantile = 0.98
	pixelMax             = 65535
)

// ContrastStretch remaps frame pixels so the chosen quantile window spans
// the full 16-bit range, discarding sensor pedestal and headroom. Pixels are
// rewritten in place.
type ContrastStretch struct {
	// scratch persists across frames to avoid per-frame allocation.
	scratch []float64
}

func NewContrastStretch() *ContrastStretch {
	return &ContrastStretch{}
}

// EnhanceFrame implements acquire.FrameEnhancer.
func (c *ContrastStretch) EnhanceFrame(ev events.FrameEvent) {
	pixels := ev.Pixels()
	n := len(pixels) / 2
	if n == 0 {
		return
	}

	if cap(c.scratch) < n {
		c.scratch = make([]float64, n)
	}
	values := c.scratch[:n]
	for i := 0; i < n; i++ {
		values[i] = float64(binary.LittleEndian.Uint16(pixels[2*i:]))
	}
	sort.Float64s(values)

	low := stat.Quantile(contrastLowQuantile, stat.Empirical, values, nil)
	high := stat.Quantile(contrastHighQuantile, stat.Empirical, values, nil)
	if high <= low {
		// Flat frame, nothing to stretch.
		return
	}

	scale := pixelMax / (high - low)
	for i := 0; i < n; i++ {
		v := (float64(binary.LittleEndian.Uint16(pixels[2*i:])) - low) * scale
		if v < 0 {
			v = 0
		} else if v > pixelMax {
			v = pixelMax
		}
		binary.LittleEndian.PutUint16(pixels[2*i:], uint16(v))
	}
}
