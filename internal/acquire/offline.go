package acquire

import (
	"github.com/banshee-data/eventcam/internal/config"
	"github.com/banshee-data/eventcam/internal/events"
)

// Decoder decodes raw transfer data outside a live pipeline, for capture
// replay and tooling. Not safe for concurrent use.
type Decoder struct {
	d *streamDecoder
}

// NewDecoder builds a standalone decoder emitting completed containers
// through emit.
func NewDecoder(acq config.Acquisition, source int16,
	maxFrameX, maxFrameY, frameChannels int32, enhancer FrameEnhancer,
	emit func(*events.EventPacketContainer)) *Decoder {
	return &Decoder{d: newStreamDecoder(acq, source, frameDims{
		maxX:     maxFrameX,
		maxY:     maxFrameY,
		channels: frameChannels,
	}, enhancer, emit)}
}

// Decode consumes one chunk of raw stream data.
func (d *Decoder) Decode(data []byte) { d.d.Decode(data) }

// Flush closes out the in-progress capture interval.
func (d *Decoder) Flush() { d.d.Flush() }

// Stats reports decode counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		MalformedRecords: d.d.malformed,
		AbandonedFrames:  d.d.abandonedFrames,
	}
}
