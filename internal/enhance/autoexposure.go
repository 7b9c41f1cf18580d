// Package enhance post-processes completed frame events: automatic exposure
// control from frame statistics, and contrast stretching for display
// pipelines. Enhancers plug into the acquisition path through
// acquire.FrameEnhancer and only ever see frame events.
package enhance

import (
	"log"

	"github.com/banshee-data/eventcam/internal/events"
)

const (
	histogramBins = 256
	msvBins       = 5

	// Fraction of the intensity range considered under/over exposed.
	lowBoundary  = 0.13
	highBoundary = 0.58

	// Fraction of pixels in the boundary regions that triggers a
	// proportional correction instead of the mean-sample-value rule.
	underOverFrac       = 0.20
	underOverCorrection = 0.10

	msvTarget     = 2.5
	msvTolerance  = 0.2
	msvCorrection = 50.0

	minExposureMicros = 1
	maxExposureMicros = 1000000
)

// ExposureSetter applies a new exposure time to the device, in microseconds.
type ExposureSetter func(exposureMicros uint32) error

// AutoExposure adjusts the sensor exposure from each completed frame's
// intensity histogram. Heavily under- or over-exposed frames get a
// proportional correction; otherwise the mean sample value of a five-bin
// histogram is steered toward its midpoint.
//
// It runs on the acquisition path, so Calculate is allocation-free and the
// setter must not block.
type AutoExposure struct {
	setter ExposureSetter

	lastExposure uint32

	pixelHist [histogramBins]int64
	msvHist   [msvBins]int64
}

// NewAutoExposure starts from the exposure currently configured on the
// device.
func NewAutoExposure(currentExposureMicros uint32, setter ExposureSetter) *AutoExposure {
	return &AutoExposure{setter: setter, lastExposure: currentExposureMicros}
}

// EnhanceFrame implements acquire.FrameEnhancer.
func (a *AutoExposure) EnhanceFrame(ev events.FrameEvent) {
	next := a.Calculate(ev, a.lastExposure)
	if next < 0 {
		return
	}
	if err := a.setter(uint32(next)); err != nil {
		log.Printf("enhance: set exposure %dus: %v", next, err)
		return
	}
	a.lastExposure = uint32(next)
}

// Calculate returns the next exposure value in microseconds, or -1 when the
// current setting is already optimal for this frame.
func (a *AutoExposure) Calculate(ev events.FrameEvent, lastExposure uint32) int32 {
	clear(a.pixelHist[:])
	clear(a.msvHist[:])

	pixels := ev.Pixels()
	total := int64(len(pixels) / 2)
	if total == 0 {
		return -1
	}
	for i := 0; i+1 < len(pixels); i += 2 {
		// Pixels are little-endian u16; the histogram uses the top byte.
		v := int(pixels[i+1])
		a.pixelHist[v]++
		a.msvHist[v*msvBins/histogramBins]++
	}

	var underCount, overCount int64
	lowCut := float64(lowBoundary * histogramBins)
	highCut := float64(highBoundary * histogramBins)
	for i := 0; i < int(lowCut); i++ {
		underCount += a.pixelHist[i]
	}
	for i := int(highCut); i < histogramBins; i++ {
		overCount += a.pixelHist[i]
	}
	underFrac := float64(underCount) / float64(total)
	overFrac := float64(overCount) / float64(total)

	last := float64(lastExposure)
	switch {
	case underFrac > underOverFrac && overFrac > underOverFrac:
		// High-contrast scene with both tails heavy: no single exposure
		// fixes it, leave it alone.
		return -1
	case underFrac > underOverFrac:
		return clampExposure(last + last*underOverCorrection*(underFrac/underOverFrac))
	case overFrac > underOverFrac:
		return clampExposure(last - last*underOverCorrection*(overFrac/underOverFrac))
	}

	var msvNum, msvDenom float64
	for i, n := range a.msvHist {
		msvNum += float64(i+1) * float64(n)
		msvDenom += float64(n)
	}
	msvErr := msvTarget - msvNum/msvDenom
	if msvErr > -msvTolerance && msvErr < msvTolerance {
		return -1
	}
	return clampExposure(last + msvErr*msvCorrection*(last/float64(histogramBins)+1))
}

func clampExposure(v float64) int32 {
	if v < minExposureMicros {
		return minExposureMicros
	}
	if v > maxExposureMicros {
		return maxExposureMicros
	}
	return int32(v)
}

// Chain runs several enhancers in order over each frame.
type Chain []interface {
	EnhanceFrame(ev events.FrameEvent)
}

func (c Chain) EnhanceFrame(ev events.FrameEvent) {
	for _, e := range c {
		e.EnhanceFrame(ev)
	}
}
