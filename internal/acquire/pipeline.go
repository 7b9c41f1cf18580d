// Package acquire runs the data path between a device transport and the
// consumer: a pool of bulk transfer buffers kept perpetually in flight, the
// raw stream decoder, and a bounded publish queue with drop-oldest
// backpressure so a slow consumer costs memory, never device throughput.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/eventcam/internal/config"
	"github.com/banshee-data/eventcam/internal/events"
)

var (
	// ErrStopped is returned by NextContainer once the pipeline has
	// stopped and the queue is drained.
	ErrStopped = errors.New("acquire: pipeline stopped")

	// ErrAlreadyStarted is returned by Start on a running pipeline.
	ErrAlreadyStarted = errors.New("acquire: pipeline already started")

	// ErrShutdownTimeout is returned by Stop when in-flight transfers do
	// not quiesce within the shutdown budget.
	ErrShutdownTimeout = errors.New("acquire: shutdown timed out waiting for transfers")
)

// fatalFailureThreshold is the number of consecutive transfer failures after
// which the pipeline declares the device gone.
const fatalFailureThreshold = 3

// Transport is the slice of the device transport the pipeline drives.
type Transport interface {
	// SubmitTransfer hands buf over for one asynchronous data transfer;
	// complete fires exactly once and must not block.
	SubmitTransfer(buf []byte, complete func(n int, err error)) error

	// CancelAll aborts in-flight transfers; their completions still fire.
	CancelAll() error
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Containers        uint64 // containers produced by the decoder
	DroppedContainers uint64 // evicted by drop-oldest backpressure
	TransferErrors    uint64 // failed bulk transfers
	MalformedRecords  uint64 // raw records rejected by the decoder
	AbandonedFrames   uint64 // frame readouts truncated mid-stream
}

// Pipeline owns the transfer loop and the container queue.
//
// Lifecycle: Start submits the pool and returns; completions decode and
// resubmit until Stop (or a fatal transport failure) retires the slots. Stop
// cancels outstanding transfers, waits for the slots to drain within the
// shutdown budget, flushes the partial capture interval, and closes the
// queue so NextContainer finishes with ErrStopped after the backlog.
type Pipeline struct {
	tr       Transport
	acq      config.Acquisition
	onFatal  func(error) // must not block; may be nil
	enhancer FrameEnhancer

	// mu serializes decoder access across transfer completions.
	mu  sync.Mutex
	dec *streamDecoder

	out chan *events.EventPacketContainer

	started   atomic.Bool
	stopping  atomic.Bool
	slots     sync.WaitGroup
	fatalOnce sync.Once
	stopOnce  sync.Once

	containers       atomic.Uint64
	dropped          atomic.Uint64
	transferErrors   atomic.Uint64
	consecutiveFails atomic.Uint32
}

// NewPipeline builds a stopped pipeline. source tags every produced packet;
// dims bounds frame geometry; enhancer may be nil.
func NewPipeline(tr Transport, acq config.Acquisition, source int16,
	maxFrameX, maxFrameY, frameChannels int32, enhancer FrameEnhancer,
	onFatal func(error)) *Pipeline {
	p := &Pipeline{
		tr:       tr,
		acq:      acq,
		onFatal:  onFatal,
		enhancer: enhancer,
		out:      make(chan *events.EventPacketContainer, acq.QueueBound),
	}
	p.dec = newStreamDecoder(acq, source, frameDims{
		maxX:     maxFrameX,
		maxY:     maxFrameY,
		channels: frameChannels,
	}, enhancer, p.publish)
	return p
}

// Start submits the transfer pool. It returns once every slot is in flight.
func (p *Pipeline) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	for i := 0; i < p.acq.PoolSize; i++ {
		buf := make([]byte, p.acq.TransferBytes)
		p.slots.Add(1)
		if err := p.submit(buf); err != nil {
			p.slots.Done()
			p.stopping.Store(true)
			_ = p.tr.CancelAll()
			return fmt.Errorf("start acquisition: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) submit(buf []byte) error {
	return p.tr.SubmitTransfer(buf, func(n int, err error) {
		p.complete(buf, n, err)
	})
}

// complete runs in the transport's completion context: decode, then resubmit
// the same buffer, retiring the slot on stop or repeated failure.
func (p *Pipeline) complete(buf []byte, n int, err error) {
	if err != nil {
		p.transferErrors.Add(1)
		if !p.stopping.Load() && p.consecutiveFails.Add(1) >= fatalFailureThreshold {
			p.fatal(fmt.Errorf("acquire: %d consecutive transfer failures: %w",
				fatalFailureThreshold, err))
		}
	} else {
		p.consecutiveFails.Store(0)
		if n > 0 {
			p.mu.Lock()
			p.dec.Decode(buf[:n])
			p.mu.Unlock()
		}
	}

	if p.stopping.Load() {
		p.slots.Done()
		return
	}
	if err := p.submit(buf); err != nil {
		p.transferErrors.Add(1)
		if p.consecutiveFails.Add(1) >= fatalFailureThreshold {
			p.fatal(fmt.Errorf("acquire: resubmit failed: %w", err))
		}
		p.slots.Done()
	}
}

// fatal reports an unrecoverable transport failure exactly once and stops
// feeding the device. The callback must hand off actual teardown; it runs in
// the transfer-completion context.
func (p *Pipeline) fatal(err error) {
	p.fatalOnce.Do(func() {
		log.Printf("acquire: fatal: %v", err)
		p.stopping.Store(true)
		if p.onFatal != nil {
			p.onFatal(err)
		}
	})
}

// publish enqueues a container, evicting the oldest entries while the
// consumer lags.
func (p *Pipeline) publish(c *events.EventPacketContainer) {
	p.containers.Add(1)
	for {
		select {
		case p.out <- c:
			return
		default:
		}
		select {
		case <-p.out:
			p.dropped.Add(1)
		default:
		}
	}
}

// NextContainer blocks for the next container. After Stop it drains the
// backlog, then returns ErrStopped.
func (p *Pipeline) NextContainer(ctx context.Context) (*events.EventPacketContainer, error) {
	select {
	case c, ok := <-p.out:
		if !ok {
			return nil, ErrStopped
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop cancels outstanding transfers and waits for the slots to retire
// within the shutdown budget. The partial capture interval is flushed into
// the queue before it closes, so nothing decoded is lost. Safe to call more
// than once; only the first call tears down.
func (p *Pipeline) Stop() error {
	if !p.started.Load() {
		return ErrStopped
	}
	p.stopping.Store(true)
	var err error
	p.stopOnce.Do(func() {
		if cerr := p.tr.CancelAll(); cerr != nil {
			log.Printf("acquire: cancel transfers: %v", cerr)
		}
		done := make(chan struct{})
		go func() {
			p.slots.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(p.acq.ShutdownTimeout):
			err = ErrShutdownTimeout
			return
		}
		p.mu.Lock()
		p.dec.Flush()
		p.mu.Unlock()
		close(p.out)
	})
	return err
}

// Statistics snapshots the pipeline counters.
func (p *Pipeline) Statistics() Stats {
	p.mu.Lock()
	malformed := p.dec.malformed
	abandoned := p.dec.abandonedFrames
	p.mu.Unlock()
	return Stats{
		Containers:        p.containers.Load(),
		DroppedContainers: p.dropped.Load(),
		TransferErrors:    p.transferErrors.Load(),
		MalformedRecords:  malformed,
		AbandonedFrames:   abandoned,
	}
}
