// ABOUTME: Playback consumer goroutine: drains the slot pool into the
// ABOUTME: output device, handling flush, underrun and format changes.
package playback

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/Playout-Project/playout-go/internal/pcm"
	"github.com/Playout-Project/playout-go/internal/ring"
	"github.com/Playout-Project/playout-go/internal/sink"
)

// State describes what the consumer goroutine is currently doing.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateUnderrun
	StateFlushing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateUnderrun:
		return "underrun"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	// cycleTime is how long the consumer waits for device space or
	// fresh samples before re-checking its control state.
	cycleTime = 24 * time.Millisecond

	// minWriteBytes below this the device space is not worth a write.
	minWriteBytes = 256
)

type drainStatus int

const (
	drainPlayed drainStatus = iota
	drainEmpty
	drainFatal
)

// Consumer is the playback worker. Run executes its loop until Stop.
type Consumer struct {
	pool *ring.Pool
	dev  sink.Sink
	ctl  *Controller

	// onSlotChange is called after the device was reconfigured for a
	// new slot, or when playback continues into a same-format slot.
	// The engine uses it to reset the sample processors and reapply
	// the volume for the new channel layout.
	onSlotChange func()

	state atomic.Int32
	stop  atomic.Bool
	done  chan struct{}
}

// NewConsumer creates a consumer; call Run in its own goroutine.
func NewConsumer(pool *ring.Pool, dev sink.Sink, ctl *Controller, onSlotChange func()) *Consumer {
	return &Consumer{
		pool:         pool,
		dev:          dev,
		ctl:          ctl,
		onSlotChange: onSlotChange,
		done:         make(chan struct{}),
	}
}

// State returns the consumer's current state.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Stop terminates the consumer loop and waits for it to exit.
func (c *Consumer) Stop() {
	c.stop.Store(true)
	c.ctl.startPlayback()
	<-c.done
}

// Run is the consumer loop. It blocks until Stop is called.
func (c *Consumer) Run() {
	defer close(c.done)
	defer c.state.Store(int32(StateStopped))
	for !c.stop.Load() {
		c.ctl.running.Store(false)
		c.waitStart()
		if c.stop.Load() {
			return
		}
		log.Printf("playback: started at threshold %d bytes", c.ctl.StartThreshold())
		c.play()
	}
}

// waitStart blocks until the producer signals that playback should
// begin. While data is queued but below the start threshold the state
// reads as starting rather than idle.
func (c *Consumer) waitStart() {
	for !c.ctl.running.Load() {
		if c.pool.Filled() > 0 || c.pool.ReadSlot().Buffer.Used() > 0 {
			c.state.Store(int32(StateStarting))
		} else {
			c.state.Store(int32(StateIdle))
		}
		<-c.ctl.wake
		if c.stop.Load() {
			return
		}
	}
}

// play drains slots until the pool runs dry, playback is paused, or
// the device setup becomes invalid.
func (c *Consumer) play() {
	for !c.stop.Load() {
		if n := c.pool.ScanFlush(); n > 0 {
			c.state.Store(int32(StateFlushing))
			log.Printf("playback: flush dropped %d slots", n)
			if err := c.dev.Drop(); err != nil {
				log.Printf("playback: drop: %v", err)
			}
			if !c.enterSlot() {
				return
			}
		}
		c.state.Store(int32(StateRunning))
		status := drainEmpty
		if c.pool.ReadSlot().Buffer.Used() > 0 {
			status = c.drain()
		}
		switch status {
		case drainFatal:
			// Device trouble; back off one cycle and retry.
			time.Sleep(cycleTime)
		case drainEmpty:
			if !c.handleUnderrun() {
				return
			}
		}
		if c.ctl.paused.Load() {
			// Keep the slot position, the device simply gets no
			// further samples until resume.
			return
		}
		if !c.pool.ReadSlot().Hw.Valid() {
			return
		}
	}
}

// handleUnderrun runs when the current slot is exhausted. It advances
// to the next published slot if one is pending, otherwise it lets the
// device play out its remaining samples and goes idle. Returns false
// when the consumer should leave the play loop.
func (c *Consumer) handleUnderrun() bool {
	if c.pool.Filled() == 0 {
		if frames, err := c.dev.DelayFrames(); err == nil && frames > 0 {
			// Device still has queued samples, data may yet arrive.
			time.Sleep(cycleTime)
			return true
		}
		return false
	}
	c.state.Store(int32(StateUnderrun))
	old := *c.pool.ReadSlot()
	s, ok := c.pool.Advance()
	if !ok {
		return false
	}
	if s.Hw != old.Hw || s.Passthrough != old.Passthrough {
		log.Printf("playback: format change %s -> %s", old.Hw, s.Hw)
		return c.enterSlot()
	}
	// Same device setup, just a new stream segment.
	c.onSlotChange()
	return true
}

// enterSlot configures the device for the read slot's format. Returns
// false when the consumer should go idle: either the device rejected
// the format or the slot has not yet buffered enough to start.
func (c *Consumer) enterSlot() bool {
	s := c.pool.ReadSlot()
	if !s.Hw.Valid() {
		return false
	}
	period, err := c.dev.Setup(s.Hw.SampleRate, s.Hw.Channels)
	if err != nil {
		log.Printf("playback: can't set %s: %v", s.Hw, err)
		s.Invalidate()
		return false
	}
	c.ctl.UpdateThreshold(s.Hw, period)
	c.onSlotChange()
	used := s.Buffer.Used()
	threshold := c.ctl.StartThreshold()
	if threshold*4 < used || (c.ctl.videoReady.Load() && threshold < used) {
		return true
	}
	return false
}

// drain moves samples from the read slot into the device until the
// slot or the device space is exhausted. Soft volume and mute are
// applied in place at hand-off.
func (c *Consumer) drain() drainStatus {
	ok, err := c.dev.Wait(cycleTime)
	if err != nil {
		log.Printf("playback: wait: %v", err)
		if rerr := c.dev.Recover(); rerr != nil {
			return drainFatal
		}
		return drainPlayed
	}
	if !ok {
		// No space freed up within a cycle; the device is full and
		// still playing.
		return drainPlayed
	}
	first := true
	for {
		avail, err := c.dev.Avail()
		if err != nil {
			log.Printf("playback: avail: %v", err)
			if rerr := c.dev.Recover(); rerr != nil {
				return drainFatal
			}
			continue
		}
		if avail < minWriteBytes {
			return drainPlayed
		}
		s := c.pool.ReadSlot()
		p := s.Buffer.ReadSlice()
		if len(p) == 0 {
			if first {
				return drainEmpty
			}
			return drainPlayed
		}
		if len(p) > avail {
			p = p[:avail]
		}
		mute := c.ctl.mute.Load()
		if mute || (c.ctl.softVolume.Load() && !s.Passthrough) {
			pcm.AmplifyBytes(p, int(c.ctl.amplifier.Load()), mute)
		}
		n, err := c.dev.Write(p)
		if err != nil {
			if errors.Is(err, sink.ErrUnderrun) {
				log.Printf("playback: underrun, recovering")
				if rerr := c.dev.Recover(); rerr != nil {
					return drainFatal
				}
				continue
			}
			if errors.Is(err, sink.ErrWouldBlock) {
				return drainPlayed
			}
			log.Printf("playback: write: %v", err)
			return drainFatal
		}
		if n <= 0 {
			return drainPlayed
		}
		s.Buffer.Advance(n)
		first = false
	}
}
