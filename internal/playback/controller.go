// ABOUTME: Shared playback control state: start gating, A/V sync skip,
// ABOUTME: delay and clock queries used by both producer and consumer.
package playback

import (
	"log"
	"sync/atomic"

	"github.com/Playout-Project/playout-go/internal/ring"
	"github.com/Playout-Project/playout-go/internal/sink"
	"github.com/Playout-Project/playout-go/pkg/audio"
)

const (
	// DefaultBufferTimeMs is how much audio must be queued before
	// playback starts when no explicit buffer time is configured.
	DefaultBufferTimeMs = 336

	// videoLeadTicks accounts for the video pipeline being ahead of
	// the displayed frame by roughly 15 frames of 20ms each.
	videoLeadTicks = 15 * 20 * audio.TicksPerMs

	// maxSyncSkipTicks bounds a single sync correction to 2 seconds.
	maxSyncSkipTicks = 2000 * audio.TicksPerMs
)

// Controller holds the control state shared between the enqueue path
// and the consumer goroutine. All fields are safe for concurrent use.
type Controller struct {
	pool *ring.Pool
	dev  sink.Sink

	running    atomic.Bool
	paused     atomic.Bool
	videoReady atomic.Bool

	skipBytes      atomic.Int64
	bufferTimeMs   atomic.Int32
	avDelayTicks   atomic.Int64
	startThreshold atomic.Int64

	// Soft volume applied by the consumer at hand-off.
	amplifier  atomic.Int32
	mute       atomic.Bool
	softVolume atomic.Bool

	wake chan struct{}
}

// NewController creates a controller bound to the slot pool and the
// output device.
func NewController(pool *ring.Pool, dev sink.Sink) *Controller {
	c := &Controller{
		pool: pool,
		dev:  dev,
		wake: make(chan struct{}, 1),
	}
	c.bufferTimeMs.Store(DefaultBufferTimeMs)
	c.amplifier.Store(1000)
	return c
}

// Wake nudges the consumer goroutine without blocking.
func (c *Controller) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Running reports whether the consumer is actively draining samples.
func (c *Controller) Running() bool { return c.running.Load() }

// Paused reports whether playback is paused.
func (c *Controller) Paused() bool { return c.paused.Load() }

// SetPaused pauses or resumes the consumer. Resuming wakes it so it
// picks up where it left off.
func (c *Controller) SetPaused(paused bool) {
	c.paused.Store(paused)
	if !paused {
		c.startPlayback()
	}
}

// SetBufferTime changes the start buffering time in milliseconds.
// Zero restores the default.
func (c *Controller) SetBufferTime(ms int) {
	if ms == 0 {
		ms = DefaultBufferTimeMs
	}
	c.bufferTimeMs.Store(int32(ms))
}

// BufferTime returns the configured buffering time in milliseconds.
func (c *Controller) BufferTime() int { return int(c.bufferTimeMs.Load()) }

// SetAVDelay sets the extra audio delay relative to video, in 90kHz
// ticks. Positive values delay audio.
func (c *Controller) SetAVDelay(ticks int64) { c.avDelayTicks.Store(ticks) }

// AVDelay returns the configured audio delay in 90kHz ticks.
func (c *Controller) AVDelay() int64 { return c.avDelayTicks.Load() }

// SetAmplifier changes the soft amplification factor in per-mille and
// the mute state applied by the consumer at hand-off.
func (c *Controller) SetAmplifier(permille int, mute bool) {
	c.amplifier.Store(int32(permille))
	c.mute.Store(mute)
}

// SetSoftVolume selects the software amplifier over the device mixer.
func (c *Controller) SetSoftVolume(on bool) { c.softVolume.Store(on) }

// SoftVolume reports whether the software amplifier is active.
func (c *Controller) SoftVolume() bool { return c.softVolume.Load() }

// ForceStart wakes the consumer even below the start threshold, used
// to get a flush request processed while idle.
func (c *Controller) ForceStart() { c.startPlayback() }

// StartThreshold returns the current start threshold in bytes.
func (c *Controller) StartThreshold() int { return int(c.startThreshold.Load()) }

// UpdateThreshold recomputes the start threshold after the device was
// (re)configured for format f with the given period size.
func (c *Controller) UpdateThreshold(f audio.Format, periodBytes int) {
	threshold := periodBytes
	delay := int(c.bufferTimeMs.Load())
	if av := c.avDelayTicks.Load(); av > 0 {
		delay += int(av / audio.TicksPerMs)
	}
	if min := f.BytesPerSecond() * delay / 1000; threshold < min {
		threshold = min
	}
	// Never demand more than a third of a slot buffer.
	if max := ring.SlotBufferSize / 3; threshold > max {
		threshold = max
	}
	c.startThreshold.Store(int64(threshold))
}

// EvaluateStart is called on the producer path after new samples were
// buffered. It consumes pending sync skip debt and starts playback
// once enough audio is queued. Without a video-ready signal four times
// the threshold is required, so audio-only streams still start.
func (c *Controller) EvaluateStart() {
	s := c.pool.WriteSlot()
	if skip := c.skipBytes.Load(); skip > 0 {
		n := int64(s.Buffer.Used())
		if skip < n {
			n = skip
		}
		n -= n % int64(s.Hw.FrameBytes())
		if n > 0 {
			s.Buffer.Advance(int(n))
			c.skipBytes.Add(-n)
		}
	}
	if c.running.Load() {
		return
	}
	used := s.Buffer.Used()
	threshold := int(c.startThreshold.Load())
	if threshold*4 < used || (c.videoReady.Load() && threshold < used) {
		c.startPlayback()
	}
}

// VideoReady tells the controller that video output is running and the
// given PTS is about to be displayed. If playback has not started yet
// the queued audio is trimmed so that it lines up with the video clock,
// then playback starts as soon as the threshold is met.
func (c *Controller) VideoReady(pts audio.PTS) {
	defer c.videoReady.Store(true)
	if !pts.Valid {
		log.Printf("playback: video ready without valid pts")
		return
	}
	s := c.pool.WriteSlot()
	if !s.Hw.Valid() || !s.PTS.Valid {
		return
	}
	if c.running.Load() {
		return
	}
	used := s.Buffer.Used()
	audioPTS := s.PTS.Ticks - s.Hw.BytesToTicks(used)
	skip := pts.Ticks - videoLeadTicks -
		int64(c.bufferTimeMs.Load())*audio.TicksPerMs -
		audioPTS + c.avDelayTicks.Load()
	if skip > 0 && skip < maxSyncSkipTicks {
		n := s.Hw.TicksToBytes(skip)
		if n > used {
			// Not yet received; skip it as it arrives.
			c.skipBytes.Store(int64(n - used))
			n = used
		}
		log.Printf("playback: sync skip %dms %d bytes", skip/audio.TicksPerMs, n)
		s.Buffer.Advance(n)
		used = s.Buffer.Used()
	}
	if int(c.startThreshold.Load()) < used {
		c.startPlayback()
	}
}

// ResetSync clears the video-ready state and any pending skip debt.
// Called when the buffers are flushed.
func (c *Controller) ResetSync() {
	c.videoReady.Store(false)
	c.skipBytes.Store(0)
}

// Delay returns the remaining playback latency in 90kHz ticks: the
// samples buffered in the device plus the unread part of the current
// slot. Zero means the delay is unknown, which happens before playback
// starts, when the slot format is invalid, or while older slots are
// still queued behind the current one.
func (c *Controller) Delay() int64 {
	if !c.running.Load() {
		return 0
	}
	s := c.pool.ReadSlot()
	if !s.Hw.Valid() {
		return 0
	}
	if c.pool.Filled() > 0 {
		// More slots pending: the device position belongs to an
		// older stream segment, the result would be garbage.
		return 0
	}
	frames, err := c.dev.DelayFrames()
	if err != nil || frames < 0 {
		frames = 0
	}
	ticks := int64(frames) * audio.TicksPerMs * 1000 / int64(s.Hw.SampleRate)
	ticks += s.Hw.BytesToTicks(s.Buffer.Used())
	return ticks
}

// Clock returns the PTS of the sample currently being played, derived
// from the slot's write-side PTS minus the remaining delay. The result
// is invalid while the delay is unknown.
func (c *Controller) Clock() audio.PTS {
	s := c.pool.ReadSlot()
	if !s.PTS.Valid {
		return audio.PTS{}
	}
	delay := c.Delay()
	if delay == 0 {
		return audio.PTS{}
	}
	return audio.NewPTS(s.PTS.Ticks - delay)
}

func (c *Controller) startPlayback() {
	c.running.Store(true)
	c.Wake()
}
