// ABOUTME: Producer-facing playout engine: format setup, sample
// ABOUTME: enqueue with processing, flush, volume and clock queries.
package playout

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Playout-Project/playout-go/internal/caps"
	"github.com/Playout-Project/playout-go/internal/pcm"
	"github.com/Playout-Project/playout-go/internal/playback"
	"github.com/Playout-Project/playout-go/internal/ring"
	"github.com/Playout-Project/playout-go/internal/sink"
	"github.com/Playout-Project/playout-go/pkg/audio"
)

const (
	// slotWait bounds the wait for a free slot when all are pending.
	slotWait = 48 * time.Millisecond

	// flushWait bounds the wait for the consumer to drain a flush.
	flushWait = 48 * time.Millisecond

	// defaultMaxCompression matches the compressor's reset factor, so
	// an unconfigured compressor can use its full working range.
	defaultMaxCompression = 2000

	// defaultMaxNormalize keeps the normalizer at unity until a
	// ceiling is configured.
	defaultMaxNormalize = 1000
)

var (
	// ErrNotSetup is returned by Enqueue before a Setup call.
	ErrNotSetup = errors.New("playout: no stream format set up")

	// ErrRingFull is returned when samples were dropped because the
	// slot buffer had no room. The caller should back off.
	ErrRingFull = errors.New("playout: ring buffer full")

	// ErrFlushTimeout is returned when the consumer did not drain the
	// flush within the bounded wait.
	ErrFlushTimeout = errors.New("playout: flush timed out")
)

// Config parameterizes an Engine.
type Config struct {
	// Device names the ALSA PCM ("hw:0,0" form). Empty selects the
	// portable backend.
	Device string

	// Sink overrides the output backend, mainly for tests.
	Sink sink.Sink
}

// Engine is the playout core. One Engine owns one output device, the
// slot pool and the consumer goroutine.
type Engine struct {
	id       string
	dev      sink.Sink
	matrix   *caps.Matrix
	pool     *ring.Pool
	ctl      *playback.Controller
	consumer *playback.Consumer

	// Producer-side sample processors, guarded by procMu. The
	// consumer requests a reset across slot transitions.
	procMu     sync.Mutex
	compressor *pcm.Compressor
	normalizer *pcm.Normalizer
	compress   atomic.Bool
	normalize  atomic.Bool
	resetProcs atomic.Bool

	// Volume policy.
	volMu         sync.Mutex
	volume        int
	stereoDescent int
	softVolume    bool

	passthrough bool
	closed      atomic.Bool
}

// New opens the output device, probes its capabilities and starts the
// consumer goroutine.
func New(cfg Config) (*Engine, error) {
	dev := cfg.Sink
	if dev == nil {
		dev = sink.Default(cfg.Device)
	}
	if err := dev.Open(false); err != nil {
		return nil, fmt.Errorf("playout: open sink: %w", err)
	}
	e := &Engine{
		id:         uuid.NewString()[:8],
		dev:        dev,
		matrix:     caps.Probe(dev),
		pool:       ring.NewPool(),
		volume:     1000,
		softVolume: true,
		compressor: pcm.NewCompressor(defaultMaxCompression),
		normalizer: pcm.NewNormalizer(defaultMaxNormalize),
	}
	e.ctl = playback.NewController(e.pool, dev)
	e.ctl.SetSoftVolume(true)
	e.consumer = playback.NewConsumer(e.pool, dev, e.ctl, e.onSlotChange)
	go e.consumer.Run()
	log.Printf("playout[%s]: engine started", e.id)
	return e, nil
}

// Close stops the consumer and releases the device.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.consumer.Stop()
	err := e.dev.Close()
	log.Printf("playout[%s]: engine closed", e.id)
	return err
}

// Setup opens a new stream segment with the given input format. The
// hardware channel count is resolved through the capability matrix;
// unsupported rate/channel combinations are rejected.
func (e *Engine) Setup(sampleRate, channels uint, passthrough bool) error {
	in := audio.Format{SampleRate: sampleRate, Channels: channels, Passthrough: passthrough}
	if !in.Valid() {
		return fmt.Errorf("playout: bad format %s", in)
	}
	hwChannels, ok := e.matrix.Lookup(sampleRate, channels)
	if !ok {
		return fmt.Errorf("playout: %s: %w", in, sink.ErrUnsupported)
	}
	if passthrough != e.passthrough {
		if err := e.dev.Open(passthrough); err != nil {
			return fmt.Errorf("playout: %s: %w", in, err)
		}
		e.passthrough = passthrough
	}
	hw := audio.Format{SampleRate: sampleRate, Channels: hwChannels, Passthrough: passthrough}
	if err := e.addSlot(in, hw); err != nil {
		return err
	}
	// Preliminary threshold from the buffer time alone; the consumer
	// refines it with the device period once it takes the slot over.
	e.ctl.UpdateThreshold(hw, 0)
	e.ctl.Wake()
	log.Printf("playout[%s]: setup %s -> %d hw channels", e.id, in, hwChannels)
	return nil
}

// addSlot allocates the next pool slot, briefly waiting for the
// consumer when every slot is pending.
func (e *Engine) addSlot(in, hw audio.Format) error {
	deadline := time.After(slotWait)
	for {
		err := e.pool.Add(in, hw)
		if !errors.Is(err, ring.ErrPoolFull) {
			return err
		}
		e.ctl.ForceStart()
		select {
		case <-e.pool.Drained():
		case <-deadline:
			return fmt.Errorf("playout: setup: %w", ring.ErrPoolFull)
		}
	}
}

// Enqueue appends interleaved S16LE samples for the current segment.
// pts stamps the first sample of the chunk; an invalid pts extends the
// previous timestamp by the chunk duration.
func (e *Engine) Enqueue(samples []byte, pts audio.PTS) error {
	s := e.pool.WriteSlot()
	if !s.Hw.Valid() {
		return ErrNotSetup
	}
	if s.PacketSize == 0 && len(samples) > 0 {
		s.PacketSize = len(samples)
		log.Printf("playout[%s]: packet size %d bytes", e.id, len(samples))
	}
	buf := samples
	if !s.Passthrough && (e.compress.Load() || e.normalize.Load() || s.In.Channels != s.Hw.Channels) {
		buf = e.process(s, samples)
	}
	n := s.Buffer.Write(buf)
	if pts.Valid {
		s.PTS = pts.Add(s.Hw.BytesToTicks(n))
	} else if s.PTS.Valid {
		s.PTS = s.PTS.Add(s.Hw.BytesToTicks(n))
	}
	e.ctl.EvaluateStart()
	if n != len(buf) {
		log.Printf("playout[%s]: dropped %d of %d bytes", e.id, len(buf)-n, len(buf))
		return ErrRingFull
	}
	return nil
}

// process remixes the chunk to the hardware channel layout and runs
// the enabled dynamics processors. Returns a fresh byte slice.
func (e *Engine) process(s *ring.Slot, samples []byte) []byte {
	in := pcm.FromBytes(samples)
	out := in
	if s.In.Channels != s.Hw.Channels {
		frames := len(in) / int(s.In.Channels)
		out = make([]int16, frames*int(s.Hw.Channels))
		if err := pcm.Remix(in, int(s.In.Channels), out, int(s.Hw.Channels)); err != nil {
			log.Printf("playout[%s]: remix: %v", e.id, err)
		}
	}
	e.procMu.Lock()
	if e.resetProcs.Swap(false) {
		e.compressor.Reset()
		e.normalizer.Reset()
	}
	if e.compress.Load() {
		e.compressor.Process(out)
	}
	if e.normalize.Load() {
		e.normalizer.Process(out)
	}
	e.procMu.Unlock()
	return pcm.ToBytes(out)
}

// Flush discards all buffered audio. It enqueues a flush marker slot
// and waits a bounded time for the consumer to act on it.
func (e *Engine) Flush() error {
	err := e.pool.AddFlush()
	if errors.Is(err, ring.ErrPoolFull) {
		// All slots pending, briefly wait for the consumer; giving up
		// keeps stale audio playing rather than blocking the caller.
		slotDeadline := time.After(slotWait)
		for errors.Is(err, ring.ErrPoolFull) {
			e.ctl.ForceStart()
			select {
			case <-e.pool.Drained():
			case <-slotDeadline:
				return fmt.Errorf("playout: flush: %w", ErrFlushTimeout)
			}
			err = e.pool.AddFlush()
		}
	}
	if err != nil {
		return fmt.Errorf("playout: flush: %w", err)
	}
	e.ctl.ResetSync()
	deadline := time.After(flushWait)
	for e.pool.Filled() > 0 {
		e.ctl.ForceStart()
		select {
		case <-e.pool.Drained():
		case <-deadline:
			if e.pool.Filled() > 0 {
				return ErrFlushTimeout
			}
		}
	}
	return nil
}

// Pause suspends the consumer at its current position.
func (e *Engine) Pause() {
	if e.ctl.Paused() {
		return
	}
	log.Printf("playout[%s]: paused", e.id)
	e.ctl.SetPaused(true)
}

// Resume continues playback after Pause.
func (e *Engine) Resume() {
	if !e.ctl.Paused() {
		return
	}
	log.Printf("playout[%s]: resumed", e.id)
	e.ctl.SetPaused(false)
}

// SetVolume sets the playback volume in per-mille of full scale. Zero
// mutes. With soft volume disabled the device mixer is used when it
// supports it.
func (e *Engine) SetVolume(permille int) {
	if permille < 0 {
		permille = 0
	} else if permille > 1000 {
		permille = 1000
	}
	e.volMu.Lock()
	e.volume = permille
	e.volMu.Unlock()
	e.applyVolume()
}

// applyVolume recomputes the amplifier from the volume policy and the
// current segment's channel layout.
func (e *Engine) applyVolume() {
	e.volMu.Lock()
	volume := e.volume
	amp := volume
	s := e.pool.ReadSlot()
	if e.stereoDescent > 0 && s.In.Channels == 2 && !s.Passthrough {
		amp -= e.stereoDescent
		if amp < 0 {
			amp = 0
		} else if amp > 1000 {
			amp = 1000
		}
	}
	soft := e.softVolume
	e.volMu.Unlock()
	e.ctl.SetAmplifier(amp, volume == 0)
	if !soft {
		if err := e.dev.SetVolume(amp); err != nil {
			log.Printf("playout[%s]: device volume: %v", e.id, err)
			e.ctl.SetSoftVolume(true)
			return
		}
		e.ctl.SetSoftVolume(false)
	}
}

// SetSoftVolume switches between the software amplifier and the
// device mixer.
func (e *Engine) SetSoftVolume(on bool) {
	e.volMu.Lock()
	e.softVolume = on
	e.volMu.Unlock()
	e.ctl.SetSoftVolume(on)
	e.applyVolume()
}

// SetStereoDescent reduces loudness by the given per-mille for stereo
// non-pass-through segments.
func (e *Engine) SetStereoDescent(permille int) {
	e.volMu.Lock()
	e.stereoDescent = permille
	e.volMu.Unlock()
	e.applyVolume()
}

// SetCompression enables the dynamic range compressor. maxFactor is
// the amplification ceiling in per-mille; zero keeps the current one.
func (e *Engine) SetCompression(on bool, maxFactor int) {
	e.compress.Store(on)
	e.procMu.Lock()
	defer e.procMu.Unlock()
	if maxFactor > 0 {
		e.compressor.SetMax(maxFactor)
	}
	e.compressor.Reset()
}

// SetNormalize enables the volume normalizer. maxFactor is the
// amplification ceiling in per-mille; zero keeps the current one.
func (e *Engine) SetNormalize(on bool, maxFactor int) {
	e.normalize.Store(on)
	e.procMu.Lock()
	defer e.procMu.Unlock()
	if maxFactor > 0 {
		e.normalizer.SetMax(maxFactor)
	}
	e.normalizer.Reset()
}

// SetBufferTime changes the start buffering target in milliseconds;
// zero restores the default.
func (e *Engine) SetBufferTime(ms int) { e.ctl.SetBufferTime(ms) }

// SetAVDelay delays audio relative to video by the given amount.
// Negative values advance it.
func (e *Engine) SetAVDelay(d time.Duration) {
	e.ctl.SetAVDelay(int64(d/time.Millisecond) * audio.TicksPerMs)
}

// ReportVideoReady tells the engine that video output is up and the
// frame with the given PTS is about to be shown. Queued audio ahead of
// it is skipped and playback starts once enough is buffered.
func (e *Engine) ReportVideoReady(pts audio.PTS) { e.ctl.VideoReady(pts) }

// GetDelay returns the remaining playback latency in 90kHz ticks, or
// zero when it is unknown.
func (e *Engine) GetDelay() int64 { return e.ctl.Delay() }

// GetClock returns the PTS of the sample currently audible. The result
// is invalid while no reliable clock exists.
func (e *Engine) GetClock() audio.PTS { return e.ctl.Clock() }

// FreeBytes returns the writable room in the current segment.
func (e *Engine) FreeBytes() int { return e.pool.WriteSlot().Buffer.Free() }

// UsedBytes returns the queued bytes in the current segment.
func (e *Engine) UsedBytes() int { return e.pool.WriteSlot().Buffer.Used() }

// Running reports whether the consumer is draining samples.
func (e *Engine) Running() bool { return e.ctl.Running() }

// State returns the consumer state for diagnostics.
func (e *Engine) State() playback.State { return e.consumer.State() }

// ID returns the engine instance id used in log lines.
func (e *Engine) ID() string { return e.id }

// onSlotChange runs on the consumer goroutine when playback crosses
// into a new segment: the volume is recomputed for the new channel
// layout and the processors start fresh.
func (e *Engine) onSlotChange() {
	e.resetProcs.Store(true)
	e.applyVolume()
}
