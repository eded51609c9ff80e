// ABOUTME: Tests for the consumer goroutine: start gating, draining,
// ABOUTME: flush, format renegotiation and soft volume at hand-off.
package playback

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Playout-Project/playout-go/internal/pcm"
	"github.com/Playout-Project/playout-go/internal/ring"
	"github.com/Playout-Project/playout-go/internal/sinktest"
	"github.com/Playout-Project/playout-go/pkg/audio"
)

type consumerFixture struct {
	pool        *ring.Pool
	dev         *sinktest.MockSink
	ctl         *Controller
	consumer    *Consumer
	slotChanges atomic.Int32
}

func startConsumer(t *testing.T, dev *sinktest.MockSink) *consumerFixture {
	t.Helper()
	f := &consumerFixture{pool: ring.NewPool(), dev: dev}
	if err := dev.Open(false); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.ctl = NewController(f.pool, dev)
	f.consumer = NewConsumer(f.pool, dev, f.ctl, func() {
		f.slotChanges.Add(1)
	})
	go f.consumer.Run()
	t.Cleanup(f.consumer.Stop)
	return f
}

// enqueue publishes a slot with the given payload and triggers start
// evaluation the way the producer does.
func (f *consumerFixture) enqueue(t *testing.T, format audio.Format, payload []byte) {
	t.Helper()
	if err := f.pool.Add(format, format); err != nil {
		t.Fatalf("add slot: %v", err)
	}
	s := f.pool.WriteSlot()
	if n := s.Buffer.Write(payload); n != len(payload) {
		t.Fatalf("short slot write: %d of %d", n, len(payload))
	}
	f.ctl.UpdateThreshold(format, 0)
	f.ctl.EvaluateStart()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestConsumerPlaysQueuedAudio(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)

	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 5000)
	f.enqueue(t, stereo48k(), payload)

	waitFor(t, "payload to reach the device", func() bool {
		return len(dev.Written()) == len(payload)
	})
	if !bytes.Equal(dev.Written(), payload) {
		t.Error("device received mangled samples")
	}
	setups := dev.Setups()
	if len(setups) != 1 || setups[0] != stereo48k() {
		t.Errorf("setups = %v, want one 48000Hz stereo", setups)
	}
	if f.slotChanges.Load() == 0 {
		t.Error("slot-change hook never called")
	}
}

func TestConsumerIdleWithoutThreshold(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	// Default 336ms buffer time: 2000 frames is far below threshold
	// and there is no video-ready signal.
	f.enqueue(t, stereo48k(), make([]byte, 8000))

	time.Sleep(50 * time.Millisecond)
	if got := len(dev.Written()); got != 0 {
		t.Errorf("device got %d bytes before start threshold", got)
	}
	if f.consumer.State() == StateRunning {
		t.Error("consumer running below start threshold")
	}
}

func TestConsumerSoftVolume(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)
	f.ctl.softVolume.Store(true)
	f.ctl.amplifier.Store(500)

	samples := make([]int16, 10000)
	for i := range samples {
		samples[i] = 1000
	}
	f.enqueue(t, stereo48k(), pcm.ToBytes(samples))

	waitFor(t, "attenuated samples", func() bool {
		return len(dev.Written()) == len(samples)*2
	})
	got := pcm.FromBytes(dev.Written())
	for i, v := range got {
		if v != 500 {
			t.Fatalf("sample %d = %d, want 500", i, v)
		}
	}
}

func TestConsumerMuteWritesSilence(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)
	f.ctl.mute.Store(true)

	samples := make([]int16, 10000)
	for i := range samples {
		samples[i] = 12345
	}
	f.enqueue(t, stereo48k(), pcm.ToBytes(samples))

	waitFor(t, "muted samples", func() bool {
		return len(dev.Written()) == len(samples)*2
	})
	for i, v := range pcm.FromBytes(dev.Written()) {
		if v != 0 {
			t.Fatalf("sample %d = %d, want silence", i, v)
		}
	}
}

func TestConsumerFlushDropsPending(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)
	f.enqueue(t, stereo48k(), make([]byte, 20000))
	waitFor(t, "playback start", func() bool {
		return len(dev.Written()) == 20000
	})

	if err := f.pool.AddFlush(); err != nil {
		t.Fatalf("add flush: %v", err)
	}
	f.ctl.Wake()

	waitFor(t, "flush to drain the pool", func() bool {
		return f.pool.Filled() == 0 && dev.Dropped() == 1
	})
	waitFor(t, "consumer to leave running", func() bool {
		return f.consumer.State() != StateRunning
	})
}

func TestConsumerFormatChange(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)
	f.enqueue(t, stereo48k(), make([]byte, 20000))
	waitFor(t, "first segment", func() bool {
		return len(dev.Written()) == 20000
	})

	mono := audio.Format{SampleRate: 44100, Channels: 1}
	f.enqueue(t, mono, make([]byte, 20000))
	waitFor(t, "renegotiated segment", func() bool {
		return len(dev.Written()) == 40000
	})
	setups := dev.Setups()
	if len(setups) != 2 || setups[1] != mono {
		t.Errorf("setups = %v, want 48000Hz stereo then 44100Hz mono", setups)
	}
}

func TestConsumerRejectedFormatInvalidatesSlot(t *testing.T) {
	dev := &sinktest.MockSink{SupportedRates: []uint{48000}, SupportedChannels: []uint{2}}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)

	bad := audio.Format{SampleRate: 22050, Channels: 2}
	f.enqueue(t, bad, make([]byte, 20000))

	waitFor(t, "slot invalidation", func() bool {
		return !f.pool.ReadSlot().Hw.Valid() && f.pool.Filled() == 0
	})
	if got := len(dev.Written()); got != 0 {
		t.Errorf("device got %d bytes for rejected format", got)
	}
}

func TestConsumerRecoversFromUnderrun(t *testing.T) {
	dev := &sinktest.MockSink{FailWrites: 1}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)

	payload := bytes.Repeat([]byte{9, 9, 9, 9}, 5000)
	f.enqueue(t, stereo48k(), payload)

	waitFor(t, "recovery and replay", func() bool {
		return len(dev.Written()) == len(payload)
	})
}

func TestConsumerPauseAndResume(t *testing.T) {
	dev := &sinktest.MockSink{}
	f := startConsumer(t, dev)
	f.ctl.SetBufferTime(1)
	f.enqueue(t, stereo48k(), make([]byte, 20000))
	waitFor(t, "playback start", func() bool {
		return len(dev.Written()) == 20000
	})

	f.ctl.SetPaused(true)
	waitFor(t, "consumer to pause", func() bool {
		return f.consumer.State() != StateRunning
	})

	// More samples arrive while paused; nothing may be written.
	f.pool.ReadSlot().Buffer.Write(make([]byte, 4000))
	f.ctl.Wake()
	time.Sleep(50 * time.Millisecond)
	if got := len(dev.Written()); got != 20000 {
		t.Errorf("device got %d bytes while paused, want 20000", got)
	}

	f.ctl.SetPaused(false)
	waitFor(t, "resume", func() bool {
		return len(dev.Written()) == 24000
	})
}
