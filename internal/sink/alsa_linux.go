// ABOUTME: ALSA output backend using the pure-Go alsa library.
// ABOUTME: Reconfigures the PCM device per stream segment and maps
// ABOUTME: xruns onto the sink error contract.
package sink

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/alsa"

	"github.com/Playout-Project/playout-go/pkg/audio"
)

const (
	alsaPeriodFrames = 1024
	alsaPeriodCount  = 4
)

// AlsaSink drives a hardware PCM device. Pass-through streams use the
// same interleaved S16 path, the receiver decodes the IEC frames.
type AlsaSink struct {
	mu          sync.Mutex
	device      string
	pcm         *alsa.PCM
	format      audio.Format
	open        bool
	passthrough bool
}

// NewAlsaSink creates a sink for the named PCM device, "hw:C,D" form.
// Empty means "hw:0,0".
func NewAlsaSink(device string) *AlsaSink {
	if device == "" {
		device = "hw:0,0"
	}
	return &AlsaSink{device: device}
}

func (a *AlsaSink) Open(passthrough bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
	a.passthrough = passthrough
	return nil
}

func (a *AlsaSink) Setup(rate, channels uint) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return 0, ErrNotOpen
	}
	f := audio.Format{SampleRate: rate, Channels: channels}
	if !f.Valid() {
		return 0, fmt.Errorf("alsa: %s: %w", f, ErrUnsupported)
	}
	if a.pcm != nil {
		a.pcm.Close()
		a.pcm = nil
	}
	config := &alsa.Config{
		Channels:    uint32(channels),
		Rate:        uint32(rate),
		PeriodSize:  alsaPeriodFrames,
		PeriodCount: alsaPeriodCount,
		Format:      alsa.PCM_FORMAT_S16_LE,
	}
	pcm, err := alsa.PcmOpenByName(a.device, alsa.PCM_OUT|alsa.PCM_NONBLOCK, config)
	if err != nil {
		return 0, fmt.Errorf("alsa: open %s %s: %w", a.device, f, ErrUnsupported)
	}
	if err := pcm.Prepare(); err != nil {
		pcm.Close()
		return 0, fmt.Errorf("alsa: prepare %s: %w", f, err)
	}
	a.pcm = pcm
	a.format = f
	log.Printf("alsa: %s configured %s period %d frames", a.device, f, pcm.PeriodSize())
	return int(alsa.PcmFramesToBytes(pcm, pcm.PeriodSize())), nil
}

func (a *AlsaSink) Write(p []byte) (int, error) {
	a.mu.Lock()
	pcm := a.pcm
	a.mu.Unlock()
	if pcm == nil {
		return 0, ErrNotOpen
	}
	frames, err := pcm.WriteI(p, alsa.PcmBytesToFrames(pcm, uint32(len(p))))
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return 0, fmt.Errorf("alsa: xrun: %w", ErrUnderrun)
		}
		if errors.Is(err, syscall.EAGAIN) {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("alsa: write: %w", err)
	}
	return int(alsa.PcmFramesToBytes(pcm, uint32(frames))), nil
}

func (a *AlsaSink) Avail() (int, error) {
	a.mu.Lock()
	pcm := a.pcm
	a.mu.Unlock()
	if pcm == nil {
		return 0, ErrNotOpen
	}
	delay, err := pcm.Delay()
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return 0, fmt.Errorf("alsa: xrun: %w", ErrUnderrun)
		}
		return 0, fmt.Errorf("alsa: delay: %w", err)
	}
	frames := int(pcm.BufferSize()) - delay
	if frames < 0 {
		frames = 0
	}
	return int(alsa.PcmFramesToBytes(pcm, uint32(frames))), nil
}

func (a *AlsaSink) Wait(timeout time.Duration) (bool, error) {
	a.mu.Lock()
	pcm := a.pcm
	a.mu.Unlock()
	if pcm == nil {
		return false, ErrNotOpen
	}
	ready, err := pcm.Wait(int(timeout / time.Millisecond))
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return false, fmt.Errorf("alsa: xrun: %w", ErrUnderrun)
		}
		return false, fmt.Errorf("alsa: wait: %w", err)
	}
	return ready, nil
}

func (a *AlsaSink) Drop() error {
	a.mu.Lock()
	pcm := a.pcm
	a.mu.Unlock()
	if pcm == nil {
		return ErrNotOpen
	}
	if err := pcm.Stop(); err != nil {
		return fmt.Errorf("alsa: stop: %w", err)
	}
	if err := pcm.Prepare(); err != nil {
		return fmt.Errorf("alsa: prepare: %w", err)
	}
	return nil
}

func (a *AlsaSink) Recover() error {
	a.mu.Lock()
	pcm := a.pcm
	a.mu.Unlock()
	if pcm == nil {
		return ErrNotOpen
	}
	if err := pcm.Prepare(); err != nil {
		return fmt.Errorf("alsa: recover: %w", err)
	}
	return nil
}

func (a *AlsaSink) DelayFrames() (int, error) {
	a.mu.Lock()
	pcm := a.pcm
	a.mu.Unlock()
	if pcm == nil {
		return 0, nil
	}
	delay, err := pcm.Delay()
	if err != nil {
		return 0, nil
	}
	return delay, nil
}

// SetVolume reports unsupported so the engine scales samples itself
// instead of touching the hardware mixer.
func (a *AlsaSink) SetVolume(permille int) error {
	return ErrUnsupported
}

func (a *AlsaSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pcm != nil {
		if err := a.pcm.Drain(); err != nil {
			log.Printf("alsa: drain: %v", err)
		}
		a.pcm.Close()
		a.pcm = nil
	}
	a.open = false
	return nil
}
