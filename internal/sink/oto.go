// ABOUTME: Portable output backend built on the oto library.
// ABOUTME: Feeds a persistent player from an internal buffer, padding
// ABOUTME: with silence so the device never starves.
package sink

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/Playout-Project/playout-go/pkg/audio"
)

const (
	// otoPeriodFrames is the nominal period reported by Setup; oto
	// does not expose its real period size.
	otoPeriodFrames = 1024

	// otoBufferTarget is the internal buffer depth.
	otoBufferTarget = 500 * time.Millisecond
)

// OtoSink plays PCM through the platform mixer via oto. The process
// can hold only one oto context, so the context is created lazily on
// the first write and later format changes keep the first negotiated
// device rate. Pass-through is not possible here.
type OtoSink struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	format audio.Format
	open   bool
	buf    []byte
	cap    int
	space  chan struct{}
}

// NewOtoSink creates the oto backend.
func NewOtoSink() *OtoSink {
	return &OtoSink{space: make(chan struct{}, 1)}
}

func (o *OtoSink) Open(passthrough bool) error {
	if passthrough {
		return fmt.Errorf("oto: pass-through: %w", ErrUnsupported)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = true
	return nil
}

func (o *OtoSink) Setup(rate, channels uint) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return 0, ErrNotOpen
	}
	if channels > 2 {
		return 0, fmt.Errorf("oto: %d channels: %w", channels, ErrUnsupported)
	}
	f := audio.Format{SampleRate: rate, Channels: channels}
	if !f.Valid() {
		return 0, fmt.Errorf("oto: %s: %w", f, ErrUnsupported)
	}
	if o.otoCtx != nil && o.format != f {
		// One context per process: keep playing at the old device
		// rate rather than going silent.
		log.Printf("oto: format change %s -> %s not supported, keeping device rate", o.format, f)
	}
	o.format = f
	o.cap = f.BytesPerSecond() * int(otoBufferTarget/time.Millisecond) / 1000
	o.cap -= o.cap % f.FrameBytes()
	if len(o.buf) > o.cap {
		o.buf = o.buf[:o.cap]
	}
	return otoPeriodFrames * f.FrameBytes(), nil
}

// start creates the oto context and the persistent player. Called with
// the lock held, after the first samples arrived.
func (o *OtoSink) start() error {
	op := &oto.NewContextOptions{
		SampleRate:   int(o.format.SampleRate),
		ChannelCount: int(o.format.Channels),
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("oto: create context: %w", err)
	}
	o.mu.Unlock()
	<-readyChan
	o.mu.Lock()
	o.otoCtx = ctx
	o.player = ctx.NewPlayer(otoFeed{o})
	o.player.Play()
	log.Printf("oto: started %s", o.format)
	return nil
}

func (o *OtoSink) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return 0, ErrNotOpen
	}
	if !o.format.Valid() {
		return 0, ErrUnsupported
	}
	if o.otoCtx == nil {
		if err := o.start(); err != nil {
			return 0, err
		}
	}
	free := o.cap - len(o.buf)
	n := len(p)
	if n > free {
		n = free
	}
	o.buf = append(o.buf, p[:n]...)
	return n, nil
}

func (o *OtoSink) Avail() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return 0, ErrNotOpen
	}
	return o.cap - len(o.buf), nil
}

func (o *OtoSink) Wait(timeout time.Duration) (bool, error) {
	o.mu.Lock()
	free := o.cap - len(o.buf)
	o.mu.Unlock()
	if free > 0 {
		return true, nil
	}
	select {
	case <-o.space:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (o *OtoSink) Drop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf = o.buf[:0]
	return nil
}

// Recover is a no-op: the player pads with silence instead of
// underrunning.
func (o *OtoSink) Recover() error { return nil }

func (o *OtoSink) DelayFrames() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.format.Valid() {
		return 0, nil
	}
	frames := len(o.buf) / o.format.FrameBytes()
	if o.player != nil {
		frames += int(o.player.BufferedSize()) / o.format.FrameBytes()
	}
	return frames, nil
}

func (o *OtoSink) SetVolume(permille int) error {
	o.mu.Lock()
	player := o.player
	o.mu.Unlock()
	if player == nil {
		return ErrNotOpen
	}
	player.SetVolume(float64(permille) / 1000)
	return nil
}

func (o *OtoSink) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.otoCtx = nil
	}
	o.open = false
	o.buf = nil
	return nil
}

// otoFeed is the reader side of the sink handed to the oto player. An
// empty buffer yields silence so the stream never ends.
type otoFeed struct {
	o *OtoSink
}

func (f otoFeed) Read(p []byte) (int, error) {
	o := f.o
	o.mu.Lock()
	n := copy(p, o.buf)
	if n > 0 {
		o.buf = o.buf[:copy(o.buf, o.buf[n:])]
	}
	o.mu.Unlock()
	if n > 0 {
		select {
		case o.space <- struct{}{}:
		default:
		}
		return n, nil
	}
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
