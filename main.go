// ABOUTME: Entry point for the playout demo player
// ABOUTME: Decodes an MP3 file and feeds it through the playout engine
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/Playout-Project/playout-go/internal/ui"
	"github.com/Playout-Project/playout-go/pkg/audio"
	"github.com/Playout-Project/playout-go/pkg/playout"
)

var (
	file       = flag.String("file", "", "MP3 file to play")
	device     = flag.String("device", "", "ALSA device (hw:C,D); empty uses the system mixer")
	bufferMs   = flag.Int("buffer-ms", 0, "Audio buffer time in milliseconds (0 = default)")
	volume     = flag.Int("volume", 1000, "Playback volume in per-mille (0-1000)")
	compress   = flag.Bool("compress", false, "Enable dynamic range compression")
	normalize  = flag.Bool("normalize", false, "Enable volume normalization")
	logFile    = flag.String("log-file", "playout.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	src, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s: %v", *file, err)
	}
	defer func() { _ = src.Close() }()

	decoder, err := mp3.NewDecoder(src)
	if err != nil {
		log.Fatalf("decode %s: %v", *file, err)
	}

	engine, err := playout.New(playout.Config{Device: *device})
	if err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer func() { _ = engine.Close() }()

	if *bufferMs > 0 {
		engine.SetBufferTime(*bufferMs)
	}
	engine.SetCompression(*compress, 0)
	engine.SetNormalize(*normalize, 0)
	engine.SetVolume(*volume)

	// go-mp3 always outputs 16-bit stereo
	rate := uint(decoder.SampleRate())
	const channels = 2
	if err := engine.Setup(rate, channels, false); err != nil {
		log.Fatalf("setup %dHz: %v", rate, err)
	}
	format := audio.Format{SampleRate: rate, Channels: channels}

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			log.Fatalf("start TUI: %v", err)
		}
		go func() { _, _ = tuiProg.Run() }()
		go handleControls(engine, controls)
		go statusLoop(engine, format, tuiProg)
	} else {
		log.Printf("playing %s at %dHz", *file, rate)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := feed(engine, decoder, format); err != nil {
			log.Printf("feed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		// Let the tail of the stream play out.
		for engine.GetDelay() > 0 {
			time.Sleep(50 * time.Millisecond)
		}
		log.Printf("playback finished")
	case <-sigChan:
		log.Printf("shutdown signal received")
	case <-quitChan(controls):
		log.Printf("quit from TUI")
	}

	if tuiProg != nil {
		tuiProg.Quit()
	}
}

// quitChan adapts the optional TUI quit channel for select.
func quitChan(controls *ui.Controls) <-chan struct{} {
	if controls == nil {
		return nil
	}
	return controls.Quit
}

// feed pushes decoded samples into the engine, backing off while the
// buffer is full.
func feed(engine *playout.Engine, decoder *mp3.Decoder, format audio.Format) error {
	chunk := make([]byte, 16384)
	var pos int64
	for {
		n, err := io.ReadFull(decoder, chunk)
		if n > 0 {
			pts := audio.NewPTS(format.BytesToTicks(int(pos)))
			pos += int64(n)
			for {
				enqErr := engine.Enqueue(chunk[:n], pts)
				if !errors.Is(enqErr, playout.ErrRingFull) {
					if enqErr != nil {
						return enqErr
					}
					break
				}
				// Buffer full: the tail of the chunk was dropped,
				// resend is not possible, just slow down.
				log.Printf("buffer full, backing off")
				time.Sleep(100 * time.Millisecond)
				break
			}
			// Keep roughly half a ring slot of headroom.
			for engine.FreeBytes() < len(chunk)*2 {
				time.Sleep(24 * time.Millisecond)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}

// handleControls applies TUI input to the engine.
func handleControls(engine *playout.Engine, controls *ui.Controls) {
	for {
		select {
		case v := <-controls.Volume:
			engine.SetVolume(v)
		case paused := <-controls.Pause:
			if paused {
				engine.Pause()
			} else {
				engine.Resume()
			}
		}
	}
}

// statusLoop periodically pushes engine state into the TUI.
func statusLoop(engine *playout.Engine, format audio.Format, prog *tea.Program) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		clock := engine.GetClock()
		used := engine.UsedBytes()
		msg := ui.StatusMsg{
			State:      engine.State().String(),
			SampleRate: int(format.SampleRate),
			Channels:   int(format.Channels),
			HwChannels: int(format.Channels),
			BufferMs:   used * 1000 / format.BytesPerSecond(),
			UsedBytes:  used,
			FreeBytes:  engine.FreeBytes(),
			DelayMs:    engine.GetDelay() / audio.TicksPerMs,
			ClockMs:    clock.Millis(),
			ClockOK:    clock.Valid,
			EngineID:   engine.ID(),
		}
		prog.Send(msg)
	}
}
