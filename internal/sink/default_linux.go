// ABOUTME: Default sink selection on Linux: ALSA hardware device, or
// ABOUTME: the portable oto backend when no device is named.
package sink

// Default returns the platform backend. A non-empty device name picks
// the ALSA PCM directly, otherwise the platform mixer is used.
func Default(device string) Sink {
	if device != "" {
		return NewAlsaSink(device)
	}
	return NewOtoSink()
}
