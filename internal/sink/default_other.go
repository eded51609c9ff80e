// ABOUTME: Default sink selection off Linux: always the oto backend.

//go:build !linux

package sink

// Default returns the platform backend. Device names are Linux only
// and ignored here.
func Default(device string) Sink {
	return NewOtoSink()
}
