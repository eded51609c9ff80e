// ABOUTME: Software amplifier, mute, and raw byte/sample conversion
// ABOUTME: Applied in place at the point samples are handed to the hardware
package pcm

import "encoding/binary"

// Amplify scales the block by amp per-mille with hard clipping. Muted
// or zero gain silences the block.
func Amplify(samples []int16, amp int, mute bool) {
	if mute || amp == 0 {
		for i := range samples {
			samples[i] = 0
		}
		return
	}
	for i, s := range samples {
		samples[i] = clamp16(int(s) * amp / 1000)
	}
}

// AmplifyBytes applies Amplify to interleaved S16LE bytes in place.
func AmplifyBytes(buf []byte, amp int, mute bool) {
	if mute || amp == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		s := int(int16(binary.LittleEndian.Uint16(buf[i:])))
		binary.LittleEndian.PutUint16(buf[i:], uint16(clamp16(s*amp/1000)))
	}
}

// FromBytes decodes S16LE bytes into samples.
func FromBytes(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return samples
}

// ToBytes encodes samples as S16LE bytes.
func ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
