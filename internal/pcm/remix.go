// ABOUTME: Channel remixing between decoder and hardware layouts
// ABOUTME: Down-mix weights are data-driven per-mille tables validated at init
package pcm

import (
	"errors"
	"fmt"
)

// ErrRemix is returned for channel combinations with no defined mix;
// the output is zero-filled so playback degrades to silence.
var ErrRemix = errors.New("pcm: unsupported channel remix")

// downmixWeights maps an input channel count to per-channel stereo
// contributions in per-mille. Row i holds the [left, right] weight of
// input channel i, channel order L R Ls Rs C LFE RL RR.
var downmixWeights = map[int][][2]int{
	3: {{600, 0}, {0, 600}, {400, 400}},
	4: {{600, 0}, {0, 600}, {400, 0}, {0, 400}},
	5: {{500, 0}, {0, 500}, {200, 0}, {0, 200}, {300, 300}},
	6: {{400, 0}, {0, 400}, {200, 0}, {0, 200}, {300, 300}, {100, 100}},
	7: {{400, 0}, {0, 400}, {200, 0}, {0, 200}, {300, 300}, {100, 0}, {0, 100}},
	8: {{400, 0}, {0, 400}, {150, 0}, {0, 150}, {250, 250}, {100, 100}, {100, 0}, {0, 100}},
}

// upmixOK lists the up-mix pairs served by zero-filling the missing
// channels.
var upmixOK = map[[2]int]bool{
	{5, 6}: true,
	{3, 8}: true,
	{5, 8}: true,
	{6, 8}: true,
}

func init() {
	// Each stereo output channel must receive exactly unit gain, or
	// the mix changes loudness with the channel count.
	for ch, rows := range downmixWeights {
		if len(rows) != ch {
			panic(fmt.Sprintf("pcm: downmix table for %d channels has %d rows", ch, len(rows)))
		}
		var l, r int
		for _, w := range rows {
			l += w[0]
			r += w[1]
		}
		if l != 1000 || r != 1000 {
			panic(fmt.Sprintf("pcm: downmix weights for %d channels sum to %d/%d", ch, l, r))
		}
	}
}

// Remix converts interleaved samples from inCh to outCh channels into
// out, which must hold frames*outCh samples. Matching counts copy,
// mono and stereo convert to each other, surround layouts down-mix to
// stereo by the weight tables, and the listed up-mix pairs pad with
// silence. Anything else zero-fills and reports ErrRemix.
func Remix(in []int16, inCh int, out []int16, outCh int) error {
	frames := len(in) / inCh
	switch {
	case inCh == outCh:
		copy(out, in)
	case inCh == 1 && outCh == 2:
		monoToStereo(in, out)
	case inCh == 2 && outCh == 1:
		stereoToMono(in, out)
	case outCh == 2 && downmixWeights[inCh] != nil:
		downmixStereo(in, inCh, frames, out)
	case upmixOK[[2]int{inCh, outCh}]:
		upmix(in, inCh, frames, out, outCh)
	default:
		for i := range out[:frames*outCh] {
			out[i] = 0
		}
		return fmt.Errorf("%w: %d -> %d channels", ErrRemix, inCh, outCh)
	}
	return nil
}

func monoToStereo(in, out []int16) {
	for i, s := range in {
		out[i*2] = s
		out[i*2+1] = s
	}
}

func stereoToMono(in, out []int16) {
	for i := 0; i+1 < len(in); i += 2 {
		out[i/2] = int16((int(in[i]) + int(in[i+1])) / 2)
	}
}

func downmixStereo(in []int16, inCh, frames int, out []int16) {
	weights := downmixWeights[inCh]
	for f := 0; f < frames; f++ {
		var l, r int
		for c, w := range weights {
			s := int(in[f*inCh+c])
			l += s * w[0]
			r += s * w[1]
		}
		out[f*2] = int16(l / 1000)
		out[f*2+1] = int16(r / 1000)
	}
}

func upmix(in []int16, inCh, frames int, out []int16, outCh int) {
	for f := 0; f < frames; f++ {
		copy(out[f*outCh:], in[f*inCh:(f+1)*inCh])
		for c := inCh; c < outCh; c++ {
			out[f*outCh+c] = 0
		}
	}
}
