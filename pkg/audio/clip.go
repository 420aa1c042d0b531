// Package audio holds the PCM clip type shared by capture, transcription and
// song identification, plus WAV and Opus codecs and format conversion.
//
// All PCM in VerseCue is 16-bit signed little-endian, interleaved when there
// is more than one channel.
package audio

import (
	"fmt"
	"time"
)

// STTFormat is what the transcription backends expect: 16 kHz mono.
var STTFormat = Format{SampleRate: 16000, Channels: 1}

// Format describes the sample rate and channel count of PCM data.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// bytesPerSecond returns the PCM16 data rate, or 0 for an invalid format.
func (f Format) bytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playing time of n bytes of PCM16 in this format, or
// zero for an invalid format.
func (f Format) Duration(n int) time.Duration {
	bps := f.bytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Clip is a finite buffer of PCM16 audio.
type Clip struct {
	PCM []byte
	Format
}

// Len returns the clip size in bytes.
func (c Clip) Len() int { return len(c.PCM) }

// Duration returns the playing time of the clip.
func (c Clip) Duration() time.Duration { return c.Format.Duration(len(c.PCM)) }

// Convert returns the clip resampled and channel-mixed to target. Resampling
// runs after downmixing so stereo input is only interpolated once.
func (c Clip) Convert(target Format) (Clip, error) {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return Clip{}, fmt.Errorf("audio: invalid source format %s", c.Format)
	}
	if len(c.PCM)%(2*c.Channels) != 0 {
		return Clip{}, fmt.Errorf("audio: %d bytes is not a whole number of %s frames", len(c.PCM), c.Format)
	}
	if c.Format == target {
		return c, nil
	}

	pcm := c.PCM
	ch := c.Channels
	switch {
	case ch == target.Channels:
	case target.Channels == 1:
		pcm = Downmix(pcm, ch)
		ch = 1
	case ch == 1 && target.Channels == 2:
		pcm = MonoToStereo(pcm)
		ch = 2
	default:
		return Clip{}, fmt.Errorf("audio: cannot convert %s to %s", c.Format, target)
	}
	pcm = Resample(pcm, ch, c.SampleRate, target.SampleRate)
	return Clip{PCM: pcm, Format: Format{SampleRate: target.SampleRate, Channels: ch}}, nil
}

func sample(pcm []byte, i int) int32 {
	return int32(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
}

func putSample(pcm []byte, i int, v int32) {
	v = max(-32768, min(32767, v))
	pcm[2*i] = byte(v)
	pcm[2*i+1] = byte(v >> 8)
}

// Downmix averages every interleaved frame of channels samples into one
// mono sample.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for f := range frames {
		var sum int32
		for c := range channels {
			sum += sample(pcm, f*channels+c)
		}
		putSample(out, f, sum/int32(channels))
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		copy(out[i*4:], pcm[i*2:i*2+2])
		copy(out[i*4+2:], pcm[i*2:i*2+2])
	}
	return out
}

// Resample converts interleaved PCM16 from srcRate to dstRate by linear
// interpolation. Invalid rates return the input unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			s0 := float64(sample(pcm, idx*channels+c))
			s1 := float64(sample(pcm, next*channels+c))
			putSample(out, i*channels+c, int32(s0*(1-frac)+s1*frac))
		}
	}
	return out
}
