package audio_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/MrWong99/versecue/pkg/audio"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	return out
}

func TestClipDuration(t *testing.T) {
	t.Parallel()

	c := audio.Clip{PCM: make([]byte, 32000), Format: audio.STTFormat}
	if got := c.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
	if got := (audio.Clip{PCM: make([]byte, 10)}).Duration(); got != 0 {
		t.Errorf("Duration() without format = %v, want 0", got)
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	got := samples(audio.Downmix(pcm16(100, 200, 32767, 32767, -32768, -32768), 2))
	want := []int16{150, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()

	got := samples(audio.MonoToStereo(pcm16(1, -2)))
	want := []int16{1, 1, -2, -2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MonoToStereo = %v, want %v", got, want)
		}
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []byte
		channels int
		src, dst int
		wantLen  int
	}{
		{name: "same rate", in: pcm16(1, 2, 3), channels: 1, src: 16000, dst: 16000, wantLen: 6},
		{name: "downsample 3x", in: make([]byte, 96), channels: 1, src: 48000, dst: 16000, wantLen: 32},
		{name: "upsample 2x", in: pcm16(0, 100), channels: 1, src: 8000, dst: 16000, wantLen: 8},
		{name: "stereo", in: make([]byte, 192), channels: 2, src: 48000, dst: 16000, wantLen: 64},
		{name: "zero rate", in: pcm16(5), channels: 1, src: 0, dst: 16000, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := len(audio.Resample(tt.in, tt.channels, tt.src, tt.dst)); got != tt.wantLen {
				t.Errorf("len = %d, want %d", got, tt.wantLen)
			}
		})
	}

	up := samples(audio.Resample(pcm16(0, 100), 1, 8000, 16000))
	if up[1] != 50 {
		t.Errorf("interpolated sample = %d, want 50", up[1])
	}
}

func TestClipConvert(t *testing.T) {
	t.Parallel()

	in := audio.Clip{PCM: make([]byte, 48000*2*2), Format: audio.OpusFormat}
	out, err := in.Convert(audio.STTFormat)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Format != audio.STTFormat || out.Len() != 32000 {
		t.Errorf("Convert = %s, %d bytes", out.Format, out.Len())
	}

	if _, err := (audio.Clip{PCM: make([]byte, 3), Format: audio.STTFormat}).Convert(audio.OpusFormat); err == nil {
		t.Error("odd byte count: expected error")
	}
	if _, err := (audio.Clip{PCM: make([]byte, 4)}).Convert(audio.STTFormat); err == nil {
		t.Error("missing format: expected error")
	}
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	in := audio.Clip{PCM: pcm16(0, 1000, -1000, 32767, -32768, 42), Format: audio.STTFormat}
	data, err := audio.EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("missing RIFF header")
	}

	out, err := audio.DecodeWAV(audio.WAVReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.Format != in.Format {
		t.Errorf("format = %s, want %s", out.Format, in.Format)
	}
	if !bytes.Equal(out.PCM, in.PCM) {
		t.Errorf("PCM = %v, want %v", samples(out.PCM), samples(in.PCM))
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := audio.DecodeWAV(bytes.NewReader([]byte("definitely not audio"))); err == nil {
		t.Error("expected error")
	}
}
