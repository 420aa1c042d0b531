package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// DecodeWAV reads a RIFF/WAV stream into a PCM16 clip. Samples of other bit
// depths are scaled to 16 bits.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("audio: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}

	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		switch {
		case depth > 16:
			v >>= depth - 16
		case depth < 16:
			// 8-bit WAV is unsigned.
			if depth == 8 {
				v -= 128
			}
			v <<= 16 - depth
		}
		putSample(pcm, i, int32(v))
	}
	return Clip{
		PCM:    pcm,
		Format: Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
	}, nil
}

// EncodeWAV wraps c in a 16-bit PCM WAV container.
func EncodeWAV(c Clip) ([]byte, error) {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid format %s", c.Format)
	}
	n := len(c.PCM) / 2
	data := make([]int, n)
	for i := range n {
		data[i] = int(sample(c.PCM, i))
	}

	out := &writeSeeker{}
	enc := wav.NewEncoder(out, c.SampleRate, 16, c.Channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.Channels, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalize wav: %w", err)
	}
	return out.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = len(w.buf)
	default:
		return 0, errors.New("audio: invalid whence")
	}
	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	w.pos = pos
	return int64(pos), nil
}

// WAVReader returns an io.ReadSeeker over an in-memory WAV file.
func WAVReader(data []byte) io.ReadSeeker { return bytes.NewReader(data) }
