package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// OpusFormat is the decode format of [OpusDecoder]: 48 kHz stereo, the rate
// browsers and Discord encode at.
var OpusFormat = Format{SampleRate: 48000, Channels: 2}

// opusMaxFrame is the largest Opus frame (120 ms) in samples per channel.
const opusMaxFrame = 48000 * 120 / 1000

// OpusDecoder turns Opus packets from one stream into PCM16. Decoder state
// carries across packets, so use one decoder per stream.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder returns a decoder producing [OpusFormat] PCM.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusFormat.SampleRate, OpusFormat.Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into interleaved PCM16 bytes.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	samples, err := d.dec.Decode(packet, opusMaxFrame, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out, nil
}
