package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

const (
	// silenceRMS is the PCM16 energy below which a chunk counts as silence.
	silenceRMS = 300.0

	defaultLanguage      = "en"
	defaultSampleRate    = 16000
	defaultSilence       = 500 * time.Millisecond
	defaultMaxUtterance  = 10 * time.Second
	finalFlushTimeout    = 30 * time.Second
	sessionAudioBuffer   = 256
	sessionResultsBuffer = 64
)

var errClosed = errors.New("whisper: session is closed")

// inferFunc transcribes one buffered utterance.
type inferFunc func(ctx context.Context, clip audio.Clip) (string, error)

// segmenter turns a batch transcriber into a streaming session. Incoming PCM
// is cut into utterances at pauses (or at a length cap) and each utterance is
// transcribed as a unit. whisper.cpp has no real partials, so every result is
// emitted as a partial and a final with the same text.
//
// Buffer state is owned by the run goroutine.
type segmenter struct {
	format       audio.Format
	silence      time.Duration
	maxUtterance time.Duration
	infer        inferFunc
	log          *slog.Logger

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*segmenter)(nil)

func startSegmenter(ctx context.Context, format audio.Format, silence, maxUtterance time.Duration, infer inferFunc) *segmenter {
	s := &segmenter{
		format:       format,
		silence:      silence,
		maxUtterance: maxUtterance,
		infer:        infer,
		log:          slog.Default(),
		audioCh:      make(chan []byte, sessionAudioBuffer),
		partials:     make(chan stt.Transcript, sessionResultsBuffer),
		finals:       make(chan stt.Transcript, sessionResultsBuffer),
		done:         make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

func (s *segmenter) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errClosed
	}
}

func (s *segmenter) Partials() <-chan stt.Transcript { return s.partials }
func (s *segmenter) Finals() <-chan stt.Transcript   { return s.finals }

// SetKeywords is unsupported; whisper.cpp has no keyword boosting.
func (s *segmenter) SetKeywords([]stt.KeywordBoost) error {
	return stt.ErrNotSupported
}

// Close flushes the pending utterance and closes both result channels.
func (s *segmenter) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *segmenter) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buf      []byte
		speech   bool
		quiet    time.Duration
		started  time.Duration
		elapsed  time.Duration
		maxBytes = int(s.maxUtterance.Seconds() * float64(s.format.SampleRate*s.format.Channels*2))
	)

	flush := func(ctx context.Context) {
		pcm, hadSpeech, at := buf, speech, started
		buf, speech, quiet = nil, false, 0
		if len(pcm) == 0 || !hadSpeech {
			return
		}
		text, err := s.infer(ctx, audio.Clip{PCM: pcm, Format: s.format})
		if err != nil {
			s.log.Warn("whisper utterance transcription failed", "err", err)
			return
		}
		if text == "" {
			return
		}
		dur := s.format.Duration(len(pcm))
		// Non-blocking: a reader that stopped listening must not stall shutdown.
		select {
		case s.partials <- stt.Transcript{Text: text, Timestamp: at, Duration: dur}:
		default:
		}
		select {
		case s.finals <- stt.Transcript{Text: text, IsFinal: true, Timestamp: at, Duration: dur}:
		default:
		}
	}
	finalFlush := func() {
		fctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
		defer cancel()
		flush(fctx)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			d := s.format.Duration(len(chunk))
			if rms(chunk) < silenceRMS {
				// Leading silence is dropped.
				if speech {
					quiet += d
					buf = append(buf, chunk...)
					if quiet >= s.silence {
						flush(ctx)
					}
				}
			} else {
				if !speech {
					started = elapsed
				}
				speech, quiet = true, 0
				buf = append(buf, chunk...)
				if maxBytes > 0 && len(buf) >= maxBytes {
					flush(ctx)
				}
			}
			elapsed += d
		}
	}
}

// rms returns the root-mean-square energy of PCM16 samples.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
