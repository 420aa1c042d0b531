package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
	sttmock "github.com/MrWong99/versecue/pkg/provider/stt/mock"
)

func TestSTTFallback_StartStream(t *testing.T) {
	t.Parallel()
	cfg := stt.StreamConfig{SampleRate: 16000, Channels: 1}

	tests := []struct {
		name         string
		deepgramErr  error
		whisperErr   error
		wantErr      error
		wantDeepgram int
		wantWhisper  int
	}{
		{name: "deepgram accepts", wantDeepgram: 1},
		{name: "whisper takes over", deepgramErr: errors.New("401 unauthorized"), wantDeepgram: 1, wantWhisper: 1},
		{name: "nobody accepts", deepgramErr: errTest, whisperErr: errTest, wantErr: ErrAllFailed, wantDeepgram: 1, wantWhisper: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			deepgram := &sttmock.Provider{StartStreamErr: tt.deepgramErr}
			whisper := &sttmock.Provider{StartStreamErr: tt.whisperErr}
			fb := NewSTTFallback(deepgram, "deepgram", FallbackConfig{})
			fb.AddFallback("whisper", whisper)

			handle, err := fb.StartStream(context.Background(), cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatal(err)
			} else {
				_ = handle.Close()
			}
			if n := len(deepgram.Calls()); n != tt.wantDeepgram {
				t.Errorf("deepgram calls = %d, want %d", n, tt.wantDeepgram)
			}
			if n := len(whisper.Calls()); n != tt.wantWhisper {
				t.Errorf("whisper calls = %d, want %d", n, tt.wantWhisper)
			}
		})
	}
}

func TestTranscriberFallback(t *testing.T) {
	clip := audio.Clip{PCM: make([]byte, 3200), Format: audio.STTFormat}

	t.Run("primary", func(t *testing.T) {
		primary := &sttmock.Transcriber{Text: "amazing grace"}
		secondary := &sttmock.Transcriber{Text: "wrong"}
		fb := NewTranscriberFallback(primary, "primary", FallbackConfig{})
		fb.AddFallback("secondary", secondary)

		got, err := fb.Transcribe(context.Background(), clip)
		if err != nil || got != "amazing grace" {
			t.Fatalf("Transcribe = %q, %v", got, err)
		}
		if len(secondary.Clips()) != 0 {
			t.Error("secondary should not be called")
		}
	})

	t.Run("failover", func(t *testing.T) {
		primary := &sttmock.Transcriber{Err: errors.New("timeout")}
		secondary := &sttmock.Transcriber{Text: "oceans"}
		fb := NewTranscriberFallback(primary, "primary", FallbackConfig{})
		fb.AddFallback("secondary", secondary)

		got, err := fb.Transcribe(context.Background(), clip)
		if err != nil || got != "oceans" {
			t.Fatalf("Transcribe = %q, %v", got, err)
		}
		if len(primary.Clips()) != 1 {
			t.Error("primary should be tried first")
		}
	})
}
