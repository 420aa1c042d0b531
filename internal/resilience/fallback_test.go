package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExecuteWithResult(t *testing.T) {
	tests := []struct {
		name    string
		fails   map[string]error
		want    string
		wantErr error
		tried   []string
	}{
		{
			name:  "primary answers",
			want:  "deepgram",
			tried: []string{"deepgram"},
		},
		{
			name:  "fails over in order",
			fails: map[string]error{"deepgram": errTest},
			want:  "whisper",
			tried: []string{"deepgram", "whisper"},
		},
		{
			name:    "all fail",
			fails:   map[string]error{"deepgram": errTest, "whisper": errTest, "whisper-native": errTest},
			wantErr: ErrAllFailed,
			tried:   []string{"deepgram", "whisper", "whisper-native"},
		},
		{
			name:    "cancellation stops the walk",
			fails:   map[string]error{"deepgram": context.Canceled},
			wantErr: context.Canceled,
			tried:   []string{"deepgram"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{})
			fg.AddFallback("whisper", "whisper")
			fg.AddFallback("whisper-native", "whisper-native")

			var tried []string
			got, err := ExecuteWithResult(fg, func(name string) (string, error) {
				tried = append(tried, name)
				if err := tt.fails[name]; err != nil {
					return "", err
				}
				return name, nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if len(tried) != len(tt.tried) {
				t.Fatalf("tried = %v, want %v", tried, tt.tried)
			}
			for i := range tried {
				if tried[i] != tt.tried[i] {
					t.Errorf("tried = %v, want %v", tried, tt.tried)
					break
				}
			}
		})
	}
}

func TestExecuteWithResult_AllFailKeepsEveryCause(t *testing.T) {
	errRate := errors.New("rate limited")
	fg := NewFallbackGroup(1, "primary", FallbackConfig{})
	fg.AddFallback("secondary", 2)

	err := fg.Execute(func(v int) error {
		if v == 1 {
			return errRate
		}
		return errTest
	})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errRate) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want ErrAllFailed wrapping both causes", err)
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	clock := newFakeClock()
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute, Now: clock.Now},
	})
	fg.AddFallback("secondary", "secondary")

	calls := map[string]int{}
	call := func(v string) error {
		calls[v]++
		if v == "primary" {
			return errTest
		}
		return nil
	}
	for range 2 {
		if err := fg.Execute(call); err != nil {
			t.Fatal(err)
		}
	}
	if got := fg.Breakers()[0].State(); got != StateOpen {
		t.Fatalf("primary breaker = %v, want open", got)
	}

	fg.Execute(call)
	if calls["primary"] != 2 || calls["secondary"] != 3 {
		t.Errorf("calls = %v, want primary 2 secondary 3", calls)
	}

	// After the cool-off the primary is probed again.
	clock.Advance(time.Minute)
	fg.Execute(call)
	if calls["primary"] != 3 {
		t.Errorf("primary not probed after cool-off: %v", calls)
	}
}

func TestFallbackGroup_BreakersNamedByEntry(t *testing.T) {
	fg := NewFallbackGroup("a", "lrclib", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{Name: "ignored"}})
	fg.AddFallback("genius", "b")

	bs := fg.Breakers()
	if len(bs) != 2 || bs[0].Name() != "lrclib" || bs[1].Name() != "genius" {
		t.Errorf("breakers = %v", bs)
	}
}

func TestFallbackGroup_OnAttempt(t *testing.T) {
	clock := newFakeClock()
	var seen []string
	fg := NewFallbackGroup("lrclib", "lrclib", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now},
		OnAttempt: func(name string, err error) {
			seen = append(seen, fmt.Sprintf("%s:%v", name, err == nil))
		},
	})
	fg.AddFallback("genius", "genius")

	call := func(v string) error {
		if v == "lrclib" {
			return errTest
		}
		return nil
	}
	fg.Execute(call)
	fg.Execute(call) // lrclib is open now and not reported

	want := "[lrclib:false genius:true genius:true]"
	if fmt.Sprint(seen) != want {
		t.Errorf("attempts = %v, want %s", seen, want)
	}
}
