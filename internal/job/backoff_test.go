package job

import (
	"testing"
	"time"
)

func TestBackoffDelay_ExponentialWithCap(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: 30 * time.Second, Max: time.Hour}

	cases := []struct {
		attempts int32
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{6, 1920 * time.Second},
		{7, time.Hour}, // 30s * 2^7 = 3840s > 1h
		{8, time.Hour},
		{100, time.Hour},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempts); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: time.Second, Max: 10 * time.Minute}
	prev := time.Duration(-1)
	for attempts := int32(0); attempts < 64; attempts++ {
		d := b.Delay(attempts)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < Delay(%d) = %v", attempts, d, attempts-1, prev)
		}
		if d > b.Max {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempts, d, b.Max)
		}
		prev = d
	}
}

func TestBackoffDelay_Deterministic(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: 15 * time.Second, Max: time.Hour}
	for attempts := int32(0); attempts < 10; attempts++ {
		first := b.Delay(attempts)
		for i := 0; i < 5; i++ {
			if got := b.Delay(attempts); got != first {
				t.Fatalf("Delay(%d) not deterministic: %v then %v", attempts, first, got)
			}
		}
	}
}

func TestBackoffDelay_NegativeAttempts(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: 30 * time.Second, Max: time.Hour}
	if got := b.Delay(-3); got != b.Base {
		t.Errorf("Delay(-3) = %v, want %v", got, b.Base)
	}
}
