package job

import (
	"context"
	"encoding/json"
	"testing"
)

func noopHandler(_ context.Context, _ json.RawMessage) error { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register("SCREENSHOT_CAPTURE", noopHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := r.Handler("SCREENSHOT_CAPTURE"); !ok {
		t.Error("registered handler not found")
	}
	if _, ok := r.Handler("RSS_FEED_REFRESH"); ok {
		t.Error("unregistered type returned a handler")
	}
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register("EMAIL_DELIVERY", noopHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("EMAIL_DELIVERY", noopHandler); err == nil {
		t.Error("duplicate registration did not error")
	}
}

func TestRegistry_RejectsEmptyTypeAndNilHandler(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register("", noopHandler); err == nil {
		t.Error("empty job type did not error")
	}
	if err := r.Register("RANK_RECALC", nil); err == nil {
		t.Error("nil handler did not error")
	}
}

func TestRegistry_TypesSorted(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, jt := range []string{"RANK_RECALC", "AI_CATEGORIZE", "GDPR_EXPORT"} {
		if err := r.Register(jt, noopHandler); err != nil {
			t.Fatalf("Register(%s): %v", jt, err)
		}
	}
	got := r.Types()
	want := []string{"AI_CATEGORIZE", "GDPR_EXPORT", "RANK_RECALC"}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", got, want)
		}
	}
}
