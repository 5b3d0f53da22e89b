package job

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseQueue(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    Queue
		wantErr bool
	}{
		{"default", QueueDefault, false},
		{"SCREENSHOT", QueueScreenshot, false},
		{" Bulk ", QueueBulk, false},
		{"urgent", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseQueue(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseQueue(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseQueue(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseQueue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTerminalClassification(t *testing.T) {
	t.Parallel()

	base := errors.New("payload references a deleted listing")
	term := Terminal(base)

	if !IsTerminal(term) {
		t.Error("Terminal(err) not classified as terminal")
	}
	if IsTerminal(base) {
		t.Error("plain error classified as terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil classified as terminal")
	}
	// Wrapping a terminal error keeps it terminal.
	wrapped := fmt.Errorf("dispatch: %w", term)
	if !IsTerminal(wrapped) {
		t.Error("wrapped terminal error lost its classification")
	}
	if !errors.Is(term, base) {
		t.Error("Terminal(err) does not unwrap to err")
	}
	if term.Error() != base.Error() {
		t.Errorf("Terminal(err).Error() = %q, want %q", term.Error(), base.Error())
	}
}

func TestTerminalNil(t *testing.T) {
	t.Parallel()
	if Terminal(nil) != nil {
		t.Error("Terminal(nil) should be nil")
	}
}
