package ptr_test

import (
	"testing"

	"vidfetch/pkg/ptr"
)

func TestDeref(t *testing.T) {
	if got := ptr.Deref[int](nil); got != 0 {
		t.Errorf("Deref(nil) = %d, want 0", got)
	}

	if got := ptr.Deref(ptr.Of("clip")); got != "clip" {
		t.Errorf("Deref(Of(clip)) = %q", got)
	}
}

func TestNonZero(t *testing.T) {
	if ptr.NonZero[string](nil) != nil {
		t.Error("NonZero(nil) != nil")
	}

	if ptr.NonZero(ptr.Of("")) != nil {
		t.Error(`NonZero(Of("")) != nil`)
	}

	if got := ptr.NonZero(ptr.Of("https://example.com/t.jpg")); got == nil || *got != "https://example.com/t.jpg" {
		t.Errorf("NonZero() = %v", got)
	}
}
