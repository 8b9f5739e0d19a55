package utils

import (
	"testing"
	"time"
)

func TestSlidingWindow(t *testing.T) {
	window := NewSlidingWindow(10 * time.Second)
	base := time.Unix(1000, 0)

	if count := window.Add(base); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	if count := window.Add(base.Add(5 * time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := window.Count(base.Add(20 * time.Second)); count != 0 {
		t.Fatalf("expected expired window, got %d", count)
	}
}
