package util

import (
	"testing"
	"time"
)

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "def"); got != "def" {
		t.Fatalf("empty string: got %q", got)
	}
	if got := Coalesce("set", "def"); got != "set" {
		t.Fatalf("set string: got %q", got)
	}
	if got := Coalesce(time.Duration(0), time.Minute); got != time.Minute {
		t.Fatalf("zero duration: got %v", got)
	}
}
