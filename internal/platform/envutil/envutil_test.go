package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"2h", 2 * time.Hour},
		{"12", 12 * time.Second},
		{"nope", 5 * time.Second},
	}
	for _, tc := range cases {
		t.Setenv("ENVUTIL_TEST_DURATION", tc.raw)
		if got := Duration("ENVUTIL_TEST_DURATION", 5*time.Second); got != tc.want {
			t.Fatalf("Duration(%q): want=%s got=%s", tc.raw, tc.want, got)
		}
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "7")
	t.Setenv("ENVUTIL_TEST_BOOL", "off")
	if got := Int("ENVUTIL_TEST_INT", 1); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	if got := Int("ENVUTIL_TEST_MISSING", 3); got != 3 {
		t.Fatalf("Int default: want=3 got=%d", got)
	}
	if got := Bool("ENVUTIL_TEST_BOOL", true); got {
		t.Fatalf("Bool: want=false got=true")
	}
	if got := String("ENVUTIL_TEST_MISSING", "x"); got != "x" {
		t.Fatalf("String default: want=%q got=%q", "x", got)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_FLOAT", "0.25")
	t.Setenv("ENVUTIL_TEST_BAD_FLOAT", "abc")
	if got := Float("ENVUTIL_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
	if got := Float("ENVUTIL_TEST_BAD_FLOAT", 1); got != 1 {
		t.Fatalf("Float bad: want=1 got=%v", got)
	}
}
