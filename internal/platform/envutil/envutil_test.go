package envutil

import "testing"

func TestInt(t *testing.T) {
	t.Setenv("AGGSYNC_TEST_INT", "42")
	if got := Int("AGGSYNC_TEST_INT", 1); got != 42 {
		t.Fatalf("Int: want=42 got=%d", got)
	}
	t.Setenv("AGGSYNC_TEST_INT", "nope")
	if got := Int("AGGSYNC_TEST_INT", 7); got != 7 {
		t.Fatalf("Int fallback: want=7 got=%d", got)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("AGGSYNC_TEST_FLOAT", "0.25")
	if got := Float("AGGSYNC_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
	t.Setenv("AGGSYNC_TEST_FLOAT", "lots")
	if got := Float("AGGSYNC_TEST_FLOAT", 0.1); got != 0.1 {
		t.Fatalf("Float fallback: want=0.1 got=%v", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("AGGSYNC_TEST_BOOL", "on")
	if !Bool("AGGSYNC_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("AGGSYNC_TEST_BOOL", "")
	if !Bool("AGGSYNC_TEST_BOOL", true) {
		t.Fatalf("expected default")
	}
}

func TestString(t *testing.T) {
	t.Setenv("AGGSYNC_TEST_STR", "  sqlite ")
	if got := String("AGGSYNC_TEST_STR", "postgres", nil); got != "sqlite" {
		t.Fatalf("String: got=%q", got)
	}
	if got := String("AGGSYNC_TEST_MISSING", "postgres", nil); got != "postgres" {
		t.Fatalf("String default: got=%q", got)
	}
}
