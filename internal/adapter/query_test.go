package adapter

import "testing"

func TestAbs(t *testing.T) {
	if abs(-3.5) != 3.5 {
		t.Fatalf("expected 3.5")
	}
	if abs(2) != 2 {
		t.Fatalf("expected 2")
	}
}

func TestViewportOr(t *testing.T) {
	if got := viewportOr(0, 1920); got != 1920 {
		t.Fatalf("expected default 1920, got %d", got)
	}
	if got := viewportOr(800, 1920); got != 800 {
		t.Fatalf("expected override 800, got %d", got)
	}
}

func TestNamedKeysCoversCommonControlKeys(t *testing.T) {
	for _, k := range []string{"Enter", "Tab", "Escape"} {
		if _, ok := namedKeys[k]; !ok {
			t.Fatalf("expected namedKeys to contain %q", k)
		}
	}
}
