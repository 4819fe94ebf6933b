package archive

import (
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 2, 7, 10, 30, 0, 0, time.UTC)

	key := objectKey("unep", "Coastal Alliance", "Coastal-Alliance-resolution.pdf", now)
	want := "unep/Coastal-Alliance/20260207T103000Z.pdf"
	if key != want {
		t.Errorf("objectKey = %q, want %q", key, want)
	}
}

func TestObjectKeyDefaultsExtension(t *testing.T) {
	now := time.Date(2026, 2, 7, 10, 30, 0, 0, time.UTC)

	key := objectKey("unep", "bloc", "noext", now)
	if !strings.HasSuffix(key, ".bin") {
		t.Errorf("objectKey = %q, want .bin suffix", key)
	}
}

func TestSanitizeKeyPart(t *testing.T) {
	cases := map[string]string{
		"Coastal Alliance": "Coastal-Alliance",
		"../escape":        "escape",
		"":                 "unnamed",
	}
	for input, want := range cases {
		if got := sanitizeKeyPart(input); got != want {
			t.Errorf("sanitizeKeyPart(%q) = %q, want %q", input, got, want)
		}
	}
}
