package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFeature(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already normalized", "charging", "charging"},
		{"uppercase", "CHARGING", "charging"},
		{"surrounding whitespace", "  covered ", "covered"},
		{"inner space", "EV Charging", "ev_charging"},
		{"hyphen kept", "wide-bay", "wide-bay"},
		{"punctuation folded", "ev.charging!!", "ev_charging"},
		{"repeated separators", "ev   __ charging", "ev_charging"},
		{"only separators", " !! ", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeFeature(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, NormalizeFeature(got), "normalization must be idempotent")
		})
	}
}

func TestNormalizeFeatures(t *testing.T) {
	t.Run("drops duplicates after normalization", func(t *testing.T) {
		got := NormalizeFeatures([]string{"Charging", "charging ", "covered", "COVERED"})
		assert.Equal(t, []string{"charging", "covered"}, got)
	})

	t.Run("drops empty values", func(t *testing.T) {
		got := NormalizeFeatures([]string{"", "  ", "covered"})
		assert.Equal(t, []string{"covered"}, got)
	})

	t.Run("keeps first-seen order", func(t *testing.T) {
		got := NormalizeFeatures([]string{"wide", "charging", "covered"})
		assert.Equal(t, []string{"wide", "charging", "covered"}, got)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, NormalizeFeatures(nil))
	})
}

func TestTrimAndNormalize(t *testing.T) {
	assert.Equal(t, "level 2 north", TrimAndNormalize("  level \t2\n\nnorth "))
	assert.Equal(t, "", TrimAndNormalize("   "))
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "Lot-A", NormalizeIdentifier("  Lot-A\n"))
}

func TestPipeline_AppliesInOrder(t *testing.T) {
	p := Pipeline{
		func(s string) string { return s + "a" },
		func(s string) string { return s + "b" },
	}
	assert.Equal(t, "xab", p.Apply("x"))
}
