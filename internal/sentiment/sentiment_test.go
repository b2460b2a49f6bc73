package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	tests := []struct {
		name      string
		funding8h float64
		expected  int
	}{
		{name: "extreme greed at threshold", funding8h: 0.06, expected: 3},          // daily 0.18
		{name: "extreme greed above threshold", funding8h: 0.07, expected: 3},       // daily 0.21
		{name: "greed", funding8h: 0.04, expected: 2},                               // daily 0.12
		{name: "greed at threshold", funding8h: 0.11 / 3, expected: 2},              // daily 0.11
		{name: "optimism at threshold", funding8h: 0.07 / 3, expected: 1},           // daily exactly 0.07
		{name: "optimism just below greed", funding8h: 0.036, expected: 1},          // daily 0.108
		{name: "zero funding is mild fear", funding8h: 0, expected: -1},             // daily 0
		{name: "small positive is mild fear", funding8h: 0.02, expected: -1},        // daily 0.06
		{name: "moderate negative", funding8h: -0.03, expected: -2},                 // daily -0.09
		{name: "fear at threshold", funding8h: -0.14 / 3, expected: -2},             // daily exactly -0.14
		{name: "deep negative is extreme fear", funding8h: -0.063, expected: -3},    // daily -0.189
		{name: "very deep negative is extreme fear", funding8h: -1.0, expected: -3}, // daily -3.0
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Index(tt.funding8h))
		})
	}
}

// The ladder's thresholds jump from the optimism band straight to -1, so no
// real input can classify as 0. Sweep a wide range of rates to pin that down.
func TestIndexNeverZero(t *testing.T) {
	for rate := -1.0; rate <= 1.0; rate += 0.0001 {
		if Index(rate) == 0 {
			t.Fatalf("Index(%f) produced 0, which must be unreachable", rate)
		}
	}
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, colorPink, ColorFor(-3))
	assert.Equal(t, colorPurple, ColorFor(-2))
	assert.Equal(t, colorYellow, ColorFor(-1))
	assert.Equal(t, colorYellow, ColorFor(1))
	assert.Equal(t, colorOrange, ColorFor(2))
	assert.Equal(t, colorRed, ColorFor(3))

	// Out-of-range indexes fall back to neutral.
	assert.Equal(t, colorNeutral, ColorFor(-4))
	assert.Equal(t, colorNeutral, ColorFor(4))
	assert.Equal(t, colorNeutral, ColorFor(42))
}
