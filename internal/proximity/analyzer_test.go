package proximity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0, 0, 10, 10, 1}, Box{0, 0, 10, 10, 1}, 1},
		{"half overlap", Box{0, 0, 10, 10, 1}, Box{5, 0, 10, 10, 1}, 50.0 / 150.0},
		{"disjoint", Box{0, 0, 10, 10, 1}, Box{20, 20, 5, 5, 1}, 0},
		{"touching edges", Box{0, 0, 10, 10, 1}, Box{10, 0, 10, 10, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalizedDistance(t *testing.T) {
	person := Box{X: 0, Y: 0, W: 100, H: 200}
	phone := Box{X: 40, Y: 130, W: 20, H: 40} // center (50,150), person center (50,100)
	assert.InDelta(t, 0.25, NormalizedDistance(person, phone), 1e-9)

	assert.True(t, math.IsInf(NormalizedDistance(Box{W: 10}, phone), 1))
}

func TestAnalyze(t *testing.T) {
	cfg := DefaultConfig()
	person := Box{X: 100, Y: 50, W: 200, H: 400, Confidence: 0.9}

	tests := []struct {
		name        string
		persons     []Box
		phones      []Box
		inUse       bool
		wantPersons int
		wantPhones  int
	}{
		{
			name:    "phone inside person box",
			persons: []Box{person},
			phones:  []Box{{X: 180, Y: 200, W: 40, H: 80, Confidence: 0.8}},
			inUse:   true,
			wantPersons: 1, wantPhones: 1,
		},
		{
			name:    "phone near but not overlapping",
			persons: []Box{person},
			phones:  []Box{{X: 300, Y: 230, W: 20, H: 40, Confidence: 0.8}}, // 0.275 person heights
			inUse:   true,
			wantPersons: 1, wantPhones: 1,
		},
		{
			name:    "phone far away",
			persons: []Box{person},
			phones:  []Box{{X: 900, Y: 600, W: 40, H: 80, Confidence: 0.8}},
			inUse:   false,
			wantPersons: 1, wantPhones: 1,
		},
		{
			name:    "phone below confidence",
			persons: []Box{person},
			phones:  []Box{{X: 180, Y: 200, W: 40, H: 80, Confidence: 0.39}},
			inUse:   false,
			wantPersons: 1, wantPhones: 0,
		},
		{
			name:    "person below confidence",
			persons: []Box{{X: 100, Y: 50, W: 200, H: 400, Confidence: 0.49}},
			phones:  []Box{{X: 180, Y: 200, W: 40, H: 80, Confidence: 0.8}},
			inUse:   false,
			wantPersons: 0, wantPhones: 1,
		},
		{
			name:    "no person",
			phones:  []Box{{X: 180, Y: 200, W: 40, H: 80, Confidence: 0.8}},
			inUse:   false,
			wantPersons: 0, wantPhones: 1,
		},
		{
			name:    "zero height person needs overlap",
			persons: []Box{{X: 100, Y: 100, W: 50, H: 0, Confidence: 0.9}},
			phones:  []Box{{X: 110, Y: 90, W: 10, H: 20, Confidence: 0.9}},
			inUse:   false,
			wantPersons: 1, wantPhones: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Analyze(cfg, tt.persons, tt.phones)
			assert.Equal(t, tt.inUse, res.PhoneInUse)
			assert.Equal(t, tt.wantPersons, res.PersonCount())
			assert.Equal(t, tt.wantPhones, res.PhoneCount())
			if tt.inUse {
				require.NotNil(t, res.Best)
			} else {
				assert.Nil(t, res.Best)
			}
		})
	}
}

func TestAnalyze_BestPairPrefersPhoneConfidence(t *testing.T) {
	person := Box{X: 0, Y: 0, W: 200, H: 400, Confidence: 0.9}
	weak := Box{X: 50, Y: 100, W: 20, H: 40, Confidence: 0.5}
	strong := Box{X: 120, Y: 100, W: 20, H: 40, Confidence: 0.95}
	far := Box{X: 2000, Y: 2000, W: 20, H: 40, Confidence: 0.99}

	res := Analyze(DefaultConfig(), []Box{person}, []Box{weak, far, strong})
	require.NotNil(t, res.Best)
	assert.Equal(t, strong, res.Best.Phone)
	assert.Equal(t, []bool{true, false, true}, res.Near)
}
