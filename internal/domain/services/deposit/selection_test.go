package deposit

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSelection_PresetAndCustomAreExclusive(t *testing.T) {
	var s Selection

	s.SetCustom("75")
	s.SelectPreset(decimal.NewFromInt(50))
	snap := s.Snapshot()
	assert.NotNil(t, snap.PresetAmount)
	assert.Empty(t, snap.CustomAmount)
	assert.True(t, s.Effective().Equal(decimal.NewFromInt(50)))

	s.SetCustom("12.5")
	snap = s.Snapshot()
	assert.Nil(t, snap.PresetAmount)
	assert.Equal(t, "12.5", snap.CustomAmount)
	assert.True(t, s.Effective().Equal(decimal.RequireFromString("12.5")))
}

func TestSelection_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	presets := []int64{10, 25, 50, 100}
	customs := []string{"", "0", "5", "100.5", "abc", "-3", " 7 ", "1,000"}

	for run := 0; run < 200; run++ {
		var s Selection
		var want decimal.Decimal
		for step := 0; step < 10; step++ {
			if rng.Intn(2) == 0 {
				p := decimal.NewFromInt(presets[rng.Intn(len(presets))])
				s.SelectPreset(p)
				want = p
			} else {
				c := customs[rng.Intn(len(customs))]
				s.SetCustom(c)
				want = ParseAmount(c)
			}

			snap := s.Snapshot()
			assert.False(t, snap.PresetAmount != nil && snap.CustomAmount != "")
			assert.False(t, s.Effective().IsNegative())
			assert.True(t, s.Effective().Equal(want))
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"100.5", "100.5"},
		{"  42 ", "42"},
		{"abc", "0"},
		{"12abc", "0"},
		{"-5", "0"},
		{"1,000", "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAmount(tt.in).String(), tt.in)
	}
}

func TestSelection_EmptyIsZero(t *testing.T) {
	var s Selection
	assert.True(t, s.Effective().IsZero())
}
