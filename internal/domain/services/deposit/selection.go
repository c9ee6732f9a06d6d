package deposit

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Selection holds the amount the user picked: either a preset or free text, never both
type Selection struct {
	preset    decimal.Decimal
	hasPreset bool
	custom    string
}

// SelectionSnapshot is the serializable view of a Selection
type SelectionSnapshot struct {
	PresetAmount *decimal.Decimal `json:"preset_amount,omitempty"`
	CustomAmount string           `json:"custom_amount"`
}

// SelectPreset picks a preset amount and clears any custom text
func (s *Selection) SelectPreset(value decimal.Decimal) {
	s.preset = value
	s.hasPreset = true
	s.custom = ""
}

// SetCustom stores the raw custom text and clears the preset
func (s *Selection) SetCustom(text string) {
	s.custom = text
	s.preset = decimal.Zero
	s.hasPreset = false
}

// Effective returns the preset when positive, else the parsed custom amount, else zero.
// The result is never negative.
func (s *Selection) Effective() decimal.Decimal {
	if s.hasPreset && s.preset.IsPositive() {
		return s.preset
	}
	return ParseAmount(s.custom)
}

// Snapshot returns the current selection
func (s *Selection) Snapshot() SelectionSnapshot {
	snap := SelectionSnapshot{CustomAmount: s.custom}
	if s.hasPreset {
		p := s.preset
		snap.PresetAmount = &p
	}
	return snap
}

// ParseAmount parses user typed text as a decimal amount.
// Anything that is not a plain non-negative number yields zero.
func ParseAmount(text string) decimal.Decimal {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(text)
	if err != nil || v.IsNegative() {
		return decimal.Zero
	}
	return v
}
