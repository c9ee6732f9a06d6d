package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type passwordForm struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,strong_password,nefield=Current"`
	Confirm string `json:"confirm_password" validate:"required,eqfield=New"`
}

type profileForm struct {
	Name     string `json:"display_name" validate:"required,min=2,max=64,safe_string"`
	Timezone string `json:"timezone" validate:"omitempty,iana_timezone"`
}

func TestCheck_Valid(t *testing.T) {
	v := NewValidator()
	result := Check(v, passwordForm{Current: "old", New: "N3w-Passw0rd", Confirm: "N3w-Passw0rd"})
	assert.True(t, result.Valid())
	assert.Nil(t, result.Errors())
	assert.Equal(t, "N3w-Passw0rd", result.Record().New)
}

func TestCheck_ReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	result := Check(v, passwordForm{Current: "old", New: "weak", Confirm: "other"})
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors(), "new_password")
	assert.Equal(t, "does not match", result.Errors()["confirm_password"])
}

func TestCustomRules(t *testing.T) {
	v := NewValidator()

	errs := Check(v, profileForm{Name: "<b>x</b>", Timezone: "Mars/Olympus"}).Errors()
	assert.Contains(t, errs, "display_name")
	assert.Equal(t, "must be a valid time zone", errs["timezone"])

	assert.True(t, Check(v, profileForm{Name: "Ann", Timezone: "Europe/Berlin"}).Valid())
}

func TestFieldErrorsMessage(t *testing.T) {
	err := FieldErrors{"email": "is required"}
	assert.Equal(t, "validation failed: email: is required", err.Error())
}
