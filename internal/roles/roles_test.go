package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNormalizesNamespacedAndBareForms(t *testing.T) {
	tests := []struct {
		raw  string
		want Tag
	}{
		{"VETERINARIO", Practitioner},
		{"ROLE_VETERINARIO", Practitioner},
		{" role_veterinario ", Practitioner},
		{"ADMIN", Admin},
		{"ROLE_ADMINISTRADOR", Admin},
		{"RECEPCIONISTA", FrontDesk},
		{"ROLE_CLIENTE", Customer},
		{"cliente", Customer},
		{"ROLE_", Unknown},
		{"", Unknown},
		{"SUPERUSER", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name         string
		raw          []string
		customer     bool
		practitioner bool
		staff        bool
	}{
		{"bare customer", []string{"CLIENTE"}, true, false, false},
		{"namespaced customer", []string{"ROLE_CLIENTE"}, true, false, false},
		{"bare practitioner", []string{"VETERINARIO"}, false, true, false},
		{"namespaced practitioner", []string{"ROLE_VETERINARIO"}, false, true, false},
		{"admin", []string{"ROLE_ADMIN"}, false, false, true},
		{"front desk", []string{"RECEPCIONISTA"}, false, false, true},
		{"admin practitioner is staff", []string{"ADMIN", "VETERINARIO"}, false, false, true},
		{"no roles", nil, false, false, false},
		{"unknown only", []string{"GUEST"}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSet(tt.raw...)
			assert.Equal(t, tt.customer, IsCustomer(s), "IsCustomer")
			assert.Equal(t, tt.practitioner, IsPractitioner(s), "IsPractitioner")
			assert.Equal(t, tt.staff, IsStaff(s), "IsStaff")
		})
	}
}

func TestSetDeduplicatesDualEncodings(t *testing.T) {
	s := NewSet("VETERINARIO", "ROLE_VETERINARIO", "nonsense")
	assert.Equal(t, []Tag{Practitioner}, s.Tags())
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "VETERINARIO", Practitioner.String())
	assert.Equal(t, Practitioner, Parse(Practitioner.String()))
	assert.Equal(t, "UNKNOWN", Unknown.String())
}
