package booking

import (
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
)

// ValidationCode identifies which rule a draft broke.
type ValidationCode string

const (
	CodeMissingFields   ValidationCode = "missing_fields"
	CodeMissingClinic   ValidationCode = "missing_clinic"
	CodeInvalidDateTime ValidationCode = "invalid_date_time"
	CodeInvalidPet      ValidationCode = "invalid_pet"
	CodeInvalidClinic   ValidationCode = "invalid_clinic"
)

// ValidationError is a user-facing rejection raised before any network call.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	minuteLayout = "2006-01-02T15:04"
	secondLayout = "2006-01-02T15:04:05"
)

// NormalizeDateTime accepts a local timestamp at minute precision, which is
// extended with ":00", or at second precision. Anything else is rejected.
func NormalizeDateTime(raw string) (string, bool) {
	switch len(raw) {
	case len(minuteLayout):
		if _, err := time.Parse(minuteLayout, raw); err != nil {
			return "", false
		}
		return raw + ":00", true
	case len(secondLayout):
		if _, err := time.Parse(secondLayout, raw); err != nil {
			return "", false
		}
		return raw, true
	}
	return "", false
}

// Validate checks d in order and returns the first violation, or the wire
// payload for identity. New drafts go out as PROGRAMADA; edits keep their
// status. A practitioner always books for themselves.
func Validate(d Draft, identity models.Identity) (models.AppointmentRequest, error) {
	dateTime := strings.TrimSpace(d.DateTime)
	customerID := strings.TrimSpace(d.CustomerID)
	petRef := strings.TrimSpace(d.PetID)
	clinicRef := strings.TrimSpace(d.ClinicID)

	if dateTime == "" || customerID == "" || petRef == "" {
		return models.AppointmentRequest{}, &ValidationError{
			Code:    CodeMissingFields,
			Message: "date and time, customer and pet are required",
		}
	}
	if clinicRef == "" {
		return models.AppointmentRequest{}, &ValidationError{
			Code:    CodeMissingClinic,
			Message: "choose a clinic",
		}
	}
	normalized, ok := NormalizeDateTime(dateTime)
	if !ok {
		return models.AppointmentRequest{}, &ValidationError{
			Code:    CodeInvalidDateTime,
			Message: "date and time must look like YYYY-MM-DDTHH:MM",
		}
	}
	petID, err := strconv.ParseInt(petRef, 10, 64)
	if err != nil {
		return models.AppointmentRequest{}, &ValidationError{
			Code:    CodeInvalidPet,
			Message: "pet is not valid",
		}
	}
	clinicID, err := strconv.ParseInt(clinicRef, 10, 64)
	if err != nil {
		return models.AppointmentRequest{}, &ValidationError{
			Code:    CodeInvalidClinic,
			Message: "clinic is not valid",
		}
	}

	status := d.Status
	if !d.IsEdit() || status == "" {
		status = models.StatusScheduled
	}

	var practitioner *string
	if roles.IsPractitioner(identity.RoleSet()) && identity.Document != "" {
		self := identity.Document
		practitioner = &self
	} else if p := strings.TrimSpace(d.PractitionerID); p != "" {
		practitioner = &p
	}

	return models.AppointmentRequest{
		DateTime:       normalized,
		Reason:         strings.TrimSpace(d.Reason),
		Notes:          strings.TrimSpace(d.Notes),
		CustomerID:     customerID,
		PetID:          petID,
		PractitionerID: practitioner,
		ClinicID:       clinicID,
		Status:         status,
	}, nil
}
