package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Status is the wire value of an appointment status.
type Status string

const (
	StatusScheduled  Status = "PROGRAMADA"
	StatusConfirmed  Status = "CONFIRMADA"
	StatusInProgress Status = "EN_CURSO"
	StatusCompleted  Status = "COMPLETADA"
	StatusCancelled  Status = "CANCELADA"
)

// ParseStatus normalizes a raw status. The second result is false for values
// outside the known set.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, true
	}
	return s, false
}

// Appointment is a server-confirmed appointment.
type Appointment struct {
	ID               int64  `json:"id"`
	DateTime         string `json:"fechaHora"`
	Reason           string `json:"motivo,omitempty"`
	Notes            string `json:"observaciones,omitempty"`
	CustomerID       string `json:"clienteId"`
	PetID            int64  `json:"mascotaId"`
	PractitionerID   string `json:"veterinarioId,omitempty"`
	ClinicID         int64  `json:"veterinariaId"`
	Status           Status `json:"estado"`
	CustomerName     string `json:"clienteNombre,omitempty"`
	PetName          string `json:"mascotaNombre,omitempty"`
	PractitionerName string `json:"veterinarioNombre,omitempty"`
	ClinicName       string `json:"veterinariaNombre,omitempty"`
}

type appointmentWire struct {
	ID       flexID `json:"id"`
	DateTime string `json:"fechaHora"`
	Reason   string `json:"motivo"`
	Notes    string `json:"observaciones"`
	Status   string `json:"estado"`

	// flat camelCase shape
	CustomerID     flexString `json:"clienteId"`
	PetID          flexID     `json:"mascotaId"`
	PractitionerID flexString `json:"veterinarioId"`
	ClinicID       flexID     `json:"veterinariaId"`

	// flat snake_case *_id / *_documento shape
	CustomerDoc     flexString `json:"cliente_documento"`
	CustomerIDSnake flexString `json:"cliente_id"`
	PetIDSnake      flexID     `json:"mascota_id"`
	PractitionerDoc flexString `json:"veterinario_documento"`
	PractitionerIDS flexString `json:"veterinario_id"`
	ClinicIDSnake   flexID     `json:"veterinaria_id"`

	// nested object-reference shape
	Customer     *ref `json:"cliente"`
	Pet          *ref `json:"mascota"`
	Practitioner *ref `json:"veterinario"`
	Clinic       *ref `json:"veterinaria"`

	CustomerName     string `json:"clienteNombre"`
	PetName          string `json:"mascotaNombre"`
	PractitionerName string `json:"veterinarioNombre"`
	ClinicName       string `json:"veterinariaNombre"`
}

// UnmarshalJSON reads the flat and the nested server shapes alike.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var w appointmentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var (
		nestedCustomer, nestedPractitioner string
		nestedPet, nestedClinic            int64
	)
	if w.Customer != nil {
		nestedCustomer = string(w.Customer.Document)
	}
	if w.Pet != nil {
		nestedPet = int64(w.Pet.ID)
	}
	if w.Practitioner != nil {
		nestedPractitioner = string(w.Practitioner.Document)
	}
	if w.Clinic != nil {
		nestedClinic = int64(w.Clinic.ID)
	}
	status, _ := ParseStatus(w.Status)
	*a = Appointment{
		ID:               int64(w.ID),
		DateTime:         strings.TrimSpace(w.DateTime),
		Reason:           w.Reason,
		Notes:            w.Notes,
		CustomerID:       firstNonEmpty(string(w.CustomerID), string(w.CustomerDoc), string(w.CustomerIDSnake), nestedCustomer),
		PetID:            firstNonZero(int64(w.PetID), int64(w.PetIDSnake), nestedPet),
		PractitionerID:   firstNonEmpty(string(w.PractitionerID), string(w.PractitionerDoc), string(w.PractitionerIDS), nestedPractitioner),
		ClinicID:         firstNonZero(int64(w.ClinicID), int64(w.ClinicIDSnake), nestedClinic),
		Status:           status,
		CustomerName:     firstNonEmpty(w.CustomerName, w.Customer.displayName()),
		PetName:          firstNonEmpty(w.PetName, w.Pet.displayName()),
		PractitionerName: firstNonEmpty(w.PractitionerName, w.Practitioner.displayName()),
		ClinicName:       firstNonEmpty(w.ClinicName, w.Clinic.displayName()),
	}
	return nil
}

// ClinicRef renders the clinic id as a form value, "" when unset.
func (a Appointment) ClinicRef() string {
	if a.ClinicID == 0 {
		return ""
	}
	return strconv.FormatInt(a.ClinicID, 10)
}

// PetRef renders the pet id as a form value, "" when unset.
func (a Appointment) PetRef() string {
	if a.PetID == 0 {
		return ""
	}
	return strconv.FormatInt(a.PetID, 10)
}

// AppointmentRequest is the create/update payload. PractitionerID is a
// pointer so an unset practitioner goes out as null, never as "".
type AppointmentRequest struct {
	DateTime       string  `json:"fechaHora"`
	Reason         string  `json:"motivo,omitempty"`
	Notes          string  `json:"observaciones,omitempty"`
	CustomerID     string  `json:"clienteId"`
	PetID          int64   `json:"mascotaId"`
	PractitionerID *string `json:"veterinarioId"`
	ClinicID       int64   `json:"veterinariaId"`
	Status         Status  `json:"estado"`
}
