// Package models holds the veterinary clinic entities exchanged with the
// backend, with decoders tolerant of the several shapes the backend emits.
package models

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/wolfman30/vetclinic-booking/internal/roles"
)

// Identity is the authenticated user snapshot returned by sign-in.
type Identity struct {
	Document  string   `json:"documento"`
	Username  string   `json:"username"`
	FirstName string   `json:"nombres"`
	LastName  string   `json:"apellidos"`
	Email     string   `json:"correo,omitempty"`
	Phone     string   `json:"telefono,omitempty"`
	Roles     []string `json:"roles"`
	ClinicID  int64    `json:"veterinariaId,omitempty"`
}

type identityWire struct {
	Document      flexString `json:"documento"`
	DocumentAlt   flexString `json:"document"`
	Username      string     `json:"username"`
	FirstName     string     `json:"nombres"`
	Name          string     `json:"nombre"`
	LastName      string     `json:"apellidos"`
	Email         string     `json:"correo"`
	EmailAlt      string     `json:"email"`
	Phone         string     `json:"telefono"`
	Roles         roleList   `json:"roles"`
	Role          string     `json:"rol"`
	ClinicID      flexID     `json:"veterinariaId"`
	ClinicIDSnake flexID     `json:"veterinaria_id"`
	Clinic        *ref       `json:"veterinaria"`
}

// UnmarshalJSON accepts the sign-in snapshot, the user list entries and the
// persisted form written by MarshalJSON.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var w identityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var clinicRef int64
	if w.Clinic != nil {
		clinicRef = int64(w.Clinic.ID)
	}
	rolesOut := []string(w.Roles)
	if len(rolesOut) == 0 && w.Role != "" {
		rolesOut = []string{w.Role}
	}
	*i = Identity{
		Document:  firstNonEmpty(string(w.Document), string(w.DocumentAlt)),
		Username:  strings.TrimSpace(w.Username),
		FirstName: firstNonEmpty(w.FirstName, w.Name),
		LastName:  strings.TrimSpace(w.LastName),
		Email:     firstNonEmpty(w.Email, w.EmailAlt),
		Phone:     strings.TrimSpace(w.Phone),
		Roles:     rolesOut,
		ClinicID:  firstNonZero(int64(w.ClinicID), int64(w.ClinicIDSnake), clinicRef),
	}
	return nil
}

// RoleSet normalizes the raw role strings. It is recomputed on every call.
func (i Identity) RoleSet() roles.Set {
	return roles.NewSet(i.Roles...)
}

// DisplayName joins the name parts, falling back to the username.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Username
	}
	return name
}

// ClinicRef renders the bound clinic as a form value, or "" when unbound.
func (i Identity) ClinicRef() string {
	if i.ClinicID == 0 {
		return ""
	}
	return strconv.FormatInt(i.ClinicID, 10)
}

// Practitioner is the subset of an identity used to pick a veterinarian.
type Practitioner struct {
	Document  string `json:"documento"`
	FirstName string `json:"nombres"`
	LastName  string `json:"apellidos"`
	ClinicID  int64  `json:"veterinariaId,omitempty"`
}

// DisplayName joins the name parts.
func (p Practitioner) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Document
	}
	return name
}

// PractitionerFrom projects an identity onto a practitioner entry.
func PractitionerFrom(i Identity) Practitioner {
	return Practitioner{
		Document:  i.Document,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		ClinicID:  i.ClinicID,
	}
}

// Customer is the subset of an identity usable as the appointment party.
type Customer struct {
	Document  string `json:"documento"`
	FirstName string `json:"nombres"`
	LastName  string `json:"apellidos"`
	Email     string `json:"correo,omitempty"`
	Phone     string `json:"telefono,omitempty"`
}

// DisplayName joins the name parts.
func (c Customer) DisplayName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Document
	}
	return name
}

// CustomerFrom projects an identity onto a customer entry.
func CustomerFrom(i Identity) Customer {
	return Customer{
		Document:  i.Document,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		Email:     i.Email,
		Phone:     i.Phone,
	}
}
