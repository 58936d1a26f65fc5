package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Clinic is a veterinary clinic. Reference data, immutable for a session.
type Clinic struct {
	ID      int64  `json:"id"`
	Name    string `json:"nombre"`
	Address string `json:"direccion,omitempty"`
	Phone   string `json:"telefono,omitempty"`
}

func (c *Clinic) UnmarshalJSON(data []byte) error {
	var w struct {
		ID      flexID `json:"id"`
		Nombre  string `json:"nombre"`
		Name    string `json:"name"`
		Address string `json:"direccion"`
		Phone   string `json:"telefono"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Clinic{
		ID:      int64(w.ID),
		Name:    firstNonEmpty(w.Nombre, w.Name),
		Address: strings.TrimSpace(w.Address),
		Phone:   strings.TrimSpace(w.Phone),
	}
	return nil
}

// Ref renders the id as a form value.
func (c Clinic) Ref() string { return strconv.FormatInt(c.ID, 10) }

// Pet belongs to exactly one customer.
type Pet struct {
	ID            int64  `json:"id"`
	Name          string `json:"nombre"`
	Species       string `json:"especie"`
	Breed         string `json:"raza,omitempty"`
	OwnerDocument string `json:"propietarioDocumento"`
}

func (p *Pet) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          flexID     `json:"id"`
		Name        string     `json:"nombre"`
		Species     string     `json:"especie"`
		Breed       string     `json:"raza"`
		Owner       flexString `json:"propietarioDocumento"`
		OwnerSnake  flexString `json:"propietario_documento"`
		OwnerID     flexString `json:"propietarioId"`
		CustomerID  flexString `json:"clienteId"`
		OwnerNested *ref       `json:"propietario"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var nested string
	if w.OwnerNested != nil {
		nested = string(w.OwnerNested.Document)
	}
	*p = Pet{
		ID:            int64(w.ID),
		Name:          strings.TrimSpace(w.Name),
		Species:       strings.TrimSpace(w.Species),
		Breed:         strings.TrimSpace(w.Breed),
		OwnerDocument: firstNonEmpty(string(w.Owner), string(w.OwnerSnake), string(w.OwnerID), string(w.CustomerID), nested),
	}
	return nil
}

// Ref renders the id as a form value.
func (p Pet) Ref() string { return strconv.FormatInt(p.ID, 10) }

// PetsOwnedBy filters pets down to the ones owned by customerID.
func PetsOwnedBy(pets []Pet, customerID string) []Pet {
	customerID = strings.TrimSpace(customerID)
	out := make([]Pet, 0, len(pets))
	if customerID == "" {
		return out
	}
	for _, p := range pets {
		if p.OwnerDocument == customerID {
			out = append(out, p)
		}
	}
	return out
}
