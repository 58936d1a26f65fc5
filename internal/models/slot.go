package models

import (
	"encoding/json"
	"strings"
)

// Slot is one bookable time for a (clinic, date) query. Slots are recomputed
// for every query and never reused across dates.
type Slot struct {
	DateTime         string `json:"fechaHora"`
	Available        bool   `json:"disponible"`
	PractitionerID   string `json:"veterinarioId,omitempty"`
	PractitionerName string `json:"veterinarioNombre,omitempty"`
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var w struct {
		DateTime         string     `json:"fechaHora"`
		DateTimeAlt      string     `json:"dateTime"`
		Available        *bool      `json:"disponible"`
		AvailableAlt     *bool      `json:"available"`
		PractitionerID   flexString `json:"veterinarioId"`
		PractitionerName string     `json:"veterinarioNombre"`
		Practitioner     *ref       `json:"veterinario"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	available := false
	switch {
	case w.Available != nil:
		available = *w.Available
	case w.AvailableAlt != nil:
		available = *w.AvailableAlt
	}
	var nestedID, nestedName string
	if w.Practitioner != nil {
		nestedID = string(w.Practitioner.Document)
		nestedName = w.Practitioner.displayName()
	}
	*s = Slot{
		DateTime:         firstNonEmpty(w.DateTime, w.DateTimeAlt),
		Available:        available,
		PractitionerID:   firstNonEmpty(string(w.PractitionerID), nestedID),
		PractitionerName: firstNonEmpty(w.PractitionerName, nestedName),
	}
	return nil
}

// Label is the HH:MM part of the slot, or the raw value if it has no time.
func (s Slot) Label() string {
	if i := strings.IndexByte(s.DateTime, 'T'); i >= 0 && len(s.DateTime) >= i+6 {
		return s.DateTime[i+1 : i+6]
	}
	return s.DateTime
}
