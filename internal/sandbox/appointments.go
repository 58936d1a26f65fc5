package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	httpmw "github.com/wolfman30/vetclinic-booking/internal/http/middleware"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
)

const wireLayout = "2006-01-02T15:04:05"

func withUser(ctx context.Context, u user) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, u)
}

func currentUser(r *http.Request) user {
	u, _ := r.Context().Value(ctxUserKey{}).(user)
	return u
}

// requestError is a rejection with a status and a Spanish message.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func reject(w http.ResponseWriter, err error) {
	if re, ok := err.(*requestError); ok {
		httpmw.Reject(w, re.status, re.message)
		return
	}
	httpmw.Reject(w, http.StatusInternalServerError, "Error interno")
}

func badRequest(msg string) error { return &requestError{http.StatusBadRequest, msg} }

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	set := u.roleSet()
	s.mu.RLock()
	out := []map[string]any{}
	for _, a := range s.data.sortedAppointments() {
		switch {
		case roles.IsStaff(set):
		case roles.IsPractitioner(set) && a.PractitionerID == u.identity.Document:
		case roles.IsCustomer(set) && a.CustomerID == u.identity.Document:
		default:
			continue
		}
		out = append(out, s.nestedAppointmentJSON(*a))
	}
	s.mu.RUnlock()
	s.writeList(w, out)
}

type appointmentBody struct {
	DateTime       string          `json:"fechaHora"`
	Reason         string          `json:"motivo"`
	Notes          string          `json:"observaciones"`
	CustomerID     string          `json:"clienteId"`
	PetID          json.RawMessage `json:"mascotaId"`
	PractitionerID *string         `json:"veterinarioId"`
	ClinicID       json.RawMessage `json:"veterinariaId"`
	Status         string          `json:"estado"`
}

func (s *Server) createAppointment(w http.ResponseWriter, r *http.Request) {
	var body appointmentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Solicitud inválida")
		return
	}
	s.mu.Lock()
	appt, err := s.apply(currentUser(r), body, nil)
	if err == nil {
		appt.ID = s.data.nextApptID
		s.data.nextApptID++
		s.data.appointments[appt.ID] = &appt
	}
	s.mu.Unlock()
	if err != nil {
		reject(w, err)
		return
	}
	s.logger.Info("sandbox appointment created", "id", appt.ID, "clinic_id", appt.ClinicID, "date_time", appt.DateTime)
	writeJSON(w, http.StatusCreated, flatAppointmentJSON(appt))
}

func (s *Server) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Cita inválida")
		return
	}
	var body appointmentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Solicitud inválida")
		return
	}
	u := currentUser(r)
	set := u.roleSet()
	s.mu.Lock()
	existing, ok := s.data.appointments[id]
	var appt models.Appointment
	switch {
	case !ok:
		err = &requestError{http.StatusNotFound, "Cita no encontrada"}
	case roles.IsPractitioner(set) && existing.PractitionerID != u.identity.Document,
		roles.IsCustomer(set) && existing.CustomerID != u.identity.Document:
		err = &requestError{http.StatusForbidden, "Acceso denegado"}
	default:
		appt, err = s.apply(u, body, existing)
		if err == nil {
			appt.ID = id
			*existing = appt
		}
	}
	s.mu.Unlock()
	if err != nil {
		reject(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flatAppointmentJSON(appt))
}

// apply validates body for u and returns the resulting appointment. The
// caller holds the write lock.
func (s *Server) apply(u user, body appointmentBody, existing *models.Appointment) (models.Appointment, error) {
	set := u.roleSet()
	at, err := time.Parse(wireLayout, body.DateTime)
	if err != nil {
		return models.Appointment{}, badRequest("Formato de fecha inválido, se espera yyyy-MM-ddTHH:mm:ss")
	}
	if h := at.Hour(); h < s.cfg.OpenHour || h >= s.cfg.CloseHour || at.Minute() != 0 || at.Second() != 0 {
		return models.Appointment{}, badRequest("La hora está fuera del horario de atención")
	}
	petID, err := strconv.ParseInt(string(trimQuotes(body.PetID)), 10, 64)
	if err != nil {
		return models.Appointment{}, badRequest("Mascota inválida")
	}
	clinicID, err := strconv.ParseInt(string(trimQuotes(body.ClinicID)), 10, 64)
	if err != nil {
		return models.Appointment{}, badRequest("Veterinaria inválida")
	}
	clinic, ok := s.data.clinic(clinicID)
	if !ok {
		return models.Appointment{}, &requestError{http.StatusNotFound, "Veterinaria no encontrada"}
	}
	pet, ok := s.data.pet(petID)
	if !ok {
		return models.Appointment{}, &requestError{http.StatusNotFound, "Mascota no encontrada"}
	}
	customer, ok := s.data.users[body.CustomerID]
	if !ok || !roles.IsCustomer(customer.roleSet()) {
		return models.Appointment{}, badRequest("Cliente inválido")
	}
	if pet.OwnerDocument != customer.identity.Document {
		return models.Appointment{}, badRequest("La mascota no pertenece al cliente")
	}
	if roles.IsCustomer(set) && body.CustomerID != u.identity.Document {
		return models.Appointment{}, &requestError{http.StatusForbidden, "Acceso denegado"}
	}

	status := models.StatusScheduled
	if body.Status != "" {
		parsed, ok := models.ParseStatus(body.Status)
		if !ok {
			return models.Appointment{}, badRequest("Estado inválido")
		}
		status = parsed
	}

	var except int64
	if existing != nil {
		except = existing.ID
	}
	dateTime := at.Format(wireLayout)
	practitioner := ""
	if body.PractitionerID != nil {
		practitioner = *body.PractitionerID
	}
	candidates := s.data.practitioners(clinicID)
	switch {
	case practitioner != "":
		p, ok := s.data.users[practitioner]
		if !ok || !roles.IsPractitioner(p.roleSet()) || p.identity.ClinicID != clinicID {
			return models.Appointment{}, badRequest("El veterinario no pertenece a la veterinaria")
		}
		if s.data.busy(clinicID, practitioner, dateTime, except) {
			return models.Appointment{}, &requestError{http.StatusConflict, "El veterinario ya tiene una cita en ese horario"}
		}
	case len(candidates) > 0:
		for _, c := range candidates {
			if !s.data.busy(clinicID, c.identity.Document, dateTime, except) {
				practitioner = c.identity.Document
				break
			}
		}
		if practitioner == "" {
			return models.Appointment{}, &requestError{http.StatusConflict, "No hay veterinarios disponibles en ese horario"}
		}
	default:
		if s.data.busy(clinicID, "", dateTime, except) {
			return models.Appointment{}, &requestError{http.StatusConflict, "El horario seleccionado ya no está disponible"}
		}
	}

	appt := models.Appointment{
		DateTime:     dateTime,
		Reason:       body.Reason,
		Notes:        body.Notes,
		CustomerID:   customer.identity.Document,
		PetID:        pet.ID,
		ClinicID:     clinic.ID,
		Status:       status,
		CustomerName: customer.identity.DisplayName(),
		PetName:      pet.Name,
		ClinicName:   clinic.Name,
	}
	if practitioner != "" {
		appt.PractitionerID = practitioner
		appt.PractitionerName = s.data.users[practitioner].identity.DisplayName()
	}
	return appt, nil
}

func trimQuotes(raw json.RawMessage) []byte {
	b := []byte(raw)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Cita inválida")
		return
	}
	status, ok := models.ParseStatus(r.URL.Query().Get("estado"))
	if !ok {
		httpmw.Reject(w, http.StatusBadRequest, "Estado inválido")
		return
	}
	u := currentUser(r)
	set := u.roleSet()

	s.mu.Lock()
	defer s.mu.Unlock()
	appt, found := s.data.appointments[id]
	switch {
	case !found:
		httpmw.Reject(w, http.StatusNotFound, "Cita no encontrada")
		return
	case roles.IsCustomer(set) && (appt.CustomerID != u.identity.Document || status != models.StatusCancelled):
		httpmw.Reject(w, http.StatusForbidden, "Acceso denegado")
		return
	case roles.IsPractitioner(set) && appt.PractitionerID != u.identity.Document:
		httpmw.Reject(w, http.StatusForbidden, "Acceso denegado")
		return
	case appt.Status == models.StatusCancelled || appt.Status == models.StatusCompleted:
		httpmw.Reject(w, http.StatusBadRequest, fmt.Sprintf("La cita ya está %s", appt.Status))
		return
	}
	appt.Status = status
	writeJSON(w, http.StatusOK, flatAppointmentJSON(*appt))
}

// availability lists the hourly slots of a clinic on a date. A slot is free
// while some practitioner of the clinic is free then; clinics without
// practitioners take one appointment per slot.
func (s *Server) availability(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("fecha"))
	if err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Fecha inválida")
		return
	}
	clinicID, err := strconv.ParseInt(r.URL.Query().Get("veterinariaId"), 10, 64)
	if err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Veterinaria inválida")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.clinic(clinicID); !ok {
		httpmw.Reject(w, http.StatusNotFound, "Veterinaria no encontrada")
		return
	}
	practitioners := s.data.practitioners(clinicID)
	now := s.cfg.Now()
	out := []map[string]any{}
	for h := s.cfg.OpenHour; h < s.cfg.CloseHour; h++ {
		at := time.Date(date.Year(), date.Month(), date.Day(), h, 0, 0, 0, now.Location())
		dateTime := at.Format(wireLayout)
		slot := map[string]any{"fechaHora": dateTime, "disponible": false}
		if at.After(now) {
			if len(practitioners) == 0 {
				slot["disponible"] = !s.data.busy(clinicID, "", dateTime, 0)
			}
			for _, p := range practitioners {
				if !s.data.busy(clinicID, p.identity.Document, dateTime, 0) {
					slot["disponible"] = true
					if len(practitioners) > 1 {
						slot["veterinarioId"] = p.identity.Document
						slot["veterinarioNombre"] = p.identity.DisplayName()
					}
					break
				}
			}
		}
		out = append(out, slot)
	}
	s.writeList(w, out)
}

func (s *Server) nestedAppointmentJSON(a models.Appointment) map[string]any {
	out := map[string]any{
		"id":            a.ID,
		"fechaHora":     a.DateTime,
		"motivo":        a.Reason,
		"observaciones": a.Notes,
		"estado":        string(a.Status),
		"cliente":       personJSON(s.data.users[a.CustomerID]),
		"mascota":       map[string]any{"id": a.PetID, "nombre": a.PetName},
		"veterinaria":   map[string]any{"id": a.ClinicID, "nombre": a.ClinicName},
		"veterinario":   nil,
	}
	if a.PractitionerID != "" {
		out["veterinario"] = personJSON(s.data.users[a.PractitionerID])
	}
	return out
}

func personJSON(u *user) map[string]any {
	if u == nil {
		return nil
	}
	return map[string]any{
		"documento": u.identity.Document,
		"nombres":   u.identity.FirstName,
		"apellidos": u.identity.LastName,
	}
}

// flatAppointmentJSON is the snake_case shape returned by writes.
func flatAppointmentJSON(a models.Appointment) map[string]any {
	out := map[string]any{
		"id":                a.ID,
		"fechaHora":         a.DateTime,
		"motivo":            a.Reason,
		"observaciones":     a.Notes,
		"estado":            string(a.Status),
		"cliente_documento": a.CustomerID,
		"mascota_id":        a.PetID,
		"veterinaria_id":    a.ClinicID,
	}
	if a.PractitionerID != "" {
		out["veterinario_documento"] = a.PractitionerID
	}
	return out
}
