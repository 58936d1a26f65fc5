// Package clinicapi wraps the veterinary clinic REST surface. Each endpoint
// family decodes through one tolerant function so envelope variance never
// leaks into callers.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

// Doer is the transport the client sends through.
type Doer interface {
	Do(ctx context.Context, req transport.Request, out any) error
}

// Client is the typed clinic API.
type Client struct {
	http   Doer
	logger *logging.Logger
}

// New creates a clinic API client on top of a transport.
func New(doer Doer, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{http: doer, logger: logger}
}

// SignInResult is the sign-in outcome.
type SignInResult struct {
	Token    string
	Identity models.Identity
}

// ErrNoToken is returned when sign-in succeeds without handing out a token.
var ErrNoToken = errors.New("clinicapi: sign-in response carried no token")

// SignIn exchanges credentials for a token and identity snapshot.
func (c *Client) SignIn(ctx context.Context, username, password string) (*SignInResult, error) {
	var raw json.RawMessage
	err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/auth/signin",
		Body:   map[string]string{"username": username, "password": password},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	var envelope struct {
		Token       string          `json:"token"`
		AccessToken string          `json:"accessToken"`
		Usuario     json.RawMessage `json:"usuario"`
		User        json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("sign in: decode response: %w", err)
	}
	token := strings.TrimSpace(envelope.Token)
	if token == "" {
		token = strings.TrimSpace(envelope.AccessToken)
	}
	if token == "" {
		return nil, ErrNoToken
	}

	identityRaw := envelope.Usuario
	if len(bytes.TrimSpace(identityRaw)) == 0 {
		identityRaw = envelope.User
	}
	if len(bytes.TrimSpace(identityRaw)) == 0 {
		// flat response: identity fields sit next to the token
		identityRaw = raw
	}
	var identity models.Identity
	if err := json.Unmarshal(identityRaw, &identity); err != nil {
		return nil, fmt.Errorf("sign in: decode identity: %w", err)
	}
	return &SignInResult{Token: token, Identity: identity}, nil
}

// ListUsers returns every user visible to the caller.
func (c *Client) ListUsers(ctx context.Context) ([]models.Identity, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/usuarios", "/usuarios", nil, &raw); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return decodeList[models.Identity](raw)
}

// ListCustomers returns the users holding the customer role.
func (c *Client) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Customer, 0, len(users))
	for _, u := range users {
		if u.RoleSet().Has(roles.Customer) {
			out = append(out, models.CustomerFrom(u))
		}
	}
	return out, nil
}

// ListPractitioners returns every practitioner.
func (c *Client) ListPractitioners(ctx context.Context) ([]models.Practitioner, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/usuarios/veterinarios", "/usuarios/veterinarios", nil, &raw); err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	return practitionersFrom(raw)
}

// ListPractitionersByClinic returns the practitioners bound to one clinic.
func (c *Client) ListPractitionersByClinic(ctx context.Context, clinicID int64) ([]models.Practitioner, error) {
	path := "/usuarios/veterinarios/por-veterinaria/" + strconv.FormatInt(clinicID, 10)
	var raw json.RawMessage
	if err := c.get(ctx, "/usuarios/veterinarios/por-veterinaria/{clinicId}", path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list practitioners for clinic %d: %w", clinicID, err)
	}
	return practitionersFrom(raw)
}

func practitionersFrom(raw json.RawMessage) ([]models.Practitioner, error) {
	users, err := decodeList[models.Identity](raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.Practitioner, 0, len(users))
	for _, u := range users {
		out = append(out, models.PractitionerFrom(u))
	}
	return out, nil
}

// ListPets returns every pet visible to the caller.
func (c *Client) ListPets(ctx context.Context) ([]models.Pet, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/mascotas", "/mascotas", nil, &raw); err != nil {
		return nil, fmt.Errorf("list pets: %w", err)
	}
	return decodeList[models.Pet](raw)
}

// ListPetsByOwner returns the pets of one customer.
func (c *Client) ListPetsByOwner(ctx context.Context, customerID string) ([]models.Pet, error) {
	path := "/mascotas/propietario/" + url.PathEscape(customerID)
	var raw json.RawMessage
	if err := c.get(ctx, "/mascotas/propietario/{customerId}", path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list pets of %s: %w", customerID, err)
	}
	return decodeList[models.Pet](raw)
}

// ListClinics returns every clinic.
func (c *Client) ListClinics(ctx context.Context) ([]models.Clinic, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/veterinarias", "/veterinarias", nil, &raw); err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	return decodeList[models.Clinic](raw)
}

// ListAppointments returns the appointments visible to the caller.
func (c *Client) ListAppointments(ctx context.Context) ([]models.Appointment, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/citas", "/citas", nil, &raw); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return decodeList[models.Appointment](raw)
}

// Availability returns the slots of a clinic on date (YYYY-MM-DD).
func (c *Client) Availability(ctx context.Context, clinicID int64, date string) ([]models.Slot, error) {
	q := url.Values{}
	q.Set("fecha", date)
	q.Set("veterinariaId", strconv.FormatInt(clinicID, 10))
	var raw json.RawMessage
	if err := c.get(ctx, "/citas/disponibilidad", "/citas/disponibilidad", q, &raw); err != nil {
		return nil, fmt.Errorf("availability for clinic %d on %s: %w", clinicID, date, err)
	}
	return decodeList[models.Slot](raw)
}

// CreateAppointment posts a new appointment. The returned appointment is nil
// when the backend answers without a body.
func (c *Client) CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.Appointment, error) {
	var raw json.RawMessage
	err := c.http.Do(ctx, transport.Request{Method: http.MethodPost, Route: "/citas", Path: "/citas", Body: req}, &raw)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return appointmentFrom(raw)
}

// UpdateAppointment replaces an existing appointment.
func (c *Client) UpdateAppointment(ctx context.Context, id int64, req models.AppointmentRequest) (*models.Appointment, error) {
	var raw json.RawMessage
	err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPut,
		Route:  "/citas/{id}",
		Path:   "/citas/" + strconv.FormatInt(id, 10),
		Body:   req,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("update appointment %d: %w", id, err)
	}
	return appointmentFrom(raw)
}

// UpdateStatus changes only the status through the dedicated endpoint.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPatch,
		Route:  "/citas/{id}/estado",
		Path:   "/citas/" + strconv.FormatInt(id, 10) + "/estado",
		Query:  url.Values{"estado": {string(status)}},
	}, nil)
	if err != nil {
		return fmt.Errorf("set appointment %d to %s: %w", id, status, err)
	}
	return nil
}

// CancelAppointment moves an appointment to CANCELADA.
func (c *Client) CancelAppointment(ctx context.Context, id int64) error {
	return c.UpdateStatus(ctx, id, models.StatusCancelled)
}

func (c *Client) get(ctx context.Context, route, path string, q url.Values, out any) error {
	return c.http.Do(ctx, transport.Request{Method: http.MethodGet, Route: route, Path: path, Query: q}, out)
}

func appointmentFrom(raw json.RawMessage) (*models.Appointment, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	appt, err := decodeOne[models.Appointment](raw)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}
