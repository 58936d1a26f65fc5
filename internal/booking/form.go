// Package booking drives the appointment booking form: the cascading
// clinic -> practitioner -> date -> slot selection, the submission pipeline
// and the status-only lifecycle actions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/vetclinic-booking/internal/availability"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

var (
	// ErrSuperseded is returned when a network completion arrives after the
	// selection it was started for has changed. The result is dropped.
	ErrSuperseded = errors.New("booking: selection changed while loading")
	// ErrSubmissionInFlight is returned by Submit while an earlier submission
	// of the same form has not settled.
	ErrSubmissionInFlight = errors.New("booking: submission already in flight")
	// ErrSlotUnavailable is returned when selecting a taken slot.
	ErrSlotUnavailable = errors.New("booking: that time is no longer available")
	// ErrUnknownSlot is returned for a time that is not in the current slot list.
	ErrUnknownSlot = errors.New("booking: time is not among the offered slots")
	// ErrInvalidClinic is returned for a clinic reference that is not an id.
	ErrInvalidClinic = errors.New("booking: invalid clinic")
	// ErrRestricted is returned when the acting identity may not change a field.
	ErrRestricted = errors.New("booking: field is fixed for this account")
)

// API is the part of the clinic API the booking form calls.
type API interface {
	ListPractitionersByClinic(ctx context.Context, clinicID int64) ([]models.Practitioner, error)
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
	CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.Appointment, error)
	UpdateAppointment(ctx context.Context, id int64, req models.AppointmentRequest) (*models.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) error
}

// SlotSource resolves availability; *availability.Resolver implements it.
type SlotSource interface {
	Slots(ctx context.Context, clinicID int64, date string) ([]models.Slot, error)
}

// IdentitySource yields the acting identity. It is read on every gating
// decision so a login or logout is seen immediately.
type IdentitySource interface {
	Identity() (models.Identity, bool)
}

// Draft is the appointment being edited. Every reference is kept as the raw
// form value; Submit validates and converts them. ID is zero for a new
// appointment.
type Draft struct {
	ID             int64
	DateTime       string
	Reason         string
	Notes          string
	CustomerID     string
	PetID          string
	PractitionerID string
	ClinicID       string
	Status         models.Status
}

// IsEdit reports whether the draft updates a persisted appointment.
func (d Draft) IsEdit() bool { return d.ID != 0 }

func (d Draft) complete() bool {
	for _, v := range []string{d.DateTime, d.CustomerID, d.PetID, d.ClinicID} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Option configures a Form.
type Option func(*Form)

// WithMetrics records submissions on m.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(f *Form) { f.metrics = m }
}

// WithTracer overrides the otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(f *Form) { f.tracer = t }
}

// Form is one booking form instance. Methods are safe to call from several
// goroutines; network calls run without the lock held and their results are
// applied only if the selection they were started for is still current.
type Form struct {
	api      API
	slotSrc  SlotSource
	identity IdentitySource
	logger   *logging.Logger
	metrics  *metrics.ClientMetrics
	tracer   trace.Tracer

	mu            sync.Mutex
	state         State
	draft         Draft
	date          string
	practitioners []models.Practitioner
	slots         []models.Slot
	appointments  []models.Appointment
	warnings      []string

	// selectionGen changes on reset, clinic change and edit; dateGen also
	// changes on date change.
	selectionGen uint64
	dateGen      uint64
	refreshGen   uint64
	inFlight     bool
}

// NewForm creates a form in the Empty state. Call Reset to apply the
// identity's own bindings.
func NewForm(api API, slots SlotSource, identity IdentitySource, logger *logging.Logger, opts ...Option) *Form {
	if logger == nil {
		logger = logging.Default()
	}
	f := &Form{
		api:           api,
		slotSrc:       slots,
		identity:      identity,
		logger:        logger,
		state:         StateEmpty,
		practitioners: []models.Practitioner{},
		slots:         []models.Slot{},
		appointments:  []models.Appointment{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer("vetclinic.internal.booking")
	}
	return f
}

// Reset returns the form to Empty. A practitioner gets their own clinic and
// practitioner pre-filled; a customer gets themselves as the booking party.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mustFire(EventReset)
	f.clearLocked()
	if f.seedLocked() && f.draft.ClinicID != "" {
		f.mustFire(EventChooseClinic)
	}
}

func (f *Form) clearLocked() {
	f.selectionGen++
	f.dateGen++
	f.draft = Draft{}
	f.date = ""
	f.practitioners = []models.Practitioner{}
	f.slots = []models.Slot{}
	f.warnings = nil
}

// seedLocked applies the identity's own bindings and reports whether the
// identity is a practitioner.
func (f *Form) seedLocked() bool {
	id, _ := f.identity.Identity()
	set := id.RoleSet()
	switch {
	case roles.IsPractitioner(set):
		f.draft.PractitionerID = id.Document
		f.draft.ClinicID = id.ClinicRef()
		f.practitioners = selfPractitioner(id)
		return true
	case roles.IsCustomer(set):
		f.draft.CustomerID = id.Document
	}
	return false
}

// ChooseClinic selects a clinic. Practitioner, date, time and slots are
// cleared before the clinic's practitioners are loaded.
func (f *Form) ChooseClinic(ctx context.Context, clinicRef string) error {
	clinicRef = strings.TrimSpace(clinicRef)
	clinicID, err := strconv.ParseInt(clinicRef, 10, 64)
	if err != nil || clinicID <= 0 {
		return ErrInvalidClinic
	}

	f.mu.Lock()
	if err := f.fire(EventChooseClinic); err != nil {
		f.mu.Unlock()
		return err
	}
	f.draft.ClinicID = clinicRef
	f.draft.PractitionerID = ""
	f.draft.DateTime = ""
	f.date = ""
	f.slots = []models.Slot{}
	f.practitioners = []models.Practitioner{}
	f.warnings = nil
	f.selectionGen++
	f.dateGen++
	gen := f.selectionGen

	id, _ := f.identity.Identity()
	if roles.IsPractitioner(id.RoleSet()) {
		f.bindSelfLocked(id)
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	return f.loadPractitioners(ctx, clinicID, gen)
}

func (f *Form) loadPractitioners(ctx context.Context, clinicID int64, gen uint64) error {
	list, err := f.api.ListPractitionersByClinic(ctx, clinicID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.selectionGen {
		f.logger.Debug("dropping stale practitioner list", "clinic_id", clinicID)
		return ErrSuperseded
	}
	if err != nil {
		id, _ := f.identity.Identity()
		if errors.Is(err, transport.ErrUnauthorized) && roles.IsPractitioner(id.RoleSet()) {
			f.bindSelfLocked(id)
			return nil
		}
		f.logger.Warn("practitioner list unavailable", "clinic_id", clinicID, "error", err)
		f.warnings = append(f.warnings, "could not load the practitioners of this clinic")
		if errors.Is(err, transport.ErrUnauthorized) {
			return err
		}
		return nil
	}

	if list == nil {
		list = []models.Practitioner{}
	}
	f.practitioners = list
	switch {
	case len(list) == 1 && f.draft.PractitionerID == "":
		f.draft.PractitionerID = list[0].Document
	case len(list) == 0:
		f.warnings = append(f.warnings, "this clinic has no practitioners listed; one will be assigned")
	}
	return nil
}

func (f *Form) bindSelfLocked(id models.Identity) {
	f.practitioners = selfPractitioner(id)
	f.draft.PractitionerID = id.Document
}

func selfPractitioner(id models.Identity) []models.Practitioner {
	return []models.Practitioner{models.PractitionerFrom(id)}
}

// ChooseDate fetches the slots of the chosen clinic on date (YYYY-MM-DD).
// It does nothing while no clinic is chosen.
func (f *Form) ChooseDate(ctx context.Context, date string) error {
	date = strings.TrimSpace(date)

	f.mu.Lock()
	if f.draft.ClinicID == "" {
		f.mu.Unlock()
		return nil
	}
	if err := availability.ValidateDate(date); err != nil {
		f.mu.Unlock()
		return err
	}
	clinicID, err := strconv.ParseInt(f.draft.ClinicID, 10, 64)
	if err != nil {
		f.mu.Unlock()
		return ErrInvalidClinic
	}
	if err := f.fire(EventChooseDate); err != nil {
		f.mu.Unlock()
		return err
	}
	f.date = date
	f.draft.DateTime = ""
	f.slots = []models.Slot{}
	f.dateGen++
	gen := f.dateGen
	f.mu.Unlock()

	slots, err := f.slotSrc.Slots(ctx, clinicID, date)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.dateGen {
		f.logger.Debug("dropping stale availability", "clinic_id", clinicID, "date", date)
		return ErrSuperseded
	}
	if err != nil {
		f.logger.Warn("availability unavailable", "clinic_id", clinicID, "date", date, "error", err)
		f.warnings = append(f.warnings, "could not load availability for "+date)
		if errors.Is(err, transport.ErrUnauthorized) {
			return err
		}
		return nil
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	f.slots = slots
	return nil
}

// SelectSlot picks the slot whose time is dateTime. Taken slots are rejected
// without touching the draft.
func (f *Form) SelectSlot(dateTime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := availability.Find(f.slots, dateTime)
	if !ok {
		return ErrUnknownSlot
	}
	if !slot.Available {
		return ErrSlotUnavailable
	}
	if err := f.fire(EventSelectSlot); err != nil {
		return err
	}
	f.draft.DateTime = availability.TruncateToMinute(slot.DateTime)
	if slot.PractitionerID != "" && f.draft.PractitionerID == "" {
		f.draft.PractitionerID = slot.PractitionerID
	}
	f.settleLocked()
	return nil
}

// SetCustomer sets the booking party. The pet is cleared since pets are
// scoped to their owner. Customers cannot book for someone else.
func (f *Form) SetCustomer(customerID string) error {
	customerID = strings.TrimSpace(customerID)
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := f.identity.Identity()
	if roles.IsCustomer(id.RoleSet()) && customerID != id.Document {
		return ErrRestricted
	}
	if customerID != f.draft.CustomerID {
		f.draft.PetID = ""
	}
	f.draft.CustomerID = customerID
	f.settleLocked()
	return nil
}

func (f *Form) SetPet(petRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.PetID = strings.TrimSpace(petRef)
	f.settleLocked()
}

// SetPractitioner sets the practitioner; "" leaves it to the backend.
// Practitioners are always bound to themselves.
func (f *Form) SetPractitioner(document string) error {
	document = strings.TrimSpace(document)
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := f.identity.Identity()
	if roles.IsPractitioner(id.RoleSet()) && document != id.Document {
		return ErrRestricted
	}
	f.draft.PractitionerID = document
	return nil
}

func (f *Form) SetReason(reason string) {
	f.mu.Lock()
	f.draft.Reason = reason
	f.mu.Unlock()
}

func (f *Form) SetNotes(notes string) {
	f.mu.Lock()
	f.draft.Notes = notes
	f.mu.Unlock()
}

// Edit loads a persisted appointment into the draft. When it has a clinic,
// that clinic's practitioners are loaded right away.
func (f *Form) Edit(ctx context.Context, appt models.Appointment) error {
	f.mu.Lock()
	if err := f.fire(EventEdit); err != nil {
		f.mu.Unlock()
		return err
	}
	f.clearLocked()
	f.draft = Draft{
		ID:             appt.ID,
		DateTime:       availability.TruncateToMinute(appt.DateTime),
		Reason:         appt.Reason,
		Notes:          appt.Notes,
		CustomerID:     appt.CustomerID,
		PetID:          appt.PetRef(),
		PractitionerID: appt.PractitionerID,
		ClinicID:       appt.ClinicRef(),
		Status:         appt.Status,
	}
	if len(f.draft.DateTime) >= len(availability.DateLayout) {
		f.date = f.draft.DateTime[:len(availability.DateLayout)]
	}
	f.settleLocked()
	gen := f.selectionGen

	if appt.ClinicID == 0 {
		f.mu.Unlock()
		return nil
	}
	id, _ := f.identity.Identity()
	if roles.IsPractitioner(id.RoleSet()) {
		f.bindSelfLocked(id)
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()
	return f.loadPractitioners(ctx, appt.ClinicID, gen)
}

// RefreshAppointments reloads the appointment list, scoped to what the
// acting identity may see.
func (f *Form) RefreshAppointments(ctx context.Context) error {
	f.mu.Lock()
	f.refreshGen++
	gen := f.refreshGen
	f.mu.Unlock()

	list, err := f.api.ListAppointments(ctx)
	if err != nil {
		return fmt.Errorf("booking: refresh appointments: %w", err)
	}
	id, _ := f.identity.Identity()
	scoped := ScopeAppointments(list, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.refreshGen {
		return ErrSuperseded
	}
	f.appointments = scoped
	return nil
}

// ScopeAppointments keeps the appointments identity may see: staff see all,
// practitioners their own, customers their own.
func ScopeAppointments(list []models.Appointment, identity models.Identity) []models.Appointment {
	set := identity.RoleSet()
	out := make([]models.Appointment, 0, len(list))
	for _, a := range list {
		switch {
		case roles.IsStaff(set):
			out = append(out, a)
		case roles.IsPractitioner(set):
			if a.PractitionerID == identity.Document {
				out = append(out, a)
			}
		case roles.IsCustomer(set):
			if a.CustomerID == identity.Document {
				out = append(out, a)
			}
		}
	}
	return out
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Date is the chosen calendar date, "" when none.
func (f *Form) Date() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date
}

func (f *Form) Practitioners() []models.Practitioner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Practitioner(nil), f.practitioners...)
}

func (f *Form) Slots() []models.Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Slot(nil), f.slots...)
}

func (f *Form) Appointments() []models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Appointment(nil), f.appointments...)
}

// Warnings are the non-fatal notices collected since the last selection
// change.
func (f *Form) Warnings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.warnings...)
}

func (f *Form) fire(e Event) error {
	next, ok := Next(f.state, e)
	if !ok {
		return &IllegalTransitionError{From: f.state, Event: e}
	}
	f.logger.Debug("booking transition", "from", f.state.String(), "event", e.String(), "to", next.String())
	f.state = next
	return nil
}

// mustFire is for events every state accepts.
func (f *Form) mustFire(e Event) {
	if err := f.fire(e); err != nil {
		panic(err)
	}
}

// settleLocked moves between SlotChosen and Submittable as required fields
// come and go. Other states are left alone.
func (f *Form) settleLocked() {
	e := EventDraftIncomplete
	if f.draft.complete() {
		e = EventDraftComplete
	}
	if next, ok := Next(f.state, e); ok && next != f.state {
		f.state = next
	}
}
