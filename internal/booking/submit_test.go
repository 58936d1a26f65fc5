package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-booking/internal/availability"
	"github.com/wolfman30/vetclinic-booking/internal/clinicapi"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-booking/internal/session"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func readyForm(t *testing.T, id models.Identity) (*Form, *fakeAPI) {
	t.Helper()
	ctx := context.Background()
	f, api, _, _ := newTestForm(id)
	require.NoError(t, f.ChooseClinic(ctx, "5"))
	require.NoError(t, f.ChooseDate(ctx, "2025-03-10"))
	require.NoError(t, f.SelectSlot("2025-03-10T10:00"))
	if err := f.SetCustomer("C1"); err != nil {
		t.Fatalf("set customer: %v", err)
	}
	f.SetPet("1")
	return f, api
}

func TestCustomerBookingScenarioOverHTTP(t *testing.T) {
	var (
		mu      sync.Mutex
		created map[string]any
		auth    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/usuarios/veterinarios/por-veterinaria/5":
			_, _ = w.Write([]byte(`{"data":[]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/citas/disponibilidad":
			if r.URL.Query().Get("fecha") != "2025-03-10" || r.URL.Query().Get("veterinariaId") != "5" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`[{"fechaHora":"2025-03-10T10:00:00","disponible":true},{"fechaHora":"2025-03-10T11:00:00","disponible":false}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/citas":
			mu.Lock()
			_ = json.NewDecoder(r.Body).Decode(&created)
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":41,"fechaHora":"2025-03-10T10:00:00","estado":"PROGRAMADA","cliente":{"documento":"C1"},"mascota":{"id":1},"veterinaria":{"id":5}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/citas":
			_, _ = w.Write([]byte(`{"content":[{"id":41,"fechaHora":"2025-03-10T10:00:00","estado":"PROGRAMADA","cliente_documento":"C1","mascota_id":1,"veterinaria_id":5}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	store := session.NewStore(nil, logging.Discard())
	require.NoError(t, store.Save(ctx, "opaque-token", customerC1))
	tc, err := transport.New(transport.Config{BaseURL: srv.URL + "/api"}, store, logging.Discard())
	require.NoError(t, err)
	api := clinicapi.New(tc, logging.Discard())
	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)

	f := NewForm(api, availability.NewResolver(api, logging.Discard()), store, logging.Discard(), WithMetrics(m))
	f.Reset()
	require.NoError(t, f.ChooseClinic(ctx, "5"))
	require.NoError(t, f.ChooseDate(ctx, "2025-03-10"))
	require.NoError(t, f.SelectSlot("2025-03-10T10:00"))
	assert.Equal(t, "2025-03-10T10:00", f.Draft().DateTime)
	f.SetPet("1")
	require.Equal(t, StateSubmittable, f.State())

	saved, err := f.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, int64(41), saved.ID)
	assert.Equal(t, "C1", saved.CustomerID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "C1", created["clienteId"])
	assert.EqualValues(t, 1, created["mascotaId"])
	assert.EqualValues(t, 5, created["veterinariaId"])
	assert.Equal(t, "PROGRAMADA", created["estado"])
	assert.Equal(t, "2025-03-10T10:00:00", created["fechaHora"])
	pid, present := created["veterinarioId"]
	assert.True(t, present)
	assert.Nil(t, pid)
	for _, h := range auth {
		assert.Equal(t, "Bearer opaque-token", h)
	}

	require.Len(t, f.Appointments(), 1)
	assert.Equal(t, StateSuccess, f.State())
	assert.Equal(t, "C1", f.Draft().CustomerID, "customer stays the booking party")
	assert.Empty(t, f.Draft().DateTime)
	expected := `
# HELP vetclinic_booking_submissions_total Appointment submissions by kind and outcome
# TYPE vetclinic_booking_submissions_total counter
vetclinic_booking_submissions_total{kind="create",outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), metrics.SubmissionsTotalName))
}

func TestSubmitTwiceSendsOnce(t *testing.T) {
	f, api := readyForm(t, adminA1)
	gate := make(chan struct{})
	started := make(chan struct{})
	api.createGate = gate
	api.createStart = started

	first := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		first <- err
	}()
	<-started

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, StateSubmitting, f.State())

	close(gate)
	require.NoError(t, <-first)
	assert.Equal(t, 1, api.createCount())
	assert.Equal(t, StateSuccess, f.State())
}

func TestSubmitValidationNeverCallsBackend(t *testing.T) {
	f, api, _, _ := newTestForm(adminA1)
	_, err := f.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeMissingFields, verr.Code)
	assert.Zero(t, api.createCount())
	assert.Zero(t, api.listCalls)
	assert.Equal(t, StateEmpty, f.State())
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	f, api := readyForm(t, adminA1)
	api.createErr = &transport.APIError{Status: 409, Message: "El veterinario ya tiene una cita a esa hora"}
	before := f.Draft()

	_, err := f.Submit(context.Background())
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "El veterinario ya tiene una cita a esa hora", serr.Message)
	assert.Equal(t, before, f.Draft())
	assert.Equal(t, StateFailed, f.State())
	assert.Equal(t, 1, api.listCalls, "list is refreshed after a failed submit too")

	api.createErr = errors.New("connection refused")
	_, err = f.Submit(context.Background())
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, genericSubmitMessage, serr.Message)
	assert.Equal(t, 2, api.createCount())

	api.createErr = nil
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, f.State())
}

func TestSubmitRefreshFailureDoesNotMaskSuccess(t *testing.T) {
	f, api := readyForm(t, adminA1)
	api.listErr = errors.New("list down")
	saved, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), saved.ID)
}

func TestSubmitPractitionerIsForcedToSelf(t *testing.T) {
	ctx := context.Background()
	f, api, _, _ := newTestForm(vetV1)
	require.NoError(t, f.ChooseDate(ctx, "2025-03-10"))
	require.NoError(t, f.SelectSlot("2025-03-10T10:00"))
	require.NoError(t, f.SetCustomer("C9"))
	f.SetPet("4")
	assert.ErrorIs(t, f.SetPractitioner("V2"), ErrRestricted)

	_, err := f.Submit(ctx)
	require.NoError(t, err)
	require.Len(t, api.creates, 1)
	require.NotNil(t, api.creates[0].PractitionerID)
	assert.Equal(t, "V1", *api.creates[0].PractitionerID)

	d := f.Draft()
	assert.Equal(t, "5", d.ClinicID, "practitioner bindings are seeded again")
	assert.Equal(t, "V1", d.PractitionerID)
}

func TestSubmitEditUpdatesAndKeepsStatus(t *testing.T) {
	f, api, _, _ := newTestForm(deskR1)
	appt := models.Appointment{
		ID: 7, DateTime: "2025-03-10T09:30:00", CustomerID: "C1", PetID: 2,
		ClinicID: 5, Status: models.StatusConfirmed,
	}
	require.NoError(t, f.Edit(context.Background(), appt))
	f.SetNotes("  trae carnet  ")

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, api.createCount())
	req, ok := api.updates[7]
	require.True(t, ok)
	assert.Equal(t, models.StatusConfirmed, req.Status)
	assert.Equal(t, "2025-03-10T09:30:00", req.DateTime)
	assert.Equal(t, "trae carnet", req.Notes)
	assert.Nil(t, req.PractitionerID)
	assert.False(t, f.Draft().IsEdit())
}

func TestResetDuringSubmitIgnoresCompletion(t *testing.T) {
	f, api := readyForm(t, adminA1)
	gate := make(chan struct{})
	started := make(chan struct{})
	api.createGate = gate
	api.createStart = started

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()
	<-started
	f.Reset()
	require.NoError(t, f.ChooseClinic(context.Background(), "5"))

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight, "guard holds until the first call settles")

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateClinicChosen, f.State())
	assert.Equal(t, "5", f.Draft().ClinicID)
}

func TestValidateOrder(t *testing.T) {
	full := Draft{DateTime: "2025-03-10T10:00", CustomerID: "C1", PetID: "1", ClinicID: "5"}
	cases := []struct {
		name string
		mod  func(d *Draft)
		code ValidationCode
	}{
		{"missing date wins over clinic", func(d *Draft) { d.DateTime = ""; d.ClinicID = "" }, CodeMissingFields},
		{"missing customer", func(d *Draft) { d.CustomerID = " " }, CodeMissingFields},
		{"missing pet", func(d *Draft) { d.PetID = "" }, CodeMissingFields},
		{"missing clinic wins over bad date", func(d *Draft) { d.ClinicID = ""; d.DateTime = "tomorrow" }, CodeMissingClinic},
		{"date only", func(d *Draft) { d.DateTime = "2025-03-10" }, CodeInvalidDateTime},
		{"space separator", func(d *Draft) { d.DateTime = "2025-03-10 10:00" }, CodeInvalidDateTime},
		{"millis", func(d *Draft) { d.DateTime = "2025-03-10T10:00:00.000" }, CodeInvalidDateTime},
		{"bad date wins over bad pet", func(d *Draft) { d.DateTime = "x"; d.PetID = "rex" }, CodeInvalidDateTime},
		{"pet not integer", func(d *Draft) { d.PetID = "rex" }, CodeInvalidPet},
		{"clinic not integer", func(d *Draft) { d.ClinicID = "norte" }, CodeInvalidClinic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := full
			tc.mod(&d)
			_, err := Validate(d, adminA1)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.code, verr.Code)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestNormalizeDateTime(t *testing.T) {
	got, ok := NormalizeDateTime("2025-03-10T10:00")
	if !ok || got != "2025-03-10T10:00:00" {
		t.Fatalf("minute precision: got %q %v", got, ok)
	}
	got, ok = NormalizeDateTime("2025-03-10T10:00:30")
	if !ok || got != "2025-03-10T10:00:30" {
		t.Fatalf("second precision: got %q %v", got, ok)
	}
	for _, bad := range []string{"", "2025-03-10", "2025-03-10T1000", "2025-13-10T10:00", "2025-03-10T10:00Z"} {
		if _, ok := NormalizeDateTime(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestValidateNewDraftDefaultsStatus(t *testing.T) {
	req, err := Validate(Draft{
		DateTime: "2025-03-10T10:00", CustomerID: "C1", PetID: "1", ClinicID: "5",
		Status: models.StatusCompleted, PractitionerID: " V3 ",
	}, adminA1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, req.Status)
	require.NotNil(t, req.PractitionerID)
	assert.Equal(t, "V3", *req.PractitionerID)
}
