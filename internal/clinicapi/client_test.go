package clinicapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/session"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	store := session.NewStore(nil, logging.Discard())
	tr, err := transport.New(transport.Config{BaseURL: ts.URL}, store, logging.Discard())
	require.NoError(t, err)
	return New(tr, logging.Discard())
}

func TestDecodeListEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"id":1,"nombre":"A"},{"id":2,"nombre":"B"}]`, 2},
		{"data envelope", `{"data":[{"id":1,"nombre":"A"}]}`, 1},
		{"content envelope", `{"content":[{"id":1},{"id":2},{"id":3}],"totalElements":3}`, 3},
		{"paged data envelope", `{"data":{"content":[{"id":1}]}}`, 1},
		{"null data falls back to content", `{"data":null,"content":[{"id":4}]}`, 1},
		{"empty body", ``, 0},
		{"null", `null`, 0},
		{"empty envelope", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeList[models.Clinic](json.RawMessage(tt.body))
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestDecodeListRejectsMalformed(t *testing.T) {
	_, err := decodeList[models.Clinic](json.RawMessage(`{"data":"nope"}`))
	require.Error(t, err)
	_, err = decodeList[models.Clinic](json.RawMessage(`[1,`))
	require.Error(t, err)
}

func TestSignInNestedAndFlatShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"nested usuario", `{"token":"t1","usuario":{"documento":"C1","roles":["ROLE_CLIENTE"]}}`},
		{"nested user with accessToken", `{"accessToken":"t1","user":{"documento":"C1","roles":["CLIENTE"]}}`},
		{"flat", `{"token":"t1","documento":"C1","roles":[{"nombre":"CLIENTE"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/auth/signin", r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"username":"ana","password":"pw"}`, string(body))
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := c.SignIn(context.Background(), "ana", "pw")
			require.NoError(t, err)
			assert.Equal(t, "t1", res.Token)
			assert.Equal(t, "C1", res.Identity.Document)
			require.Len(t, res.Identity.Roles, 1)
		})
	}
}

func TestSignInWithoutToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"usuario":{"documento":"C1"}}`))
	})
	_, err := c.SignIn(context.Background(), "ana", "pw")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestListCustomersFiltersByRole(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usuarios", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[
			{"documento":"C1","nombres":"Ana","roles":["ROLE_CLIENTE"]},
			{"documento":"V1","roles":["ROLE_VETERINARIO"]},
			{"documento":"C2","roles":["CLIENTE"]}]}`))
	})
	customers, err := c.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "C1", customers[0].Document)
	assert.Equal(t, "Ana", customers[0].DisplayName())
	assert.Equal(t, "C2", customers[1].Document)
}

func TestListPractitionersByClinicPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usuarios/veterinarios/por-veterinaria/5", r.URL.Path)
		_, _ = w.Write([]byte(`[{"documento":"V1","nombres":"Laura","veterinariaId":5}]`))
	})
	got, err := c.ListPractitionersByClinic(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.Practitioner{Document: "V1", FirstName: "Laura", ClinicID: 5}, got[0])
}

func TestListPetsByOwnerEscapesPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mascotas/propietario/C 1", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":1,"nombre":"Rex","propietarioDocumento":"C 1"}]`))
	})
	pets, err := c.ListPetsByOwner(context.Background(), "C 1")
	require.NoError(t, err)
	require.Len(t, pets, 1)
}

func TestAvailabilityQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/citas/disponibilidad", r.URL.Path)
		assert.Equal(t, "2025-03-10", r.URL.Query().Get("fecha"))
		assert.Equal(t, "5", r.URL.Query().Get("veterinariaId"))
		_, _ = w.Write([]byte(`[{"fechaHora":"2025-03-10T10:00:00","disponible":true},{"fechaHora":"2025-03-10T11:00:00","disponible":false}]`))
	})
	slots, err := c.Availability(context.Background(), 5, "2025-03-10")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Available)
	assert.False(t, slots[1].Available)
}

func TestCreateAppointmentPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/citas", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"fechaHora":"2025-03-10T10:00:00","clienteId":"C1","mascotaId":1,
			"veterinarioId":null,"veterinariaId":5,"estado":"PROGRAMADA"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":99,"fechaHora":"2025-03-10T10:00:00","estado":"PROGRAMADA","clienteId":"C1","mascotaId":1,"veterinariaId":5}}`))
	})
	appt, err := c.CreateAppointment(context.Background(), models.AppointmentRequest{
		DateTime:   "2025-03-10T10:00:00",
		CustomerID: "C1",
		PetID:      1,
		ClinicID:   5,
		Status:     models.StatusScheduled,
	})
	require.NoError(t, err)
	require.NotNil(t, appt)
	assert.Equal(t, int64(99), appt.ID)
}

func TestUpdateAppointmentWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/citas/12", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	appt, err := c.UpdateAppointment(context.Background(), 12, models.AppointmentRequest{})
	require.NoError(t, err)
	assert.Nil(t, appt)
}

func TestCancelAppointmentUsesStatusEndpoint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/citas/7/estado", r.URL.Path)
		assert.Equal(t, "CANCELADA", r.URL.Query().Get("estado"))
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.CancelAppointment(context.Background(), 7))
}

func TestListErrorsAreWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.ListClinics(context.Background())
	require.Error(t, err)
	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}
