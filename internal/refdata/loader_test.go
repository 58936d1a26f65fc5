package refdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

type stubAPI struct {
	clinics      []models.Clinic
	clinicsErr   error
	customers    []models.Customer
	customersErr error
	pets         []models.Pet
	petsErr      error
	ownerPets    []models.Pet
	ownerErr     error

	calls []string
}

func (s *stubAPI) ListClinics(context.Context) ([]models.Clinic, error) {
	s.calls = append(s.calls, "clinics")
	return s.clinics, s.clinicsErr
}

func (s *stubAPI) ListCustomers(context.Context) ([]models.Customer, error) {
	s.calls = append(s.calls, "customers")
	return s.customers, s.customersErr
}

func (s *stubAPI) ListPets(context.Context) ([]models.Pet, error) {
	s.calls = append(s.calls, "pets")
	return s.pets, s.petsErr
}

func (s *stubAPI) ListPetsByOwner(_ context.Context, id string) ([]models.Pet, error) {
	s.calls = append(s.calls, "pets:"+id)
	return s.ownerPets, s.ownerErr
}

var (
	staff        = models.Identity{Document: "A1", Roles: []string{"ROLE_ADMIN"}}
	frontDesk    = models.Identity{Document: "R1", Roles: []string{"RECEPCIONISTA"}}
	practitioner = models.Identity{Document: "V1", Roles: []string{"ROLE_VETERINARIO"}, ClinicID: 5}
	customer     = models.Identity{Document: "C1", FirstName: "Ana", Roles: []string{"CLIENTE"}}
	allPets      = []models.Pet{
		{ID: 1, Name: "Rex", OwnerDocument: "C1"},
		{ID: 2, Name: "Mia", OwnerDocument: "C2"},
		{ID: 3, Name: "Kiwi", OwnerDocument: "C1"},
	}
)

func TestStaffLoadsEverything(t *testing.T) {
	for _, id := range []models.Identity{staff, frontDesk} {
		api := &stubAPI{
			clinics:   []models.Clinic{{ID: 5, Name: "Centro"}},
			customers: []models.Customer{{Document: "C1"}, {Document: "C2"}},
			pets:      allPets,
		}
		data, err := NewLoader(api, logging.Discard()).Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, []string{"clinics", "customers", "pets"}, api.calls)
		assert.Len(t, data.Clinics, 1)
		assert.Len(t, data.Customers, 2)
		assert.Len(t, data.Pets, 3)
		assert.Empty(t, data.SelectedCustomer)
		assert.Len(t, data.PetsOf("C1"), 2)
	}
}

func TestCustomerSynthesizesSelfAndLoadsOwnPets(t *testing.T) {
	api := &stubAPI{ownerPets: []models.Pet{allPets[0]}}
	data, err := NewLoader(api, logging.Discard()).Load(context.Background(), customer)
	require.NoError(t, err)

	assert.Equal(t, []string{"clinics", "pets:C1"}, api.calls)
	require.Len(t, data.Customers, 1)
	assert.Equal(t, "C1", data.Customers[0].Document)
	assert.Equal(t, "Ana", data.Customers[0].FirstName)
	assert.Equal(t, "C1", data.SelectedCustomer)
	assert.Len(t, data.Pets, 1)
	assert.Empty(t, data.Warnings)
}

func TestCustomerFallsBackToFilteredFullList(t *testing.T) {
	api := &stubAPI{
		ownerErr: &transport.APIError{Status: 404, Message: "Not Found"},
		pets:     allPets,
	}
	data, err := NewLoader(api, logging.Discard()).Load(context.Background(), customer)
	require.NoError(t, err)

	assert.Equal(t, []string{"clinics", "pets:C1", "pets"}, api.calls)
	require.Len(t, data.Pets, 2)
	for _, p := range data.Pets {
		assert.Equal(t, "C1", p.OwnerDocument)
	}
	assert.Empty(t, data.Warnings)
}

func TestCustomerFallbackFailureDegrades(t *testing.T) {
	api := &stubAPI{
		ownerErr: errors.New("connection reset"),
		petsErr:  &transport.APIError{Status: 500},
	}
	data, err := NewLoader(api, logging.Discard()).Load(context.Background(), customer)
	require.NoError(t, err)
	assert.Empty(t, data.Pets)
	assert.NotNil(t, data.Pets)
	assert.Equal(t, []string{"could not load pets"}, data.Warnings)
}

func TestPractitionerLoadsClinicsOnly(t *testing.T) {
	api := &stubAPI{clinics: []models.Clinic{{ID: 5}}}
	data, err := NewLoader(api, logging.Discard()).Load(context.Background(), practitioner)
	require.NoError(t, err)
	assert.Equal(t, []string{"clinics"}, api.calls)
	assert.Empty(t, data.Customers)
	assert.Empty(t, data.Pets)
}

func TestResourceErrorsDegradeToWarnings(t *testing.T) {
	api := &stubAPI{
		clinicsErr:   &transport.APIError{Status: 503},
		customersErr: &transport.APIError{Status: 404},
		pets:         allPets,
	}
	data, err := NewLoader(api, logging.Discard()).Load(context.Background(), staff)
	require.NoError(t, err)
	assert.Empty(t, data.Clinics)
	assert.Empty(t, data.Customers)
	assert.Len(t, data.Pets, 3)
	assert.Equal(t, []string{"could not load clinics", "could not load customers"}, data.Warnings)
}

func TestAuthorizationErrorAborts(t *testing.T) {
	api := &stubAPI{clinicsErr: &transport.APIError{Status: 401}}
	_, err := NewLoader(api, logging.Discard()).Load(context.Background(), staff)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.Equal(t, []string{"clinics"}, api.calls)
}

func TestAuthorizationErrorSkipsPetFallback(t *testing.T) {
	api := &stubAPI{ownerErr: &transport.APIError{Status: 403}}
	_, err := NewLoader(api, logging.Discard()).Load(context.Background(), customer)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.Equal(t, []string{"clinics", "pets:C1"}, api.calls)
}
