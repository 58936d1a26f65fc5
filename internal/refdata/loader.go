// Package refdata loads the bounded entity lists that populate the booking
// selectors, scoped by the role of the signed-in identity.
package refdata

import (
	"context"
	"errors"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

// API is the slice of the clinic API the loader calls.
type API interface {
	ListClinics(ctx context.Context) ([]models.Clinic, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	ListPets(ctx context.Context) ([]models.Pet, error)
	ListPetsByOwner(ctx context.Context, customerID string) ([]models.Pet, error)
}

// Data is the loaded reference data. SelectedCustomer is set when the
// booking party is fixed by the identity itself.
type Data struct {
	Clinics          []models.Clinic
	Customers        []models.Customer
	Pets             []models.Pet
	SelectedCustomer string
	Warnings         []string
}

// PetsOf returns the pets owned by customerID.
func (d *Data) PetsOf(customerID string) []models.Pet {
	if d == nil {
		return nil
	}
	return models.PetsOwnedBy(d.Pets, customerID)
}

// Loader fetches reference data. Practitioners are not loaded here; they are
// clinic scoped and fetched once a clinic is chosen.
type Loader struct {
	api    API
	logger *logging.Logger
}

func NewLoader(api API, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{api: api, logger: logger}
}

// Load runs on identity becoming available. Resource failures degrade to an
// empty list plus a warning; an authorization failure aborts the load since
// the session has already been torn down.
func (l *Loader) Load(ctx context.Context, identity models.Identity) (*Data, error) {
	data := &Data{
		Clinics:   []models.Clinic{},
		Customers: []models.Customer{},
		Pets:      []models.Pet{},
	}
	set := identity.RoleSet()

	clinics, err := l.api.ListClinics(ctx)
	if err := l.degrade(data, "clinics", err); err != nil {
		return nil, err
	}
	if clinics != nil {
		data.Clinics = clinics
	}

	switch {
	case roles.IsStaff(set):
		customers, err := l.api.ListCustomers(ctx)
		if err := l.degrade(data, "customers", err); err != nil {
			return nil, err
		}
		if customers != nil {
			data.Customers = customers
		}
		pets, err := l.api.ListPets(ctx)
		if err := l.degrade(data, "pets", err); err != nil {
			return nil, err
		}
		if pets != nil {
			data.Pets = pets
		}

	case roles.IsCustomer(set):
		data.Customers = []models.Customer{models.CustomerFrom(identity)}
		data.SelectedCustomer = identity.Document
		pets, err := l.ownPets(ctx, identity.Document)
		if err := l.degrade(data, "pets", err); err != nil {
			return nil, err
		}
		if pets != nil {
			data.Pets = pets
		}
	}
	return data, nil
}

// ownPets tries the owner-scoped endpoint and falls back to the full list
// filtered client-side; some deployments do not expose the scoped endpoint.
func (l *Loader) ownPets(ctx context.Context, customerID string) ([]models.Pet, error) {
	pets, err := l.api.ListPetsByOwner(ctx, customerID)
	if err == nil {
		return pets, nil
	}
	if errors.Is(err, transport.ErrUnauthorized) {
		return nil, err
	}
	l.logger.Warn("owner-scoped pet list failed, falling back to full list", "customer", customerID, "error", err)

	all, err := l.api.ListPets(ctx)
	if err != nil {
		return nil, err
	}
	return models.PetsOwnedBy(all, customerID), nil
}

func (l *Loader) degrade(data *Data, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrUnauthorized) {
		return err
	}
	l.logger.Warn("reference data unavailable", "list", what, "error", err)
	data.Warnings = append(data.Warnings, "could not load "+what)
	return nil
}
