package sandbox

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
)

// Fixed demo accounts, present whatever the seed.
const (
	AdminDocument       = "1000"
	FrontDeskDocument   = "1001"
	CustomerDocument    = "3001"
	DeactivatedDocument = "3999"
)

// PractitionerDocument is the document of the first practitioner of clinic.
func PractitionerDocument(clinicID int64) string {
	return strconv.FormatInt(2000+clinicID, 10)
}

type user struct {
	identity    models.Identity
	password    string
	deactivated bool
}

func (u user) roleSet() roles.Set { return u.identity.RoleSet() }

type dataset struct {
	users        map[string]*user // by document
	byUsername   map[string]*user
	clinics      []models.Clinic
	pets         []models.Pet
	appointments map[int64]*models.Appointment
	nextApptID   int64
}

var species = []struct{ name, breed string }{
	{"Perro", "Labrador"},
	{"Perro", "Criollo"},
	{"Gato", "Siamés"},
	{"Gato", "Común europeo"},
	{"Conejo", "Belier"},
}

// seed builds the demo dataset. The same seed always yields the same data.
func seed(cfg Config) *dataset {
	faker := gofakeit.New(uint64(cfg.Seed))
	ds := &dataset{
		users:        map[string]*user{},
		byUsername:   map[string]*user{},
		appointments: map[int64]*models.Appointment{},
		nextApptID:   1,
	}

	for i := 1; i <= cfg.Clinics; i++ {
		ds.clinics = append(ds.clinics, models.Clinic{
			ID:      int64(i),
			Name:    "Veterinaria " + faker.LastName(),
			Address: faker.Street() + ", " + faker.City(),
			Phone:   faker.Numerify("60#######"),
		})
	}

	ds.add(models.Identity{Document: AdminDocument, Username: "admin", FirstName: "Ada", LastName: "Admin", Roles: []string{"ROLE_ADMIN"}}, cfg.Password)
	ds.add(models.Identity{Document: FrontDeskDocument, Username: "recepcion", FirstName: "Rosa", LastName: "Recepción", Roles: []string{"ROLE_RECEPCIONISTA"}}, cfg.Password)

	for _, c := range ds.clinics {
		ds.add(models.Identity{
			Document:  PractitionerDocument(c.ID),
			Username:  "vet" + strconv.FormatInt(c.ID, 10),
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
			Email:     faker.Email(),
			Roles:     []string{"ROLE_VETERINARIO"},
			ClinicID:  c.ID,
		}, cfg.Password)
	}
	// the first clinic has a second practitioner so its list needs a choice
	if len(ds.clinics) > 0 {
		ds.add(models.Identity{
			Document:  "2101",
			Username:  "vet1b",
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
			Roles:     []string{"VETERINARIO"},
			ClinicID:  ds.clinics[0].ID,
		}, cfg.Password)
	}

	demo := ds.add(models.Identity{Document: CustomerDocument, Username: "cliente", FirstName: "Carla", LastName: faker.LastName(), Email: faker.Email(), Phone: faker.Phone(), Roles: []string{"CLIENTE"}}, cfg.Password)
	ds.addPets(faker, demo.identity.Document, 2)
	off := ds.add(models.Identity{Document: DeactivatedDocument, Username: "inactivo", FirstName: "Iván", LastName: "Inactivo", Roles: []string{"ROLE_CLIENTE"}}, cfg.Password)
	off.deactivated = true

	for i := 0; i < cfg.Customers; i++ {
		doc := faker.Numerify("4#######")
		if _, taken := ds.users[doc]; taken {
			continue
		}
		u := ds.add(models.Identity{
			Document:  doc,
			Username:  fmt.Sprintf("cliente%d", i+1),
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
			Email:     faker.Email(),
			Phone:     faker.Phone(),
			Roles:     []string{"ROLE_CLIENTE"},
		}, cfg.Password)
		ds.addPets(faker, u.identity.Document, faker.Number(1, 2))
	}
	return ds
}

func (ds *dataset) add(id models.Identity, password string) *user {
	u := &user{identity: id, password: password}
	ds.users[id.Document] = u
	ds.byUsername[id.Username] = u
	return u
}

func (ds *dataset) addPets(faker *gofakeit.Faker, owner string, n int) {
	for i := 0; i < n; i++ {
		s := species[faker.Number(0, len(species)-1)]
		ds.pets = append(ds.pets, models.Pet{
			ID:            int64(len(ds.pets) + 1),
			Name:          faker.PetName(),
			Species:       s.name,
			Breed:         s.breed,
			OwnerDocument: owner,
		})
	}
}

func (ds *dataset) clinic(id int64) (models.Clinic, bool) {
	for _, c := range ds.clinics {
		if c.ID == id {
			return c, true
		}
	}
	return models.Clinic{}, false
}

func (ds *dataset) pet(id int64) (models.Pet, bool) {
	for _, p := range ds.pets {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pet{}, false
}

// practitioners returns the practitioners of clinicID, or all when it is 0,
// ordered by document.
func (ds *dataset) practitioners(clinicID int64) []*user {
	var out []*user
	for _, u := range ds.users {
		if !roles.IsPractitioner(u.roleSet()) {
			continue
		}
		if clinicID != 0 && u.identity.ClinicID != clinicID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].identity.Document < out[j].identity.Document })
	return out
}

func (ds *dataset) sortedUsers() []*user {
	out := make([]*user, 0, len(ds.users))
	for _, u := range ds.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].identity.Document < out[j].identity.Document })
	return out
}

func (ds *dataset) sortedAppointments() []*models.Appointment {
	out := make([]*models.Appointment, 0, len(ds.appointments))
	for _, a := range ds.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// busy reports whether practitioner (or, when "", the clinic as a whole when
// it has no practitioners) already holds a live appointment at dateTime.
func (ds *dataset) busy(clinicID int64, practitioner, dateTime string, except int64) bool {
	for _, a := range ds.appointments {
		if a.ID == except || a.Status == models.StatusCancelled || a.DateTime != dateTime {
			continue
		}
		if practitioner == "" {
			if a.ClinicID == clinicID {
				return true
			}
			continue
		}
		if a.PractitionerID == practitioner {
			return true
		}
	}
	return false
}
