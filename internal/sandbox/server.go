// Package sandbox is an in-memory stand-in for the veterinary clinic REST
// backend. It is used by integration tests and by cmd/sandbox for local
// development.
package sandbox

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	httpmw "github.com/wolfman30/vetclinic-booking/internal/http/middleware"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

const deactivatedMessage = "Usuario desactivado. Contacte con la clínica"

// Config configures the sandbox.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	Seed      int
	Clinics   int
	Customers int
	OpenHour  int
	CloseHour int
	// Envelope wraps list responses: "bare", "data" or "content".
	Envelope string
	// Password is shared by every seeded account.
	Password string
	// DisableOwnerPets makes /mascotas/propietario/{id} answer 404, as in
	// deployments without the scoped endpoint.
	DisableOwnerPets bool
	Now              func() time.Time
}

func (c *Config) applyDefaults() {
	if c.JWTSecret == "" {
		c.JWTSecret = "sandbox-secret"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 8 * time.Hour
	}
	if c.Clinics <= 0 {
		c.Clinics = 3
	}
	if c.Customers < 0 {
		c.Customers = 0
	}
	if c.OpenHour == 0 && c.CloseHour == 0 {
		c.OpenHour, c.CloseHour = 8, 17
	}
	if c.OpenHour < 0 || c.OpenHour > 23 {
		c.OpenHour = 8
	}
	if c.CloseHour <= c.OpenHour || c.CloseHour > 24 {
		c.CloseHour = c.OpenHour + 9
		if c.CloseHour > 24 {
			c.CloseHour = 24
		}
	}
	if c.Password == "" {
		c.Password = "demo"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Server holds the sandbox state.
type Server struct {
	cfg    Config
	logger *logging.Logger

	mu   sync.RWMutex
	data *dataset
}

func New(cfg Config, logger *logging.Logger) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{cfg: cfg, logger: logger, data: seed(cfg)}
}

// Handler returns the router. Every endpoint lives under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(httpmw.RequestLogger(s.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/signin", s.signIn)

		api.Group(func(authed chi.Router) {
			authed.Use(httpmw.BearerJWT(s.cfg.JWTSecret))
			authed.Use(s.activeUser)

			authed.Get("/usuarios", s.listUsers)
			authed.Get("/usuarios/veterinarios", s.listPractitioners)
			authed.Get("/usuarios/veterinarios/por-veterinaria/{clinicId}", s.listPractitionersByClinic)
			authed.Get("/mascotas", s.listPets)
			authed.Get("/mascotas/propietario/{customerId}", s.listPetsByOwner)
			authed.Get("/veterinarias", s.listClinics)
			authed.Get("/citas", s.listAppointments)
			authed.Post("/citas", s.createAppointment)
			authed.Get("/citas/disponibilidad", s.availability)
			authed.Put("/citas/{id}", s.updateAppointment)
			authed.Patch("/citas/{id}/estado", s.updateStatus)
		})
	})
	return r
}

// Deactivate switches an account off. Live tokens of that account start
// failing with 403 on their next request.
func (s *Server) Deactivate(document string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[document]
	if ok {
		u.deactivated = true
	}
	return ok
}

// IssueToken signs a token for document valid for ttl; tests use a negative
// ttl to get an expired one.
func (s *Server) IssueToken(document string, ttl time.Duration) (string, error) {
	now := s.cfg.Now()
	claims := jwt.RegisteredClaims{
		Subject:   document,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// Appointment returns a copy of a stored appointment.
func (s *Server) Appointment(id int64) (models.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data.appointments[id]
	if !ok {
		return models.Appointment{}, false
	}
	return *a, true
}

type ctxUserKey struct{}

// activeUser resolves the token subject and refuses deactivated accounts.
func (s *Server) activeUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := httpmw.ClaimsFromContext(r.Context())
		s.mu.RLock()
		u, ok := s.data.users[claims.Subject]
		var snapshot user
		if ok {
			snapshot = *u
		}
		s.mu.RUnlock()
		switch {
		case !ok:
			httpmw.Reject(w, http.StatusUnauthorized, "Usuario no encontrado")
			return
		case snapshot.deactivated:
			httpmw.Reject(w, http.StatusForbidden, deactivatedMessage)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), snapshot)))
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Solicitud inválida")
		return
	}
	s.mu.RLock()
	u, ok := s.data.byUsername[strings.TrimSpace(creds.Username)]
	var snapshot user
	if ok {
		snapshot = *u
	}
	s.mu.RUnlock()

	if !ok || snapshot.password != creds.Password {
		httpmw.Reject(w, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}
	if snapshot.deactivated {
		httpmw.Reject(w, http.StatusForbidden, deactivatedMessage)
		return
	}
	token, err := s.IssueToken(snapshot.identity.Document, s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		httpmw.Reject(w, http.StatusInternalServerError, "Error interno")
		return
	}
	s.logger.Info("sandbox sign-in", "document", snapshot.identity.Document)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"tipo":    "Bearer",
		"usuario": signInUserJSON(snapshot.identity),
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if !roles.IsStaff(currentUser(r).roleSet()) {
		httpmw.Reject(w, http.StatusForbidden, "Acceso denegado")
		return
	}
	s.mu.RLock()
	out := []map[string]any{}
	for _, u := range s.data.sortedUsers() {
		out = append(out, s.userJSON(u.identity))
	}
	s.mu.RUnlock()
	s.writeList(w, out)
}

func (s *Server) listPractitioners(w http.ResponseWriter, r *http.Request) {
	s.writePractitioners(w, 0)
}

func (s *Server) listPractitionersByClinic(w http.ResponseWriter, r *http.Request) {
	clinicID, err := strconv.ParseInt(chi.URLParam(r, "clinicId"), 10, 64)
	if err != nil {
		httpmw.Reject(w, http.StatusBadRequest, "Veterinaria inválida")
		return
	}
	s.mu.RLock()
	_, ok := s.data.clinic(clinicID)
	s.mu.RUnlock()
	if !ok {
		httpmw.Reject(w, http.StatusNotFound, "Veterinaria no encontrada")
		return
	}
	s.writePractitioners(w, clinicID)
}

func (s *Server) writePractitioners(w http.ResponseWriter, clinicID int64) {
	s.mu.RLock()
	out := []map[string]any{}
	for _, u := range s.data.practitioners(clinicID) {
		out = append(out, s.userJSON(u.identity))
	}
	s.mu.RUnlock()
	s.writeList(w, out)
}

func (s *Server) listPets(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := []map[string]any{}
	for _, p := range s.data.pets {
		out = append(out, petJSON(p))
	}
	s.mu.RUnlock()
	s.writeList(w, out)
}

func (s *Server) listPetsByOwner(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DisableOwnerPets {
		httpmw.Reject(w, http.StatusNotFound, "Not Found")
		return
	}
	owner := chi.URLParam(r, "customerId")
	u := currentUser(r)
	if roles.IsCustomer(u.roleSet()) && u.identity.Document != owner {
		httpmw.Reject(w, http.StatusForbidden, "Acceso denegado")
		return
	}
	s.mu.RLock()
	out := []map[string]any{}
	for _, p := range models.PetsOwnedBy(s.data.pets, owner) {
		out = append(out, petJSON(p))
	}
	s.mu.RUnlock()
	s.writeList(w, out)
}

func (s *Server) listClinics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]models.Clinic, len(s.data.clinics))
	copy(out, s.data.clinics)
	s.mu.RUnlock()
	s.writeList(w, out)
}

// writeList wraps v in the configured envelope.
func (s *Server) writeList(w http.ResponseWriter, v any) {
	switch s.cfg.Envelope {
	case "data":
		writeJSON(w, http.StatusOK, map[string]any{"data": v})
	case "content":
		writeJSON(w, http.StatusOK, map[string]any{"content": v, "totalElements": lenOf(v)})
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func lenOf(v any) int {
	switch list := v.(type) {
	case []map[string]any:
		return len(list)
	case []models.Clinic:
		return len(list)
	}
	return 0
}

func (s *Server) userJSON(id models.Identity) map[string]any {
	out := map[string]any{
		"documento": id.Document,
		"username":  id.Username,
		"nombres":   id.FirstName,
		"apellidos": id.LastName,
		"correo":    id.Email,
		"telefono":  id.Phone,
		"roles":     id.Roles,
	}
	if id.ClinicID != 0 {
		if c, ok := s.data.clinic(id.ClinicID); ok {
			out["veterinaria"] = map[string]any{"id": c.ID, "nombre": c.Name}
		}
	}
	return out
}

// signInUserJSON encodes roles as objects, as the real sign-in endpoint does.
func signInUserJSON(id models.Identity) map[string]any {
	rolesOut := make([]map[string]string, 0, len(id.Roles))
	for _, r := range id.Roles {
		rolesOut = append(rolesOut, map[string]string{"nombre": r})
	}
	out := map[string]any{
		"documento": id.Document,
		"username":  id.Username,
		"nombres":   id.FirstName,
		"apellidos": id.LastName,
		"correo":    id.Email,
		"roles":     rolesOut,
	}
	if id.ClinicID != 0 {
		out["veterinaria_id"] = id.ClinicID
	}
	return out
}

func petJSON(p models.Pet) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"nombre":      p.Name,
		"especie":     p.Species,
		"raza":        p.Breed,
		"propietario": map[string]string{"documento": p.OwnerDocument},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
