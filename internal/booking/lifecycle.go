package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

var (
	ErrNotPermitted    = errors.New("booking: not permitted for this account")
	ErrNotScheduled    = errors.New("booking: only scheduled appointments can change status here")
	ErrNotConfirmed    = errors.New("booking: action was not confirmed")
	ErrConfirmRequired = errors.New("booking: a confirmer is required")
)

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (fn ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return fn(ctx, prompt)
}

// Refresher reloads the appointment list after a status change. *Form
// implements it.
type Refresher interface {
	RefreshAppointments(ctx context.Context) error
}

// Lifecycle performs the status-only actions on persisted appointments. It
// goes through the dedicated status endpoint and never touches a form draft.
type Lifecycle struct {
	api       API
	identity  IdentitySource
	confirmer Confirmer
	refresher Refresher
	metrics   *metrics.ClientMetrics
	logger    *logging.Logger
}

func NewLifecycle(api API, identity IdentitySource, confirmer Confirmer, refresher Refresher, m *metrics.ClientMetrics, logger *logging.Logger) *Lifecycle {
	if logger == nil {
		logger = logging.Default()
	}
	return &Lifecycle{
		api:       api,
		identity:  identity,
		confirmer: confirmer,
		refresher: refresher,
		metrics:   m,
		logger:    logger,
	}
}

// Cancel cancels a scheduled appointment of the acting customer.
func (l *Lifecycle) Cancel(ctx context.Context, appt models.Appointment) error {
	id, _ := l.identity.Identity()
	if !roles.IsCustomer(id.RoleSet()) || appt.CustomerID != id.Document {
		return ErrNotPermitted
	}
	prompt := fmt.Sprintf("Cancel the appointment on %s?", appt.DateTime)
	return l.transition(ctx, appt, models.StatusCancelled, "cancel", prompt)
}

// Complete marks a scheduled appointment as done. Practitioners may complete
// their own appointments, staff any.
func (l *Lifecycle) Complete(ctx context.Context, appt models.Appointment) error {
	id, _ := l.identity.Identity()
	set := id.RoleSet()
	switch {
	case roles.IsStaff(set):
	case roles.IsPractitioner(set) && appt.PractitionerID == id.Document:
	default:
		return ErrNotPermitted
	}
	prompt := fmt.Sprintf("Mark the appointment on %s as completed?", appt.DateTime)
	return l.transition(ctx, appt, models.StatusCompleted, "complete", prompt)
}

func (l *Lifecycle) transition(ctx context.Context, appt models.Appointment, to models.Status, kind, prompt string) error {
	if appt.Status != models.StatusScheduled {
		return ErrNotScheduled
	}
	if l.confirmer == nil {
		return ErrConfirmRequired
	}
	ok, err := l.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("booking: confirm %s: %w", kind, err)
	}
	if !ok {
		return ErrNotConfirmed
	}

	if err := l.api.UpdateStatus(ctx, appt.ID, to); err != nil {
		l.metrics.ObserveSubmission(kind, "failed")
		l.logger.Warn("appointment status change failed", "appointment_id", appt.ID, "status", string(to), "error", err)
		return &SubmissionError{
			Message: transport.ServerMessage(err, "the appointment could not be updated, please try again"),
			Err:     err,
		}
	}
	l.metrics.ObserveSubmission(kind, "ok")
	l.logger.Info("appointment status changed", "appointment_id", appt.ID, "status", string(to))

	if l.refresher != nil {
		if err := l.refresher.RefreshAppointments(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			l.logger.Warn("appointment refresh after status change failed", "error", err)
		}
	}
	return nil
}
