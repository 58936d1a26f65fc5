package booking

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
)

const genericSubmitMessage = "the appointment could not be saved, please try again"

// SubmissionError is a failed create or update. Message is the server's own
// text when it sent one.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }

// Submit validates the draft and sends exactly one create or update. The
// appointment list is refreshed afterwards whatever the outcome; a refresh
// failure is only logged. On success the form is cleared; on failure the
// draft is kept for correction.
func (f *Form) Submit(ctx context.Context) (*models.Appointment, error) {
	ctx, span := f.tracer.Start(ctx, "booking.submit")
	defer span.End()

	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	identity, _ := f.identity.Identity()
	draft := f.draft
	kind := "create"
	if draft.IsEdit() {
		kind = "update"
	}
	req, err := Validate(draft, identity)
	if err != nil {
		f.mu.Unlock()
		f.metrics.ObserveSubmission(kind, "invalid")
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}
	if err := f.fire(EventSubmit); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.inFlight = true
	gen := f.selectionGen
	f.mu.Unlock()

	span.SetAttributes(
		attribute.String("booking.kind", kind),
		attribute.Int64("booking.clinic_id", req.ClinicID),
		attribute.Int64("booking.appointment_id", draft.ID),
	)

	var saved *models.Appointment
	if draft.IsEdit() {
		saved, err = f.api.UpdateAppointment(ctx, draft.ID, req)
	} else {
		saved, err = f.api.CreateAppointment(ctx, req)
	}

	if refreshErr := f.RefreshAppointments(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrSuperseded) {
		f.logger.Warn("appointment refresh after submit failed", "error", refreshErr)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	current := gen == f.selectionGen

	if err != nil {
		f.metrics.ObserveSubmission(kind, "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		f.logger.Warn("appointment submission failed", "kind", kind, "appointment_id", draft.ID, "error", err)
		if current {
			f.mustFireFrom(StateSubmitting, EventSubmitFailed)
		}
		return nil, &SubmissionError{Message: transport.ServerMessage(err, genericSubmitMessage), Err: err}
	}

	f.metrics.ObserveSubmission(kind, "ok")
	f.logger.Info("appointment saved", "kind", kind, "appointment_id", draft.ID)
	if current {
		f.mustFireFrom(StateSubmitting, EventSubmitSucceeded)
		f.clearLocked()
		f.seedLocked()
	}
	return saved, nil
}

// mustFireFrom fires e when the form is still in from. A Reset during the
// call already moved the form on, in which case the completion is ignored.
func (f *Form) mustFireFrom(from State, e Event) {
	if f.state != from {
		return
	}
	f.mustFire(e)
}
