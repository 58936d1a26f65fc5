// Package availability resolves the bookable slots of a clinic on a date.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

// DateLayout is the calendar date format the backend expects.
const DateLayout = "2006-01-02"

// minuteLayout is a local timestamp at minute precision.
const minuteLayout = "2006-01-02T15:04"

var (
	ErrInvalidDate = errors.New("availability: date must be YYYY-MM-DD")
	ErrNoClinic    = errors.New("availability: clinic is required")
)

// Source fetches raw slots for a (clinic, date) pair.
type Source interface {
	Availability(ctx context.Context, clinicID int64, date string) ([]models.Slot, error)
}

// Resolver queries availability. Results are never cached: every call goes
// to the backend so a date change can never surface stale slots.
type Resolver struct {
	source Source
	logger *logging.Logger
}

func NewResolver(source Source, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Slots returns the slots of clinicID on date, sorted as the backend sent them.
func (r *Resolver) Slots(ctx context.Context, clinicID int64, date string) ([]models.Slot, error) {
	if clinicID <= 0 {
		return nil, ErrNoClinic
	}
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	slots, err := r.source.Availability(ctx, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	r.logger.Debug("availability resolved", "clinic_id", clinicID, "date", date, "slots", len(slots), "free", len(Selectable(slots)))
	return slots, nil
}

// ValidateDate checks the YYYY-MM-DD shape.
func ValidateDate(date string) error {
	if len(date) != len(DateLayout) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Selectable filters the slots a user may pick.
func Selectable(slots []models.Slot) []models.Slot {
	out := make([]models.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the slot whose timestamp matches dateTime at minute precision.
func Find(slots []models.Slot, dateTime string) (models.Slot, bool) {
	want := TruncateToMinute(dateTime)
	for _, s := range slots {
		if TruncateToMinute(s.DateTime) == want {
			return s, true
		}
	}
	return models.Slot{}, false
}

// TruncateToMinute drops seconds and anything after them from a local ISO
// timestamp ("2025-03-10T10:00:00" -> "2025-03-10T10:00"). Values that do not
// start with a minute-precision timestamp are returned unchanged.
func TruncateToMinute(iso string) string {
	if len(iso) < len(minuteLayout) {
		return iso
	}
	head := iso[:len(minuteLayout)]
	if _, err := time.Parse(minuteLayout, head); err != nil {
		return iso
	}
	return head
}
