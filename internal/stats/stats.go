// Package stats summarizes the appointments the signed-in identity can see
// and the health of the backend connection.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wolfman30/vetclinic-booking/internal/booking"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

const localLayout = "2006-01-02T15:04"

// AppointmentLister lists appointments; *clinicapi.Client implements it.
type AppointmentLister interface {
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
}

// Summary counts appointments by status and by time.
type Summary struct {
	Total    int                   `json:"total"`
	ByStatus map[models.Status]int `json:"byStatus"`
	// Upcoming counts scheduled or confirmed appointments from now on.
	Upcoming int `json:"upcoming"`
	Today    int `json:"today"`
}

// TransportHealth is read back from the client metrics.
type TransportHealth struct {
	Requests      int64            `json:"requests"`
	ByClass       map[string]int64 `json:"byClass"`
	Invalidations map[string]int64 `json:"invalidations"`
	P95Ms         float64          `json:"p95Ms"`
}

type Report struct {
	Summary   Summary         `json:"summary"`
	Transport TransportHealth `json:"transport"`
}

type Service struct {
	api      AppointmentLister
	identity booking.IdentitySource
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(api AppointmentLister, identity booking.IdentitySource, gatherer prometheus.Gatherer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Service{api: api, identity: identity, gatherer: gatherer, logger: logger, now: time.Now}
}

// Report lists the appointments, scopes them to the acting identity and
// summarizes them alongside the transport health.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	list, err := s.api.ListAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: list appointments: %w", err)
	}
	id, _ := s.identity.Identity()
	scoped := booking.ScopeAppointments(list, id)
	s.logger.Debug("stats computed", "visible", len(scoped), "total", len(list))
	return &Report{
		Summary:   Summarize(scoped, s.now()),
		Transport: SnapshotTransport(s.gatherer),
	}, nil
}

// Summarize counts appts relative to now. Timestamps are local times without
// zone and are read in now's location.
func Summarize(appts []models.Appointment, now time.Time) Summary {
	out := Summary{Total: len(appts), ByStatus: map[models.Status]int{}}
	today := now.Format("2006-01-02")
	for _, a := range appts {
		status := a.Status
		if status == "" {
			status = models.StatusScheduled
		}
		out.ByStatus[status]++

		if strings.HasPrefix(a.DateTime, today) {
			out.Today++
		}
		if status != models.StatusScheduled && status != models.StatusConfirmed {
			continue
		}
		if len(a.DateTime) < len(localLayout) {
			continue
		}
		at, err := time.ParseInLocation(localLayout, a.DateTime[:len(localLayout)], now.Location())
		if err != nil {
			continue
		}
		if !at.Before(now.Truncate(time.Minute)) {
			out.Upcoming++
		}
	}
	return out
}

// SnapshotTransport reads request, invalidation and latency figures from
// gatherer. Missing families yield zero values.
func SnapshotTransport(gatherer prometheus.Gatherer) TransportHealth {
	out := TransportHealth{ByClass: map[string]int64{}, Invalidations: map[string]int64{}}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case metrics.RequestsTotalName:
			for _, m := range mf.Metric {
				if m == nil || m.GetCounter() == nil {
					continue
				}
				n := int64(m.GetCounter().GetValue())
				out.Requests += n
				out.ByClass[statusClass(labelValue(m, "status"))] += n
			}
		case metrics.InvalidationsTotalName:
			for _, m := range mf.Metric {
				if m == nil || m.GetCounter() == nil {
					continue
				}
				out.Invalidations[labelValue(m, "reason")] += int64(m.GetCounter().GetValue())
			}
		case metrics.RequestLatencyName:
			out.P95Ms = latencyQuantile(mf, 0.95) * 1000.0
		}
	}
	return out
}

func statusClass(status string) string {
	if len(status) == 3 && status[0] >= '1' && status[0] <= '5' {
		return status[:1] + "xx"
	}
	return "error"
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// latencyQuantile merges the histograms of every route and interpolates q.
func latencyQuantile(family *dto.MetricFamily, q float64) float64 {
	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, metric := range family.Metric {
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return 0
	}
	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)
	return histogramQuantile(q, sampleCount, uppers, cumulativeByUpper)
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}
		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		fraction := math.Min(math.Max((target-prevCum)/bucketCount, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	// the rest of the samples sit above the last finite bucket
	for i := len(uppers) - 1; i >= 0; i-- {
		if !math.IsInf(uppers[i], 1) {
			return uppers[i]
		}
	}
	return 0
}
