package journeys

import (
	"hash/fnv"

	"github.com/ItsMariusBC/TrainStats/pkg/models"
)

// View is a journey plus its derived read-only metrics.
type View struct {
	models.Journey
	Metrics models.JourneyMetrics `json:"metrics"`
}

func (s *Service) buildView(journey *models.Journey) View {
	return View{
		Journey: *journey,
		Metrics: s.buildMetrics(journey),
	}
}

func (s *Service) buildMetrics(journey *models.Journey) models.JourneyMetrics {
	metrics := models.JourneyMetrics{
		TotalStops:     len(journey.Stops),
		FollowersCount: len(journey.Followers),
	}

	if len(journey.Stops) < 2 {
		return metrics
	}

	first := journey.Stops[0]
	last := journey.Stops[len(journey.Stops)-1]
	metrics.DurationMinutes = int(last.Time.Sub(first.Time).Minutes())

	for i := 0; i < len(journey.Stops)-1; i++ {
		metrics.DistanceKm += segmentDistanceKm(journey.ID, i)
	}

	metrics.Progress = s.progressPercent(journey)
	return metrics
}

// progressPercent blends elapsed-time fraction and passed-stops fraction
// for an ONGOING journey. COMPLETED is always 100.
func (s *Service) progressPercent(journey *models.Journey) float64 {
	switch journey.Status {
	case models.StatusCompleted:
		return 100
	case models.StatusOngoing:
	default:
		return 0
	}

	first := journey.Stops[0]
	last := journey.Stops[len(journey.Stops)-1]
	now := s.now()

	if !now.Before(last.Time) {
		return 100
	}
	if !now.After(first.Time) {
		return 0
	}

	total := last.Time.Sub(first.Time)
	elapsed := now.Sub(first.Time)
	byTime := float64(elapsed) / float64(total) * 100

	passed := 0
	for _, stop := range journey.Stops {
		if stop.Passed {
			passed++
		}
	}
	byStops := float64(passed) / float64(len(journey.Stops)-1) * 100

	progress := (byTime + byStops) / 2
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}
	return progress
}

// segmentDistanceKm derives a stable pseudo-distance in the 20-69 km range
// for the segment after stop index i. The dashboard shows it as flavor; it
// is not a measured distance.
func segmentDistanceKm(journeyID uint, i int) int {
	h := fnv.New32a()
	h.Write([]byte{
		byte(journeyID), byte(journeyID >> 8), byte(journeyID >> 16), byte(journeyID >> 24),
		byte(i), byte(i >> 8),
	})
	return 20 + int(h.Sum32()%50)
}
