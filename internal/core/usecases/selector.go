package usecases

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

var stopValidator = validator.New()

// SelectStop returns the nearest unvisited stop whose trigger radius contains
// position, or nil. The boundary is exclusive. Equal distances resolve to the
// stop that comes first in route order.
func SelectStop(position domain.Coordinate, stops []domain.Stop, visited []string) *domain.Stop {
	seen := make(map[string]struct{}, len(visited))
	for _, id := range visited {
		seen[id] = struct{}{}
	}

	var (
		best     *domain.Stop
		bestDist = math.Inf(1)
	)
	for i := range stops {
		s := &stops[i]
		if _, ok := seen[s.ID]; ok || !triggerable(s.TriggerRadiusMeters) {
			continue
		}
		d := domain.DistanceMeters(position, s.Location)
		if !(d < s.TriggerRadiusMeters) {
			continue
		}
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// ValidateStops reports every stop that SelectStop will never trigger because
// of its radius.
func ValidateStops(stops []domain.Stop) []error {
	var errs []error
	for _, s := range stops {
		err := stopValidator.Var(s.TriggerRadiusMeters, "gt=0")
		if err == nil && math.IsInf(s.TriggerRadiusMeters, 1) {
			err = errInfiniteRadius
		}
		if err != nil {
			errs = append(errs, &domain.SelectorInputError{StopID: s.ID, Radius: s.TriggerRadiusMeters, Err: err})
		}
	}
	return errs
}

var errInfiniteRadius = errors.New("trigger radius is not finite")

func triggerable(radius float64) bool {
	return radius > 0 && !math.IsInf(radius, 1)
}
