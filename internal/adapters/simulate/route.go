package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
	"github.com/samirrijal/audiotour/internal/pkg/geospatial"
)

// Route is a walk described in YAML:
//
//	name: old town loop
//	accuracy_meters: 5
//	points:
//	  - {lat: 43.2590, lon: -2.9240}
//	  - {lat: 43.2600, lon: -2.9230}
type Route struct {
	Name             string              `yaml:"name"`
	AccuracyMeters   float64             `yaml:"accuracy_meters"`
	PermissionDenied bool                `yaml:"permission_denied"`
	Loop             bool                `yaml:"loop"`
	Points           []domain.Coordinate `yaml:"points"`
}

var pointValidator = validator.New()

// LoadRoute reads a route file.
func LoadRoute(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	var r Route
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse route %s: %w", path, err)
	}
	if len(r.Points) == 0 {
		return nil, fmt.Errorf("route %s has no points", path)
	}
	for i, p := range r.Points {
		if !p.Valid() {
			return nil, fmt.Errorf("route %s: point %d is not a valid coordinate", path, i)
		}
		if err := pointValidator.Struct(p); err != nil {
			return nil, fmt.Errorf("route %s: point %d out of range: %w", path, i, err)
		}
	}
	return &r, nil
}

// Densify returns the route resampled so consecutive points are at most
// stepMeters apart. The original vertices are kept.
func (r *Route) Densify(stepMeters float64) []domain.Coordinate {
	if len(r.Points) == 0 {
		return nil
	}
	out := []domain.Coordinate{r.Points[0]}
	for i := 1; i < len(r.Points); i++ {
		a, b := r.Points[i-1], r.Points[i]
		d := domain.DistanceMeters(a, b)
		n := 1
		if stepMeters > 0 {
			n = max(1, int(math.Ceil(d/stepMeters)))
		}
		for k := 1; k <= n; k++ {
			lat, lon := geospatial.Interpolate(a.Lat, a.Lon, b.Lat, b.Lon, float64(k)/float64(n))
			out = append(out, domain.Coordinate{Lat: lat, Lon: lon})
		}
	}
	return out
}

// RouteProvider implements ports.LocationProvider by walking a Route.
type RouteProvider struct {
	route  *Route
	path   []domain.Coordinate
	tick   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu  sync.Mutex
	idx int
}

// NewRouteProvider walks route emitting one sample every tick, stepMeters apart.
func NewRouteProvider(route *Route, stepMeters float64, tick time.Duration, logger *slog.Logger) *RouteProvider {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteProvider{
		route:  route,
		path:   route.Densify(stepMeters),
		tick:   tick,
		now:    time.Now,
		logger: logger.With("component", "simulated_route", "route", route.Name),
	}
}

// RequestPermission grants access unless the route says otherwise.
func (p *RouteProvider) RequestPermission(context.Context) (bool, error) {
	return !p.route.PermissionDenied, nil
}

// CurrentPosition returns the walker's current point.
func (p *RouteProvider) CurrentPosition(context.Context) (*domain.PositionSample, error) {
	if len(p.path) == 0 {
		return nil, errors.New("route is empty")
	}
	p.mu.Lock()
	idx := p.idx
	p.mu.Unlock()
	s := p.sample(p.path[idx])
	return &s, nil
}

// Watch emits the route one point per tick. The channel closes at the end of
// a non-looping route or when ctx is cancelled.
func (p *RouteProvider) Watch(ctx context.Context, _ ports.WatchOptions) (<-chan domain.PositionSample, error) {
	if len(p.path) == 0 {
		return nil, errors.New("route is empty")
	}
	out := make(chan domain.PositionSample, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.tick)
		defer ticker.Stop()

		for {
			p.mu.Lock()
			s := p.sample(p.path[p.idx])
			p.mu.Unlock()

			select {
			case out <- s:
			case <-ctx.Done():
				return
			}

			p.mu.Lock()
			last := p.idx == len(p.path)-1
			switch {
			case !last:
				p.idx++
			case p.route.Loop:
				p.idx = 0
			}
			p.mu.Unlock()
			if last && !p.route.Loop {
				p.logger.Info("route finished")
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *RouteProvider) sample(c domain.Coordinate) domain.PositionSample {
	s := domain.PositionSample{Location: c, Timestamp: p.now()}
	if p.route.AccuracyMeters > 0 {
		acc := p.route.AccuracyMeters
		s.AccuracyMeters = &acc
	}
	return s
}
