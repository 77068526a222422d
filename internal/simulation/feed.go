package simulation

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/internal/relay"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/sourcegraph/conc"
)

const (
	metersPerDegree = 111_320.0
	// drivers turn back once this far from the centre
	maxRadiusMeters = 5000.0
	minSpeedKmh     = 15.0
	maxSpeedKmh     = 60.0
)

// Publisher is the part of the relay a feed publishes through.
type Publisher interface {
	Publish(ctx context.Context, source types.EventSource, event models.LocationEvent) relay.Delivery
}

type Config struct {
	Drivers   []string
	Interval  time.Duration
	Latitude  float64
	Longitude float64
}

// Feed drives fake drivers on a random walk around a centre point and
// publishes their positions like real drivers would.
type Feed struct {
	cfg Config
	pub Publisher
	now func() time.Time
	l   logger.Logger
}

func New(cfg Config, pub Publisher, l logger.Logger) *Feed {
	return &Feed{
		cfg: cfg,
		pub: pub,
		now: time.Now,
		l:   l,
	}
}

// Run publishes one location per driver every interval until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionSimulation)
	f.l.Info(ctx, "simulation feed started", "drivers", len(f.cfg.Drivers), "interval", f.cfg.Interval.String())

	var wg conc.WaitGroup
	for _, identity := range f.cfg.Drivers {
		wg.Go(func() {
			f.drive(wrap.WithDriverID(ctx, identity), identity)
		})
	}
	wg.Wait()

	f.l.Info(ctx, "simulation feed stopped")
	return nil
}

func (f *Feed) drive(ctx context.Context, identity string) {
	w := newWalker(identity, f.cfg.Latitude, f.cfg.Longitude)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event := w.step(f.cfg.Interval, f.now())
			d := f.pub.Publish(ctx, types.SourceSimulation, event)
			f.l.Debug(ctx, "simulated location published", "delivered", d.Delivered)
		}
	}
}

// walker is the random walk state of one simulated driver.
type walker struct {
	identity  string
	rnd       *rand.Rand
	centerLat float64
	centerLon float64
	lat, lon  float64
	heading   float64 // degrees, 0 = north
	speed     float64 // km/h
}

func newWalker(identity string, lat, lon float64) *walker {
	h := fnv.New64a()
	_, _ = h.Write([]byte(identity))
	rnd := rand.New(rand.NewPCG(h.Sum64(), uint64(time.Now().UnixNano())))

	return &walker{
		identity:  identity,
		rnd:       rnd,
		centerLat: lat,
		centerLon: lon,
		lat:       lat + (rnd.Float64()*2-1)*maxRadiusMeters/2/metersPerDegree,
		lon:       lon,
		heading:   rnd.Float64() * 360,
		speed:     minSpeedKmh + rnd.Float64()*(maxSpeedKmh-minSpeedKmh),
	}
}

func (w *walker) step(elapsed time.Duration, now time.Time) models.LocationEvent {
	w.heading = math.Mod(w.heading+(w.rnd.Float64()*60-30)+360, 360)
	w.speed = clamp(w.speed+(w.rnd.Float64()*10-5), minSpeedKmh, maxSpeedKmh)

	if distanceMeters(w.lat, w.lon, w.centerLat, w.centerLon) > maxRadiusMeters {
		w.heading = bearing(w.lat, w.lon, w.centerLat, w.centerLon)
	}

	meters := w.speed / 3.6 * elapsed.Seconds()
	rad := degreesToRadians(w.heading)
	w.lat += meters * math.Cos(rad) / metersPerDegree
	w.lon += meters * math.Sin(rad) / (metersPerDegree * math.Cos(degreesToRadians(w.lat)))

	accuracy := 3 + w.rnd.Float64()*7
	return models.NewLocationEvent(w.identity, w.lat, w.lon, w.speed, w.heading, &accuracy, now)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Route is a single random walk, for tools that drive one vehicle themselves.
type Route struct {
	w *walker
}

func NewRoute(identity string, latitude, longitude float64) *Route {
	return &Route{w: newWalker(identity, latitude, longitude)}
}

// Next advances the walk by elapsed and returns the new position.
func (r *Route) Next(elapsed time.Duration) models.LocationEvent {
	return r.w.step(elapsed, time.Now())
}
