// Package delay computes the pause between two probes of a batch. The
// pause is stretched during business hours of a randomly drawn US region
// so that request timing looks like ordinary shopper traffic.
package delay

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	_ "time/tzdata" // region zones must resolve on hosts without zoneinfo
)

// MaxDelay caps every computed delay.
const MaxDelay = 10 * time.Second

// RegionZones are the simulated probing regions.
var RegionZones = []string{
	"America/Los_Angeles",
	"America/Denver",
	"America/Chicago",
	"America/New_York",
}

// Config holds the policy settings. Delays are in seconds.
type Config struct {
	MinDelay float64
	MaxDelay float64
	Smart    bool
}

// RegionStatus describes a region at a point in time.
type RegionStatus struct {
	Name      string `json:"name"`
	Zone      string `json:"zone"`
	LocalTime string `json:"current_time"`
	Hour      int    `json:"hour"`
	Peak      bool   `json:"is_peak_hours"`
	OffHours  bool   `json:"is_off_hours"`
}

// Snapshot is returned by Regions.
type Snapshot struct {
	Regions    []RegionStatus `json:"regions"`
	Smart      bool           `json:"smart_delay_enabled"`
	Multiplier float64        `json:"current_multiplier"`
	MinDelay   float64        `json:"min_delay"`
	MaxDelay   float64        `json:"max_delay"`
}

// Policy is safe for concurrent use.
type Policy struct {
	cfg   Config
	zones []*time.Location

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option customizes a Policy.
type Option func(*Policy)

// WithClock replaces the wall clock used to find regional hours.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithSeed makes draws reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Policy) { p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// New builds a policy. Negative bounds are clamped to zero and reversed
// bounds are swapped.
func New(cfg Config, opts ...Option) (*Policy, error) {
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxDelay < 0 {
		cfg.MaxDelay = 0
	}
	if cfg.MinDelay > cfg.MaxDelay {
		cfg.MinDelay, cfg.MaxDelay = cfg.MaxDelay, cfg.MinDelay
	}

	zones := make([]*time.Location, 0, len(RegionZones))
	for _, name := range RegionZones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("load region %s: %w", name, err)
		}
		zones = append(zones, loc)
	}

	p := &Policy{
		cfg:   cfg,
		zones: zones,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Compute draws a delay: a uniform base in [min,max], times the region
// factor, times a uniform jitter in [0.8,1.2], capped at MaxDelay.
func (p *Policy) Compute() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.uniform(p.cfg.MinDelay, p.cfg.MaxDelay)
	seconds := base * p.regionFactor() * p.uniform(0.8, 1.2)

	d := time.Duration(seconds * float64(time.Second))
	switch {
	case d < 0:
		return 0
	case d > MaxDelay:
		return MaxDelay
	}
	return d
}

// Wait sleeps for one computed delay or until ctx is done.
func (p *Policy) Wait(ctx context.Context) error {
	d := p.Compute()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandomRegion returns a region zone name for display. The draw is
// independent of the one Compute makes.
func (p *Policy) RandomRegion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return RegionZones[p.rng.IntN(len(RegionZones))]
}

// Regions reports every region's local time and hour class.
func (p *Policy) Regions() Snapshot {
	p.mu.Lock()
	now := p.now()
	mult := p.regionFactor()
	p.mu.Unlock()

	out := Snapshot{
		Regions:    make([]RegionStatus, 0, len(p.zones)),
		Smart:      p.cfg.Smart,
		Multiplier: mult,
		MinDelay:   p.cfg.MinDelay,
		MaxDelay:   p.cfg.MaxDelay,
	}
	for i, loc := range p.zones {
		local := now.In(loc)
		h := local.Hour()
		out.Regions = append(out.Regions, RegionStatus{
			Name:      ShortName(RegionZones[i]),
			Zone:      RegionZones[i],
			LocalTime: local.Format("2006-01-02 15:04:05 MST"),
			Hour:      h,
			Peak:      isPeak(h),
			OffHours:  isOffHours(h),
		})
	}
	return out
}

// regionFactor must be called with mu held.
func (p *Policy) regionFactor() float64 {
	if !p.cfg.Smart {
		return 1.0
	}
	loc := p.zones[p.rng.IntN(len(p.zones))]
	h := p.now().In(loc).Hour()
	switch {
	case isPeak(h):
		return p.uniform(2.0, 2.5)
	case isOffHours(h):
		return 1.0
	default:
		return p.uniform(1.3, 1.7)
	}
}

func (p *Policy) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + p.rng.Float64()*(hi-lo)
}

func isPeak(hour int) bool { return hour >= 9 && hour <= 17 }

func isOffHours(hour int) bool { return hour < 8 || hour > 22 }

// ShortName turns "America/New_York" into "New_York".
func ShortName(zone string) string {
	for i := len(zone) - 1; i >= 0; i-- {
		if zone[i] == '/' {
			return zone[i+1:]
		}
	}
	return zone
}
