// Package atlas holds the latest snapshot of every loaded source and answers the
// consumer-facing queries (view, metrics, features, camera) against them.
//
// Each source is replaced wholesale when a load completes; derived data (resolved
// metrics, boundary index, locator, camera transform) is recomputed from whatever
// has loaded so far. Nothing is patched in place.
package atlas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/camera"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
	"github.com/mohammed-shakir/civic-choropleth/internal/view"
)

var (
	ErrClosed = errors.New("atlas closed")
	// ErrStale is returned when a newer load of the same source already applied.
	ErrStale = errors.New("stale load")
)

type Source string

const (
	SourceRoster   Source = "roster"
	SourceMetrics  Source = "metrics"
	SourceStates   Source = "states"
	SourceCounties Source = "counties"
)

var allSources = []Source{SourceRoster, SourceMetrics, SourceStates, SourceCounties}

type Config struct {
	Metric    metric.Options
	Width     float64
	Height    float64
	Projector camera.Projector
	H3Res     int
	Clock     clockwork.Clock
}

// Ticket identifies one load attempt. Results carrying an older ticket than the
// last applied one for the same source are dropped.
type Ticket struct {
	Source Source
	Seq    uint64
}

type catalogSnap struct {
	catalog  *region.Catalog
	loadedAt time.Time
}

type recordsSnap struct {
	records  metric.Records
	loadedAt time.Time
}

type layerSnap struct {
	layer    *boundary.Layer
	loadedAt time.Time
}

type derived struct {
	metrics *metric.Snapshot
	index   *boundary.Index
	locator *boundary.Locator
}

type Atlas struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	clock  clockwork.Clock
	cfg    Config

	machine *view.Machine
	cam     *camera.Controller

	catalog  atomic.Pointer[catalogSnap]
	records  atomic.Pointer[recordsSnap]
	states   atomic.Pointer[layerSnap]
	counties atomic.Pointer[layerSnap]
	derived  atomic.Pointer[derived]

	// serializes apply + recompute so two arrivals cannot interleave derivations
	mu      sync.Mutex
	closed  bool
	issued  map[Source]uint64
	applied map[Source]uint64
}

// New creates an atlas whose lifetime is bound to ctx: once ctx ends or Close is
// called, late load results are discarded.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Atlas {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cctx, cancel := context.WithCancel(ctx)
	a := &Atlas{
		ctx:     cctx,
		cancel:  cancel,
		log:     logger,
		clock:   cfg.Clock,
		cfg:     cfg,
		machine: view.NewMachine(),
		cam:     camera.NewController(cfg.Width, cfg.Height, cfg.Projector),
		issued:  map[Source]uint64{},
		applied: map[Source]uint64{},
	}
	a.derived.Store(&derived{metrics: metric.Resolve(nil, nil, cfg.Metric), index: boundary.NewIndex(nil, nil)})

	// camera follows the view on the same call that changed it. Listeners run
	// outside the machine lock, so re-read the current state under mu: a
	// delayed listener must not frame a view that has already been replaced.
	a.machine.Subscribe(func(prev, next view.State) {
		a.mu.Lock()
		a.cam.Update(a.machine.Current(), a.current().index)
		a.mu.Unlock()
		observability.IncViewTransition(next.Mode.String())
		a.log.Debug("view transition", "from", prev.String(), "to", next.String())
	})
	return a
}

// Context is done when the atlas is closed; loaders use it to abandon work.
func (a *Atlas) Context() context.Context { return a.ctx }

func (a *Atlas) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cancel()
}

// Begin issues a ticket for a new load of src.
func (a *Atlas) Begin(src Source) Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issued[src]++
	return Ticket{Source: src, Seq: a.issued[src]}
}

// admit must be called with mu held.
func (a *Atlas) admit(t Ticket) error {
	if a.closed || a.ctx.Err() != nil {
		return ErrClosed
	}
	if t.Seq < a.applied[t.Source] {
		return fmt.Errorf("%w: %s ticket %d < applied %d", ErrStale, t.Source, t.Seq, a.applied[t.Source])
	}
	a.applied[t.Source] = t.Seq
	return nil
}

func (a *Atlas) ApplyCatalog(t Ticket, c *region.Catalog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.admit(t); err != nil {
		return err
	}
	a.catalog.Store(&catalogSnap{catalog: c, loadedAt: a.clock.Now()})
	a.recomputeMetrics()
	return nil
}

func (a *Atlas) ApplyRecords(t Ticket, r metric.Records) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.admit(t); err != nil {
		return err
	}
	a.records.Store(&recordsSnap{records: r, loadedAt: a.clock.Now()})
	a.recomputeMetrics()
	return nil
}

func (a *Atlas) ApplyStates(t Ticket, l *boundary.Layer) error {
	return a.applyLayer(t, &a.states, l)
}

func (a *Atlas) ApplyCounties(t Ticket, l *boundary.Layer) error {
	return a.applyLayer(t, &a.counties, l)
}

func (a *Atlas) applyLayer(t Ticket, dst *atomic.Pointer[layerSnap], l *boundary.Layer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.admit(t); err != nil {
		return err
	}
	if l == nil {
		l = &boundary.Layer{}
	}
	dst.Store(&layerSnap{layer: l, loadedAt: a.clock.Now()})
	a.recomputeBoundaries()
	return nil
}

func (a *Atlas) recomputeMetrics() {
	var cat *region.Catalog
	if s := a.catalog.Load(); s != nil {
		cat = s.catalog
	}
	var recs metric.Records
	if s := a.records.Load(); s != nil {
		recs = s.records
	}
	snap := metric.Resolve(cat, recs, a.cfg.Metric)
	counts := make(map[string]int)
	for rule, n := range snap.RuleCounts() {
		counts[rule.String()] = n
	}
	observability.SetResolvedRegions(counts)

	cur := a.current()
	a.derived.Store(&derived{metrics: snap, index: cur.index, locator: cur.locator})
}

func (a *Atlas) recomputeBoundaries() {
	var states, counties *boundary.Layer
	if s := a.states.Load(); s != nil {
		states = s.layer
	}
	if s := a.counties.Load(); s != nil {
		counties = s.layer
	}
	ix := boundary.NewIndex(states, counties)

	features := make([]boundary.Feature, 0, len(ix.States())+len(ix.Counties()))
	features = append(features, ix.Counties()...)
	features = append(features, ix.States()...)
	loc, err := boundary.NewLocator(features, a.cfg.H3Res)
	if err != nil {
		a.log.Warn("point locator disabled", "err", err)
		loc = nil
	}

	cur := a.current()
	a.derived.Store(&derived{metrics: cur.metrics, index: ix, locator: loc})
	a.cam.Update(a.machine.Current(), ix)
}

func (a *Atlas) current() *derived {
	return a.derived.Load()
}

// Ready reports whether the roster and state boundaries have loaded, which is
// the minimum for a national map.
func (a *Atlas) Ready() bool {
	return a.catalog.Load() != nil && a.current().index.HasStates()
}

// Readiness reports Ready plus the sources that have not loaded yet.
func (a *Atlas) Readiness() (bool, []string) {
	var pending []string
	if a.catalog.Load() == nil {
		pending = append(pending, string(SourceRoster))
	}
	if a.records.Load() == nil {
		pending = append(pending, string(SourceMetrics))
	}
	if a.states.Load() == nil {
		pending = append(pending, string(SourceStates))
	}
	if a.counties.Load() == nil {
		pending = append(pending, string(SourceCounties))
	}
	return a.Ready(), pending
}

// Catalog returns the latest roster, or nil while pending.
func (a *Atlas) Catalog() *region.Catalog {
	if s := a.catalog.Load(); s != nil {
		return s.catalog
	}
	return nil
}

func (a *Atlas) Resize(width, height float64) camera.Transform {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cam.Resize(width, height)
	return a.cam.Update(a.machine.Current(), a.current().index)
}

// OnTransition registers a listener for real view transitions.
func (a *Atlas) OnTransition(l view.Listener) {
	a.machine.Subscribe(l)
}
