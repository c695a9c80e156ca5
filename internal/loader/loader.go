// Package loader fetches the roster, metric payload and boundary topologies and
// hands each result to the atlas as a replacement snapshot.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/civic-choropleth/internal/atlas"
	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/cache/keys"
	"github.com/mohammed-shakir/civic-choropleth/internal/cache/payloadcache"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/observability"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

var ErrRosterUnavailable = errors.New("roster unavailable")

const maxBackoff = 5 * time.Second

type Config struct {
	Roster         string
	StateTopology  string
	CountyTopology string
	Boundary       boundary.Options
	MetricURL      string
	Timeout        time.Duration
	Retries        int
	Backoff        time.Duration
}

type Loader struct {
	cfg    Config
	atlas  *atlas.Atlas
	client *http.Client
	cache  *payloadcache.Cache
	log    *slog.Logger
	clock  clockwork.Clock
}

type Option func(*Loader)

// WithCache serves repeated fetches from the payload cache; nil disables caching.
func WithCache(c *payloadcache.Cache) Option { return func(l *Loader) { l.cache = c } }

func WithClock(c clockwork.Clock) Option { return func(l *Loader) { l.clock = c } }

func WithLogger(lg *slog.Logger) Option { return func(l *Loader) { l.log = lg } }

func New(cfg Config, a *atlas.Atlas, client *http.Client, opts ...Option) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Boundary == (boundary.Options{}) {
		cfg.Boundary = boundary.DefaultOptions()
	}
	l := &Loader{
		cfg:    cfg,
		atlas:  a,
		client: client,
		log:    slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run loads every source once, concurrently. The metric load waits for the
// roster because its request is keyed by catalog codes. A failed source leaves
// the atlas pending for that source; the first failure is returned after all
// loads finish.
func (l *Loader) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.atlas.Context(), cancel)
	defer stop()

	catalogCh := make(chan *region.Catalog, 1)

	var g errgroup.Group
	g.Go(func() error {
		defer close(catalogCh)
		cat, err := l.LoadRoster(ctx)
		if err == nil {
			catalogCh <- cat
		}
		return err
	})
	g.Go(func() error {
		var cat *region.Catalog
		select {
		case c, ok := <-catalogCh:
			if !ok {
				observability.ObserveSourceLoad(string(atlas.SourceMetrics), "skipped", 0)
				return fmt.Errorf("metrics: %w", ErrRosterUnavailable)
			}
			cat = c
		case <-ctx.Done():
			return ctx.Err()
		}
		return l.LoadMetrics(ctx, cat)
	})
	g.Go(func() error { return l.LoadStates(ctx) })
	g.Go(func() error { return l.LoadCounties(ctx) })
	return g.Wait()
}

// LoadRoster fetches and parses the roster and applies it.
func (l *Loader) LoadRoster(ctx context.Context) (*region.Catalog, error) {
	var cat *region.Catalog
	err := l.load(ctx, atlas.SourceRoster, func(ctx context.Context, t atlas.Ticket) error {
		text, err := l.fetchSource(ctx, "roster", l.cfg.Roster)
		if err != nil {
			return err
		}
		cat = region.Parse(string(text))
		if cat.Empty() {
			l.log.WarnContext(ctx, "roster has no codes", "source", l.cfg.Roster)
		}
		return l.atlas.ApplyCatalog(t, cat)
	})
	return cat, err
}

// LoadMetrics requests a record for every catalog code and applies the decoded
// payload. An empty catalog applies an empty record set without a request.
func (l *Loader) LoadMetrics(ctx context.Context, cat *region.Catalog) error {
	return l.load(ctx, atlas.SourceMetrics, func(ctx context.Context, t atlas.Ticket) error {
		codes := cat.RequestCodes()
		if len(codes) == 0 {
			return l.atlas.ApplyRecords(t, metric.Records{})
		}
		recs, err := l.fetchMetrics(ctx, codes)
		if err != nil {
			return err
		}
		return l.atlas.ApplyRecords(t, recs)
	})
}

func (l *Loader) LoadStates(ctx context.Context) error {
	return l.load(ctx, atlas.SourceStates, func(ctx context.Context, t atlas.Ticket) error {
		layer, err := l.fetchLayer(ctx, l.cfg.StateTopology, l.cfg.Boundary.StateObject, boundary.LevelState)
		if err != nil {
			return err
		}
		return l.atlas.ApplyStates(t, layer)
	})
}

func (l *Loader) LoadCounties(ctx context.Context) error {
	return l.load(ctx, atlas.SourceCounties, func(ctx context.Context, t atlas.Ticket) error {
		layer, err := l.fetchLayer(ctx, l.cfg.CountyTopology, l.cfg.Boundary.CountyObject, boundary.LevelCounty)
		if err != nil {
			return err
		}
		return l.atlas.ApplyCounties(t, layer)
	})
}

// load runs fn with bounded retries and exponential backoff. All attempts share
// one ticket, so a later Run of the same source supersedes this one.
func (l *Loader) load(ctx context.Context, src atlas.Source, fn func(context.Context, atlas.Ticket) error) error {
	start := l.clock.Now()
	t := l.atlas.Begin(src)
	backoff := l.cfg.Backoff
	log := l.log.With("source", string(src))

	var err error
	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				observability.ObserveSourceLoad(string(src), "canceled", 0)
				return fmt.Errorf("load %s: %w", src, ctx.Err())
			case <-l.clock.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		actx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
		err = fn(actx, t)
		cancel()

		switch {
		case err == nil:
			d := l.clock.Since(start)
			observability.ObserveSourceLoad(string(src), "ok", d.Seconds())
			log.InfoContext(ctx, "source loaded", "attempt", attempt+1, "took", d)
			return nil
		case errors.Is(err, atlas.ErrStale):
			observability.ObserveSourceLoad(string(src), "stale", 0)
			log.InfoContext(ctx, "superseded load dropped", "attempt", attempt+1)
			return nil
		case errors.Is(err, atlas.ErrClosed), ctx.Err() != nil:
			observability.ObserveSourceLoad(string(src), "canceled", 0)
			return fmt.Errorf("load %s: %w", src, err)
		}
		log.WarnContext(ctx, "source load failed", "attempt", attempt+1, "err", err)
	}
	observability.ObserveSourceLoad(string(src), "error", 0)
	return fmt.Errorf("load %s after %d attempts: %w", src, l.cfg.Retries+1, err)
}

func (l *Loader) fetchLayer(ctx context.Context, location, object string, level boundary.Level) (*boundary.Layer, error) {
	doc, err := l.fetchSource(ctx, level.String()+" topology", location)
	if err != nil {
		return nil, err
	}
	layer, err := boundary.DecodeLayer(doc, object, level)
	if err != nil {
		if l.cache != nil && isURL(location) {
			l.cache.Invalidate(ctx, keys.SourceKey(level.String()+" topology", location))
		}
		return nil, fmt.Errorf("decode %s topology: %w", level, err)
	}
	return layer, nil
}

type metricRequest struct {
	Demographics   bool          `json:"demographics"`
	PoliticalParty bool          `json:"political_party"`
	RequestedFIPS  []region.Code `json:"requested_fips"`
}

func (l *Loader) fetchMetrics(ctx context.Context, codes []region.Code) (metric.Records, error) {
	key := keys.MetricKey(l.cfg.MetricURL, codes)
	if l.cache != nil {
		if b, ok := l.cache.Get(ctx, key); ok {
			recs, err := metric.Decode(b)
			if err == nil {
				return recs, nil
			}
			l.log.WarnContext(ctx, "dropping undecodable cached metric payload", "key", key, "err", err)
			l.cache.Invalidate(ctx, key)
		}
	}

	body, err := json.Marshal(metricRequest{Demographics: true, PoliticalParty: true, RequestedFIPS: codes})
	if err != nil {
		return nil, fmt.Errorf("encode metric request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.MetricURL+"/data/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build metric request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	b, err := l.do(req, "metric_service")
	if err != nil {
		return nil, err
	}
	recs, err := metric.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("metric payload: %w", err)
	}
	if l.cache != nil {
		l.cache.Put(ctx, key, b)
	}
	return recs, nil
}

// fetchSource reads a document from an http(s) URL or a file path. A location
// spanning several lines is taken as the document itself.
func (l *Loader) fetchSource(ctx context.Context, kind, location string) ([]byte, error) {
	switch {
	case strings.Contains(location, "\n"):
		return []byte(location), nil
	case isURL(location):
	default:
		b, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", kind, err)
		}
		return b, nil
	}

	key := keys.SourceKey(kind, location)
	if l.cache != nil {
		if b, ok := l.cache.Get(ctx, key); ok {
			return b, nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", kind, err)
	}
	b, err := l.do(req, strings.ReplaceAll(kind, " ", "_"))
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Put(ctx, key, b)
	}
	return b, nil
}

func (l *Loader) do(req *http.Request, upstream string) ([]byte, error) {
	start := time.Now()
	resp, err := l.client.Do(req)
	observability.ObserveUpstreamLatency(upstream, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", upstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, truncate(b, 200))
	}
	return b, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
