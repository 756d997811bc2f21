// internal/monitoring/assembler.go - builds the dashboard view model
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sitemonitor/internal/adapters"
	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
	"sitemonitor/internal/layout"
)

const (
	PageIndex       = "index"
	PageHealthCheck = "healthcheck"
)

// Recorder receives probe and adapter outcomes. *metrics.Collector satisfies
// it.
type Recorder interface {
	RecordProbe(site string, host *database.Host, up bool, duration time.Duration)
	RecordAdapter(adapter string, err error, duration time.Duration)
	RecordDashboard(page string, found bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordProbe(string, *database.Host, bool, time.Duration) {}
func (noopRecorder) RecordAdapter(string, error, time.Duration)              {}
func (noopRecorder) RecordDashboard(string, bool)                            {}

type Options struct {
	// PortOverride is the ?port= query value, 0 when absent.
	PortOverride int
	// HostName narrows the page to one of the site's hosts.
	HostName string
	// Range bounds adapter queries. Nil uses each adapter's configured window.
	Range *adapters.TimeRange
}

type HostStatus struct {
	Host   database.Host `json:"host"`
	Result *HealthResult `json:"result,omitempty"`
}

type Dashboard struct {
	Page        string                   `json:"page"`
	Country     string                   `json:"country"`
	EndPoint    string                   `json:"end_point"`
	Found       bool                     `json:"found"`
	Site        *database.Site           `json:"site,omitempty"`
	Sites       []database.Site          `json:"sites"`
	Hosts       []HostStatus             `json:"hosts"`
	Column1     []database.Monitor       `json:"column1"`
	Column2     []database.Monitor       `json:"column2"`
	Preference  *database.PreferenceData `json:"preference,omitempty"`
	Payload     *adapters.Payload        `json:"payload,omitempty"`
	Error       string                   `json:"error,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}

type Assembler struct {
	config   *config.Config
	store    database.Store
	pool     *ProbePool
	registry *adapters.Registry
	recorder Recorder
}

func NewAssembler(cfg *config.Config, store database.Store, prober *Prober, registry *adapters.Registry, recorder Recorder) *Assembler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if registry == nil {
		registry = adapters.NewRegistry()
	}
	return &Assembler{
		config:   cfg,
		store:    store,
		pool:     NewProbePool(prober, cfg.Probe.Concurrency),
		registry: registry,
		recorder: recorder,
	}
}

// Assemble builds the dashboard for page on the site country/endPoint. A
// missing site yields Found=false and no error; probe and adapter failures
// are folded into the dashboard. Only storage failures are returned.
func (a *Assembler) Assemble(ctx context.Context, page, country, endPoint string, opts Options) (*Dashboard, error) {
	if page == "" {
		page = PageIndex
	}
	if a.config.Server.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Server.PageTimeout)
		defer cancel()
	}

	dash := &Dashboard{
		Page:        page,
		Country:     country,
		EndPoint:    endPoint,
		Hosts:       []HostStatus{},
		GeneratedAt: time.Now(),
	}

	sites, err := a.store.GetSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	dash.Sites = sites

	site, err := a.store.GetSiteByCountryName(ctx, country, endPoint)
	if errors.Is(err, database.ErrNotFound) {
		a.recorder.RecordDashboard(page, false)
		logrus.WithFields(logrus.Fields{
			"page":    page,
			"country": country,
			"site":    endPoint,
		}).Debug("Dashboard requested for unknown site")
		return dash, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	dash.Found = true
	dash.Site = site
	a.recorder.RecordDashboard(page, true)

	pref, err := a.store.GetPreferenceBySiteID(ctx, site.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to get preference: %w", err)
	default:
		dash.Preference = &pref.Data
	}
	dash.Column1, dash.Column2 = layout.Layout(site.Monitors, dash.Preference)

	hosts := selectHosts(site.Hosts, opts.HostName)
	for _, host := range hosts {
		dash.Hosts = append(dash.Hosts, HostStatus{Host: host})
	}

	switch page {
	case PageIndex:
	case PageHealthCheck:
		a.probeHosts(ctx, site, dash, opts)
	default:
		var host *database.Host
		if opts.HostName != "" && len(hosts) > 0 {
			host = &hosts[0]
		}
		a.fetchAdapter(ctx, page, site, host, opts.Range, dash)
	}

	return dash, nil
}

func (a *Assembler) probeHosts(ctx context.Context, site *database.Site, dash *Dashboard, opts Options) {
	jobs := make([]*Job, len(dash.Hosts))
	for i := range dash.Hosts {
		host := &dash.Hosts[i].Host
		jobs[i] = &Job{
			Index:  i,
			Host:   host,
			Target: TargetFor(host, opts.PortOverride, a.config.Probe),
		}
	}

	path := site.Path()
	for _, res := range a.pool.Run(ctx, jobs) {
		result := res.Result
		status := &dash.Hosts[res.Job.Index]

		up := result.Up
		status.Host.HealthCheck = &up
		status.Host.Status = database.HostDown
		if up {
			status.Host.Status = database.HostUp
		}
		status.Result = &result

		a.recorder.RecordProbe(path, &status.Host, up, result.Duration)

		if a.config.Probe.PersistStatus {
			if err := a.store.UpdateHostStatus(ctx, status.Host.ID, status.Host.Status); err != nil {
				logrus.WithError(err).WithField("host", status.Host.Label()).Warn("Failed to persist host status")
			}
		}
	}
}

func (a *Assembler) fetchAdapter(ctx context.Context, page string, site *database.Site, host *database.Host, r *adapters.TimeRange, dash *Dashboard) {
	adapter, ok := a.registry.Lookup(page)
	if !ok {
		dash.Payload = adapters.Empty("", page)
		return
	}

	start := time.Now()
	payload, err := adapter.Fetch(ctx, adapters.Request{
		Site:    site,
		Host:    host,
		Range:   r,
		Timeout: a.config.Adapters.Timeout,
	})
	a.recorder.RecordAdapter(adapter.Name(), err, time.Since(start))

	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"adapter": adapter.Name(),
			"site":    site.Path(),
		}).Error("Adapter fetch failed")
		dash.Payload = adapters.Empty(adapter.Name(), page)
		// details stay in the log
		dash.Error = fmt.Sprintf("no data from %s", adapter.Name())
		return
	}

	payload.Monitor = page
	dash.Payload = payload
}

func selectHosts(hosts []database.Host, name string) []database.Host {
	if name == "" {
		out := make([]database.Host, len(hosts))
		copy(out, hosts)
		return out
	}
	for _, host := range hosts {
		if host.Name == name {
			return []database.Host{host}
		}
	}
	return []database.Host{}
}
