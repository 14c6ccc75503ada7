package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/downstate"
	"go-healthwatch/internal/metrics"
	"go-healthwatch/internal/models"
	"go-healthwatch/internal/probe"
	"go-healthwatch/internal/threshold"
)

type Prober interface {
	Probe(ctx context.Context, url string) probe.HTTPResult
}

type Inspector interface {
	Inspect(ctx context.Context, host string) probe.CertResult
}

type Notifier interface {
	Notify(ctx context.Context, text string) bool
}

type StatusWriter interface {
	InsertWebsiteStatus(ctx context.Context, row models.WebsiteStatus) error
	InsertDatabaseHealth(ctx context.Context, row models.DatabaseHealth) error
	InsertServerHealth(ctx context.Context, row models.ServerHealth) error
}

// --- WEBSITES ---

// WebsiteMonitor probes each URL, checks its certificate when it is up and
// owns the down-streak state.
type WebsiteMonitor struct {
	prober     Prober
	inspector  Inspector
	store      StatusWriter
	notifier   Notifier
	states     downstate.Store
	thresholds models.Thresholds
	loc        *time.Location
	log        *log.Logger

	state models.DownState
	now   func() time.Time
}

func NewWebsiteMonitor(p Prober, i Inspector, s StatusWriter, n Notifier, states downstate.Store,
	t models.Thresholds, loc *time.Location, logger *log.Logger) *WebsiteMonitor {
	if loc == nil {
		loc = time.UTC
	}
	return &WebsiteMonitor{
		prober:     p,
		inspector:  i,
		store:      s,
		notifier:   n,
		states:     states,
		thresholds: t,
		loc:        loc,
		log:        logger.WithPrefix("website"),
		state:      models.DownState{},
		now:        time.Now,
	}
}

// LoadState reads the persisted down state. Unreadable state is replaced by
// an empty one.
func (m *WebsiteMonitor) LoadState(ctx context.Context) {
	state, err := m.states.Load(ctx)
	if err != nil {
		m.log.Warn("could not load down state, starting empty", "err", err)
	}
	if state == nil {
		state = models.DownState{}
	}
	m.state = state
}

func (m *WebsiteMonitor) SaveState(ctx context.Context) {
	if err := m.states.Save(ctx, m.state); err != nil {
		m.log.Error("could not save down state", "err", err)
	}
}

func (m *WebsiteMonitor) State() models.DownState { return m.state }

// Check runs every URL in order. A failure on one URL never stops the rest.
func (m *WebsiteMonitor) Check(ctx context.Context, urls []string) []models.WebsiteStatus {
	m.state.Seed(urls)

	rows := make([]models.WebsiteStatus, 0, len(urls))
	for _, url := range urls {
		row, err := m.checkURL(ctx, url)
		if err != nil {
			m.log.Error("website check aborted", "url", url, "err", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (m *WebsiteMonitor) checkURL(ctx context.Context, url string) (row models.WebsiteStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	now := m.now()
	row = models.WebsiteStatus{URL: url, HTTPStatus: models.HTTPStatusUp, DaysLeft: models.DaysUnknown, CheckedAt: now}

	res := m.prober.Probe(ctx, url)
	metrics.Observe("http", res.Up())

	if !res.Up() {
		row.HTTPStatus = models.HTTPStatusDown
		rec := m.state.RecordDown(url, now.In(m.loc))
		m.log.Error("site is DOWN", "url", url, "reason", res.Reason(), "down_count", rec.DownCount)
		m.notifier.Notify(ctx, alert.SiteDown(url, res.Reason()))
		m.log.Warn("skipping certificate check, site is down", "url", url)
	} else {
		m.log.Info("site is UP", "url", url, "status", res.StatusCode, "latency", res.Latency)
		row.DaysLeft = m.checkCert(ctx, url, now)
	}

	if err := m.store.InsertWebsiteStatus(ctx, row); err != nil {
		m.log.Error("could not persist website status", "url", url, "err", err)
	} else {
		m.log.Debug("website status persisted", "url", url)
	}
	return row, nil
}

func (m *WebsiteMonitor) checkCert(ctx context.Context, url string, now time.Time) int {
	host, err := probe.Hostname(url)
	var res probe.CertResult
	if err != nil {
		res = probe.CertResult{Err: fmt.Errorf("%w: %v", probe.ErrCertificate, err)}
	} else {
		res = m.inspector.Inspect(ctx, host)
	}
	metrics.Observe("certificate", res.OK())

	if !res.OK() {
		m.log.Error("certificate check failed", "url", url, "err", res.Err)
		m.notifier.Notify(ctx, alert.CertUnavailable(url))
		return models.DaysUnknown
	}

	days := probe.DaysLeft(res.Expiry, now)
	if threshold.ExpiringSoon(days, m.thresholds.SSLExpiryWarnDays) {
		m.log.Warn("certificate is expiring soon", "url", url, "days_left", days)
		m.notifier.Notify(ctx, alert.CertExpiring(url, days))
	} else {
		m.log.Info("certificate is valid", "url", url, "days_left", days)
	}
	return days
}
