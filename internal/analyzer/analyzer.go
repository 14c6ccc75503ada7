// Package analyzer re-reads recently persisted status rows and raises alerts
// for any condition still present in the window. Rows are never marked as
// alerted, so overlapping passes alert again.
package analyzer

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/metrics"
	"go-healthwatch/internal/models"
	"go-healthwatch/internal/threshold"
)

const DefaultWindow = 3 * time.Minute

type Reader interface {
	RecentWebsiteStatuses(ctx context.Context, since time.Time) ([]models.WebsiteStatus, error)
	LatestDatabaseHealth(ctx context.Context, since time.Time) ([]models.DatabaseHealth, error)
	RecentServerHealth(ctx context.Context, since time.Time) ([]models.ServerHealth, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string) bool
}

type Analyzer struct {
	store      Reader
	notifier   Notifier
	thresholds models.Thresholds
	window     time.Duration
	log        *log.Logger

	now func() time.Time
}

func New(r Reader, n Notifier, t models.Thresholds, window time.Duration, logger *log.Logger) *Analyzer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{
		store:      r,
		notifier:   n,
		thresholds: t,
		window:     window,
		log:        logger.WithPrefix("analyzer"),
		now:        time.Now,
	}
}

// Run checks databases, server health and websites over the window and
// returns the alert texts it raised, in that order.
func (a *Analyzer) Run(ctx context.Context) (alerts []string) {
	since := a.now().Add(-a.window)
	start := time.Now()
	a.log.Info("starting analysis", "since", since.Format(time.RFC3339))

	raise := func(text string) {
		alerts = append(alerts, text)
		a.notifier.Notify(ctx, text)
	}

	defer func() {
		if p := recover(); p != nil {
			a.log.Error("analysis crashed", "panic", p)
			raise(alert.ScriptError(p))
		}
		metrics.LastRun.WithLabelValues("analyze").SetToCurrentTime()
		a.log.Info("analysis completed", "alerts", len(alerts), "duration", time.Since(start).Round(time.Millisecond))
	}()

	a.checkDatabases(ctx, since, raise)
	a.checkServers(ctx, since, raise)
	a.checkWebsites(ctx, since, raise)
	return alerts
}

func (a *Analyzer) queryFailed(table string, err error, raise func(string)) {
	metrics.Observe("analyze_"+table, false)
	a.log.Error("status store query failed", "table", table, "err", err)
	raise(alert.StoreQueryFailed(table, err))
}

func (a *Analyzer) checkDatabases(ctx context.Context, since time.Time, raise func(string)) {
	rows, err := a.store.LatestDatabaseHealth(ctx, since)
	if err != nil {
		a.queryFailed("db_monitoring", err, raise)
		return
	}
	metrics.Observe("analyze_db_monitoring", true)

	for _, r := range rows {
		if r.Status == models.DBActive {
			a.log.Debug("database is active", "db", r.DBName)
			continue
		}
		a.log.Warn("database is inactive", "db", r.DBName, "project", r.ProjectName, "checked_at", r.CheckedAt)
		raise(alert.DatabaseInactive(r.DBName, r.ProjectName))
	}
}

func (a *Analyzer) checkServers(ctx context.Context, since time.Time, raise func(string)) {
	rows, err := a.store.RecentServerHealth(ctx, since)
	if err != nil {
		a.queryFailed("server_health", err, raise)
		return
	}
	metrics.Observe("analyze_server_health", true)

	for _, r := range rows {
		for _, d := range threshold.Exceeded(threshold.CheckServer(r, a.thresholds)) {
			a.log.Warn("usage is high", "server", r.ServerName, "metric", d.Metric, "percent", d.Value)
			raise(alert.HighUsage(d, r.ServerName, r.ProjectName))
		}
	}
}

// A down row carries days_left -1 and therefore raises both alerts.
func (a *Analyzer) checkWebsites(ctx context.Context, since time.Time, raise func(string)) {
	rows, err := a.store.RecentWebsiteStatuses(ctx, since)
	if err != nil {
		a.queryFailed("ssl_certificate_status", err, raise)
		return
	}
	metrics.Observe("analyze_ssl_certificate_status", true)

	for _, r := range rows {
		if threshold.ExpiringSoon(r.DaysLeft, a.thresholds.SSLExpiryWarnDays) {
			a.log.Warn("certificate expiring", "url", r.URL, "days_left", r.DaysLeft)
			raise(alert.AnalyzedCertExpiring(r.URL, r.DaysLeft))
		}
		if r.HTTPStatus != models.HTTPStatusUp {
			a.log.Warn("site was down", "url", r.URL, "status", r.HTTPStatus)
			raise(alert.AnalyzedSiteDown(r.URL, r.HTTPStatus))
		}
	}
}
