package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"go-healthwatch/internal/db"
	"go-healthwatch/internal/metrics"
	"go-healthwatch/internal/models"
)

type TargetDB interface {
	Ping(ctx context.Context) error
	Metrics(ctx context.Context) (db.Metrics, error)
}

type DatabaseMonitor struct {
	target   TargetDB
	store    StatusWriter
	project  string
	identity string
	log      *log.Logger

	now func() time.Time
}

func NewDatabaseMonitor(target TargetDB, s StatusWriter, project, identity string, logger *log.Logger) *DatabaseMonitor {
	return &DatabaseMonitor{
		target:   target,
		store:    s,
		project:  project,
		identity: identity,
		log:      logger.WithPrefix("database"),
		now:      time.Now,
	}
}

// CheckConnectivity is diagnostic only: it logs and neither alerts nor persists.
func (m *DatabaseMonitor) CheckConnectivity(ctx context.Context) bool {
	if err := m.target.Ping(ctx); err != nil {
		m.log.Error("could not connect to monitored database", "db", m.identity, "err", err)
		return false
	}
	m.log.Info("monitored database is up and running", "db", m.identity)
	return true
}

// CollectMetrics persists exactly one record. Any failure to connect or query
// records the database as inactive with zero counters.
func (m *DatabaseMonitor) CollectMetrics(ctx context.Context) models.DatabaseHealth {
	rec := models.DatabaseHealth{
		ProjectName: m.project,
		DBName:      m.identity,
		Status:      models.DBInactive,
		CheckedAt:   m.now(),
	}

	stats, err := m.target.Metrics(ctx)
	metrics.Observe("database", err == nil)
	if err != nil {
		m.log.Error("could not collect database metrics", "db", m.identity, "err", err)
	} else {
		rec.Status = models.DBActive
		rec.TotalConnections = stats.TotalConnections
		rec.ActiveConnections = stats.ActiveConnections
		rec.TotalQueries = stats.TotalQueries
		m.log.Info("database metrics collected",
			"db", m.identity,
			"total_connections", stats.TotalConnections,
			"active_connections", stats.ActiveConnections,
			"total_queries", stats.TotalQueries)
	}

	if err := m.store.InsertDatabaseHealth(ctx, rec); err != nil {
		m.log.Error("could not persist database health", "db", m.identity, "err", err)
	} else {
		m.log.Info("database health persisted", "db", m.identity, "status", rec.Status)
	}
	return rec
}
